package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sajikan-pos/api/internal/enum"
)

func int32ptr(v int32) *int32 { return &v }

// singleGroup builds a SINGLE group with the given options already resolved
// (active, sorted), the shape ValidateSelections receives in practice.
func singleGroup(name string, options ...ModifierOption) ModifierGroup {
	g := ModifierGroup{
		ID:            uuid.New(),
		Name:          name,
		SelectionKind: enum.SelectionKindSingle,
		MinSelect:     1,
		IsActive:      true,
	}
	for i := range options {
		options[i].GroupID = g.ID
	}
	g.Options = options
	return g
}

func multiGroup(name string, min int32, max *int32, options ...ModifierOption) ModifierGroup {
	g := ModifierGroup{
		ID:            uuid.New(),
		Name:          name,
		SelectionKind: enum.SelectionKindMultiple,
		MinSelect:     min,
		MaxSelect:     max,
		IsActive:      true,
	}
	for i := range options {
		options[i].GroupID = g.ID
	}
	g.Options = options
	return g
}

func hasViolation(violations []Violation, kind ViolationKind) bool {
	for _, v := range violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func TestValidateHappyPath(t *testing.T) {
	large := testOption(uuid.Nil, "Large", 2000, 1)
	size := singleGroup("Size", testOption(uuid.Nil, "Regular", 0, 0), large)

	validated, violations, warnings := ValidateSelections(
		EffectiveGroupSet{size},
		Selections{size.ID: {large.ID}},
	)

	if len(violations) != 0 || len(warnings) != 0 {
		t.Fatalf("unexpected violations %v warnings %v", violations, warnings)
	}
	if len(validated) != 1 {
		t.Fatalf("expected 1 validated selection, got %d", len(validated))
	}
	if validated[0].OptionName != "Large" || !validated[0].PriceDelta.Equal(large.PriceDelta) {
		t.Errorf("validated selection lost option data: %+v", validated[0])
	}
}

func TestValidateUnknownOption(t *testing.T) {
	size := singleGroup("Size", testOption(uuid.Nil, "Regular", 0, 0))

	_, violations, _ := ValidateSelections(
		EffectiveGroupSet{size},
		Selections{size.ID: {uuid.New()}},
	)

	if !hasViolation(violations, UnknownOption) {
		t.Fatalf("expected unknown_option violation, got %v", violations)
	}
}

func TestValidateSingleGroupRejectsTwoChoices(t *testing.T) {
	a := testOption(uuid.Nil, "Regular", 0, 0)
	b := testOption(uuid.Nil, "Large", 2000, 1)
	size := singleGroup("Size", a, b)
	// Stored maximum is ignored for SINGLE: effective max stays 1.
	size.MaxSelect = int32ptr(5)

	_, violations, _ := ValidateSelections(
		EffectiveGroupSet{size},
		Selections{size.ID: {a.ID, b.ID}},
	)

	if !hasViolation(violations, TooManyChoices) {
		t.Fatalf("expected too_many_choices for SINGLE group, got %v", violations)
	}
}

func TestValidateMultipleAboveMax(t *testing.T) {
	// Scenario: "Toppings" (multiple, min 0, max 2), three options submitted.
	o1 := testOption(uuid.Nil, "Egg", 3000, 1)
	o2 := testOption(uuid.Nil, "Cheese", 4000, 2)
	o3 := testOption(uuid.Nil, "Chili", 1000, 3)
	toppings := multiGroup("Toppings", 0, int32ptr(2), o1, o2, o3)

	_, violations, _ := ValidateSelections(
		EffectiveGroupSet{toppings},
		Selections{toppings.ID: {o1.ID, o2.ID, o3.ID}},
	)

	if !hasViolation(violations, TooManyChoices) {
		t.Fatalf("expected too_many_choices, got %v", violations)
	}
}

func TestValidateRequiredChoicesMissing(t *testing.T) {
	size := singleGroup("Size", testOption(uuid.Nil, "Regular", 0, 0))

	// Group entirely absent from the input map counts as zero selections.
	_, violations, _ := ValidateSelections(EffectiveGroupSet{size}, Selections{})

	if !hasViolation(violations, RequiredChoicesMissing) {
		t.Fatalf("expected required_choices_missing, got %v", violations)
	}
}

func TestValidateOptionalGroupMayBeAbsent(t *testing.T) {
	toppings := multiGroup("Toppings", 0, int32ptr(2), testOption(uuid.Nil, "Egg", 3000, 1))

	validated, violations, warnings := ValidateSelections(EffectiveGroupSet{toppings}, Selections{})

	if len(violations) != 0 || len(warnings) != 0 {
		t.Fatalf("optional absent group must not error: %v %v", violations, warnings)
	}
	if len(validated) != 0 {
		t.Fatalf("expected no selections, got %d", len(validated))
	}
}

func TestValidateDuplicatesDeduplicatedBeforeCounting(t *testing.T) {
	large := testOption(uuid.Nil, "Large", 2000, 1)
	size := singleGroup("Size", large)

	validated, violations, _ := ValidateSelections(
		EffectiveGroupSet{size},
		Selections{size.ID: {large.ID, large.ID, large.ID}},
	)

	if len(violations) != 0 {
		t.Fatalf("duplicates must be deduplicated before cardinality check, got %v", violations)
	}
	if len(validated) != 1 {
		t.Fatalf("expected 1 validated selection after dedup, got %d", len(validated))
	}
}

func TestValidateUnassignedGroupWarnsInsteadOfRejecting(t *testing.T) {
	large := testOption(uuid.Nil, "Large", 2000, 1)
	size := singleGroup("Size", large)
	staleGroup := uuid.New()

	validated, violations, warnings := ValidateSelections(
		EffectiveGroupSet{size},
		Selections{
			size.ID:    {large.ID},
			staleGroup: {uuid.New()},
		},
	)

	if len(violations) != 0 {
		t.Fatalf("stale group selection must not block the order, got %v", violations)
	}
	if len(warnings) != 1 || warnings[0].Kind != UnassignedGroup {
		t.Fatalf("expected one unassigned_group warning, got %v", warnings)
	}
	if len(validated) != 1 {
		t.Fatalf("valid selections must survive a stale group, got %d", len(validated))
	}
}

func TestValidateUnboundedMultiple(t *testing.T) {
	var opts []ModifierOption
	var chosen []uuid.UUID
	for i := int32(0); i < 10; i++ {
		o := testOption(uuid.Nil, "Opt", 100, i)
		opts = append(opts, o)
		chosen = append(chosen, o.ID)
	}
	extras := multiGroup("Extras", 0, nil, opts...)

	validated, violations, _ := ValidateSelections(
		EffectiveGroupSet{extras},
		Selections{extras.ID: chosen},
	)

	if len(violations) != 0 {
		t.Fatalf("unbounded group must accept any count, got %v", violations)
	}
	if len(validated) != 10 {
		t.Fatalf("expected 10 validated selections, got %d", len(validated))
	}
}

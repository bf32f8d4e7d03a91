package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sajikan-pos/api/internal/enum"
)

// ViolationKind classifies a selection rule violation.
type ViolationKind int

const (
	UnknownOption ViolationKind = iota
	TooManyChoices
	RequiredChoicesMissing
	UnassignedGroup
)

func (k ViolationKind) String() string {
	switch k {
	case UnknownOption:
		return "unknown_option"
	case TooManyChoices:
		return "too_many_choices"
	case RequiredChoicesMissing:
		return "required_choices_missing"
	case UnassignedGroup:
		return "unassigned_group"
	default:
		return "unknown"
	}
}

// Violation reports one selection rule broken for one group.
type Violation struct {
	Kind     ViolationKind
	GroupID  uuid.UUID
	OptionID uuid.UUID // set for UnknownOption only
	Message  string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

// ValidateSelections checks the caller's selections against an effective
// group set. It returns the validated, flattened selections (with option
// price deltas attached for pricing), hard violations, and warnings.
//
// Warnings are non-blocking: a selection for a group that is not in the set
// (stale client catalog) is dropped with an UnassignedGroup warning rather
// than rejecting the whole submission. Duplicate option IDs within a group
// are deduplicated before the cardinality rules are applied. A group absent
// from the input counts as zero selections and only violates when MinSelect
// is positive.
func ValidateSelections(set EffectiveGroupSet, sel Selections) ([]SelectedOption, []Violation, []Violation) {
	var (
		validated  []SelectedOption
		violations []Violation
		warnings   []Violation
	)

	known := make(map[uuid.UUID]bool, len(set))
	for _, g := range set {
		known[g.ID] = true
	}
	for gid := range sel {
		if !known[gid] {
			warnings = append(warnings, Violation{
				Kind:    UnassignedGroup,
				GroupID: gid,
				Message: fmt.Sprintf("group %s is not assigned to this product; selection ignored", gid),
			})
		}
	}

	for _, g := range set {
		chosen := dedupe(sel[g.ID])

		options := make(map[uuid.UUID]ModifierOption, len(g.Options))
		for _, o := range g.Options {
			options[o.ID] = o
		}

		groupOK := true
		for _, oid := range chosen {
			if _, ok := options[oid]; !ok {
				groupOK = false
				violations = append(violations, Violation{
					Kind:     UnknownOption,
					GroupID:  g.ID,
					OptionID: oid,
					Message:  fmt.Sprintf("option %s does not exist in group %q", oid, g.Name),
				})
			}
		}

		max := effectiveMax(g)
		if max >= 0 && int32(len(chosen)) > max {
			groupOK = false
			violations = append(violations, Violation{
				Kind:    TooManyChoices,
				GroupID: g.ID,
				Message: fmt.Sprintf("group %q allows at most %d choice(s), got %d", g.Name, max, len(chosen)),
			})
		}
		if int32(len(chosen)) < g.MinSelect {
			groupOK = false
			violations = append(violations, Violation{
				Kind:    RequiredChoicesMissing,
				GroupID: g.ID,
				Message: fmt.Sprintf("group %q requires at least %d choice(s), got %d", g.Name, g.MinSelect, len(chosen)),
			})
		}

		if !groupOK {
			continue
		}
		for _, oid := range chosen {
			o := options[oid]
			validated = append(validated, SelectedOption{
				GroupID:    g.ID,
				GroupName:  g.Name,
				OptionID:   o.ID,
				OptionName: o.Name,
				PriceDelta: o.PriceDelta,
			})
		}
	}

	return validated, violations, warnings
}

// effectiveMax returns the bound on choices for a group, or -1 for unbounded.
// SINGLE groups are capped at 1 regardless of any stored maximum.
func effectiveMax(g ModifierGroup) int32 {
	if g.SelectionKind == enum.SelectionKindSingle {
		return 1
	}
	if g.MaxSelect != nil {
		return *g.MaxSelect
	}
	return -1
}

// dedupe removes duplicate option IDs preserving first-seen order.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

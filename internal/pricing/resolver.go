package pricing

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sajikan-pos/api/internal/enum"
)

// ResolveEffectiveGroups computes the effective modifier group set for a
// product: the union (keyed by group ID) of groups assigned to the product's
// category and groups assigned to the product directly. A group assigned both
// ways appears once. Inactive groups and options are dropped, options are
// sorted by (sort_order, id), groups by (sort_order, id).
//
// This never fails: an inactive or unassigned product yields an empty set.
func ResolveEffectiveGroups(product Product, assignments []Assignment, groups []ModifierGroup) EffectiveGroupSet {
	if !product.IsActive {
		return nil
	}

	byID := make(map[uuid.UUID]ModifierGroup, len(groups))
	for _, g := range groups {
		if g.IsActive {
			byID[g.ID] = g
		}
	}

	// Union by group ID across both assignment scopes.
	included := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		switch a.EntityKind {
		case enum.AssignmentKindCategory:
			if product.CategoryID != nil && a.EntityID == *product.CategoryID {
				included[a.GroupID] = true
			}
		case enum.AssignmentKindProduct:
			if a.EntityID == product.ID {
				included[a.GroupID] = true
			}
		}
	}

	set := make(EffectiveGroupSet, 0, len(included))
	for id := range included {
		g, ok := byID[id]
		if !ok {
			continue
		}
		g.Options = activeOptions(g.Options)
		set = append(set, g)
	}

	sort.Slice(set, func(i, j int) bool {
		if set[i].SortOrder != set[j].SortOrder {
			return set[i].SortOrder < set[j].SortOrder
		}
		return strings.Compare(set[i].ID.String(), set[j].ID.String()) < 0
	})

	return set
}

// activeOptions filters to active options sorted by (sort_order, id). Returns
// a fresh slice so the caller's catalog data is never mutated.
func activeOptions(options []ModifierOption) []ModifierOption {
	out := make([]ModifierOption, 0, len(options))
	for _, o := range options {
		if o.IsActive {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out
}

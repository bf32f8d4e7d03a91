// Package pricing implements the order pricing engine: resolution of the
// effective modifier groups for a product, validation of customer selections
// against group cardinality rules, and deterministic computation of line and
// order totals. Everything in this package is pure — no I/O, no shared state —
// and safe to call concurrently.
package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog snapshot the engine prices against.
type Product struct {
	ID         uuid.UUID
	CategoryID *uuid.UUID
	Code       string
	Name       string
	BasePrice  decimal.Decimal
	IsActive   bool
}

// ModifierGroup is a named set of customization options with cardinality
// rules. For SINGLE groups the effective maximum is always 1, regardless of
// MaxSelect.
type ModifierGroup struct {
	ID            uuid.UUID
	Name          string
	SelectionKind string // enum.SelectionKindSingle | enum.SelectionKindMultiple
	MinSelect     int32
	MaxSelect     *int32 // nil = unbounded
	SortOrder     int32
	IsActive      bool
	Options       []ModifierOption
}

// ModifierOption is one choice within a group. PriceDelta may be negative.
type ModifierOption struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	PriceDelta decimal.Decimal
	SortOrder  int32
	IsActive   bool
}

// Assignment links a modifier group to a category or a product.
type Assignment struct {
	GroupID    uuid.UUID
	EntityKind string // enum.AssignmentKindCategory | enum.AssignmentKindProduct
	EntityID   uuid.UUID
}

// EffectiveGroupSet is the resolved, ordered, deduplicated list of active
// groups that apply to one product. Derived, never persisted.
type EffectiveGroupSet []ModifierGroup

// Selections maps a group ID to the option IDs chosen for it.
type Selections map[uuid.UUID][]uuid.UUID

// SelectedOption is one validated choice, with the catalog fields captured at
// selection time so receipts survive later catalog edits.
type SelectedOption struct {
	GroupID    uuid.UUID       `json:"group_id"`
	GroupName  string          `json:"group_name"`
	OptionID   uuid.UUID       `json:"option_id"`
	OptionName string          `json:"option_name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// LineItem is one priced, quantified product entry. UnitPrice is immutable
// once computed; quantity only scales LineTotal.
type LineItem struct {
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Selections  []SelectedOption
	Notes       string
}

// Discount describes a resolved order-level discount, from either a coupon or
// a manual cashier entry.
type Discount struct {
	Kind  string // enum.DiscountKindPercent | enum.DiscountKindAmount
	Value decimal.Decimal
	Label string
}

// Totals are the order-level monetary amounts for one submission.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// RoundCurrency rounds to the currency minor unit (2dp) using
// round-half-to-even. Applied only at the presentation/persistence edge,
// never between intermediate steps.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

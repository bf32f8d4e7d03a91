package pricing

import (
	"errors"

	"github.com/sajikan-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrNegativePrice   = errors.New("negative price")
	ErrNegativeTaxRate = errors.New("tax rate must be >= 0")
	ErrInvalidDiscount = errors.New("invalid discount kind")
)

var oneHundred = decimal.NewFromInt(100)

// PriceLine computes one line item from a product and its validated
// selections. The unit price is always recomputed here from catalog prices —
// client-supplied prices are never accepted.
//
//	unitPrice = basePrice + Σ selected option deltas
//	lineTotal = unitPrice * quantity
//
// Negative option deltas are legal and are not floored, but a negative base
// price or a negative resulting unit price is rejected with ErrNegativePrice:
// negative prices must never reach persistence.
func PriceLine(product Product, selections []SelectedOption, quantity int32) (LineItem, error) {
	if quantity <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	if product.BasePrice.IsNegative() {
		return LineItem{}, ErrNegativePrice
	}

	unitPrice := product.BasePrice
	for _, s := range selections {
		unitPrice = unitPrice.Add(s.PriceDelta)
	}
	if unitPrice.IsNegative() {
		return LineItem{}, ErrNegativePrice
	}

	return LineItem{
		ProductID:   product.ID,
		ProductCode: product.Code,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		LineTotal:   unitPrice.Mul(decimal.NewFromInt32(quantity)),
		Selections:  selections,
	}, nil
}

// DiscountAmount resolves a discount descriptor against a subtotal. PERCENT
// computes subtotal*value/100, AMOUNT returns the value directly. The result
// is clamped to [0, subtotal] so a discount can never drive totals negative.
func DiscountAmount(d *Discount, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if d == nil {
		return decimal.Zero, nil
	}

	var amount decimal.Decimal
	switch d.Kind {
	case enum.DiscountKindPercent:
		amount = subtotal.Mul(d.Value).Div(oneHundred)
	case enum.DiscountKindAmount:
		amount = d.Value
	default:
		return decimal.Zero, ErrInvalidDiscount
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount, nil
}

// PriceOrder aggregates line items into order totals:
//
//	subtotal = Σ lineTotal
//	discount = resolved descriptor, clamped to [0, subtotal]
//	tax      = (subtotal - discount) * taxRate / 100
//	total    = (subtotal - discount) + tax
//
// All arithmetic stays in decimal; rounding happens only when the totals are
// persisted or presented. A negative tax rate is a configuration error
// rejected upstream; it is still refused here.
func PriceOrder(lines []LineItem, discount *Discount, taxRate decimal.Decimal) (Totals, error) {
	if taxRate.IsNegative() {
		return Totals{}, ErrNegativeTaxRate
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		if l.UnitPrice.IsNegative() {
			return Totals{}, ErrNegativePrice
		}
		subtotal = subtotal.Add(l.LineTotal)
	}

	discountAmount, err := DiscountAmount(discount, subtotal)
	if err != nil {
		return Totals{}, err
	}

	taxable := subtotal.Sub(discountAmount)
	tax := taxable.Mul(taxRate).Div(oneHundred)

	return Totals{
		Subtotal: subtotal,
		Discount: discountAmount,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}, nil
}

package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sajikan-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

var ErrCouponNotFound = errors.New("coupon not found")

// builtinCoupons is the documented bootstrap/demo fallback, consulted only
// when no coupon definitions are configured at all. Deployments that
// configure the "coupons" setting never hit this table.
var builtinCoupons = map[string]Discount{
	"SAVE10":  {Kind: enum.DiscountKindPercent, Value: decimal.NewFromInt(10), Label: "Save 10%"},
	"WELCOME": {Kind: enum.DiscountKindPercent, Value: decimal.NewFromInt(15), Label: "Welcome 15%"},
}

// couponDef is the structured form a configured definition may take.
type couponDef struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Label string          `json:"label"`
}

// ResolveCoupon looks up a code against externally supplied definitions and
// returns the discount descriptor it encodes. Codes are canonicalized
// (trimmed, upper-cased) before lookup. A definition may be:
//
//   - a structured record: {"type":"percent","value":10,"label":"Save 10%"}
//   - a bare percentage string: "10%"
//   - a bare amount string: "5.00"
//
// There are no implicit eligibility rules (minimum spend, expiry); if a
// deployment needs them they become explicit fields validated here.
func ResolveCoupon(defs map[string]string, code string) (Discount, error) {
	canonical := strings.ToUpper(strings.TrimSpace(code))
	if canonical == "" {
		return Discount{}, ErrCouponNotFound
	}

	if len(defs) == 0 {
		d, ok := builtinCoupons[canonical]
		if !ok {
			return Discount{}, ErrCouponNotFound
		}
		return d, nil
	}

	raw, ok := lookupCanonical(defs, canonical)
	if !ok {
		return Discount{}, ErrCouponNotFound
	}

	d, err := parseCouponDef(raw)
	if err != nil {
		return Discount{}, fmt.Errorf("coupon %s: %w", canonical, err)
	}
	if d.Label == "" {
		d.Label = canonical
	}
	return d, nil
}

// lookupCanonical matches the canonicalized code against definition keys,
// which are themselves canonicalized so configured casing does not matter.
func lookupCanonical(defs map[string]string, canonical string) (string, bool) {
	for k, v := range defs {
		if strings.ToUpper(strings.TrimSpace(k)) == canonical {
			return v, true
		}
	}
	return "", false
}

func parseCouponDef(raw string) (Discount, error) {
	raw = strings.TrimSpace(raw)

	// Structured JSON record.
	if strings.HasPrefix(raw, "{") {
		var def couponDef
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return Discount{}, fmt.Errorf("malformed definition: %w", err)
		}
		value, err := parseDefValue(def.Value)
		if err != nil {
			return Discount{}, err
		}
		switch strings.ToUpper(def.Type) {
		case enum.DiscountKindPercent, "PERCENTAGE":
			return Discount{Kind: enum.DiscountKindPercent, Value: value, Label: def.Label}, nil
		case enum.DiscountKindAmount, "FIXED", "FIXED_AMOUNT":
			return Discount{Kind: enum.DiscountKindAmount, Value: value, Label: def.Label}, nil
		default:
			return Discount{}, fmt.Errorf("unknown discount type %q", def.Type)
		}
	}

	// Bare percentage string: "10%".
	if strings.HasSuffix(raw, "%") {
		value, err := decimal.NewFromString(strings.TrimSuffix(raw, "%"))
		if err != nil {
			return Discount{}, fmt.Errorf("malformed percentage %q", raw)
		}
		return Discount{Kind: enum.DiscountKindPercent, Value: value}, nil
	}

	// Bare numeric string: fixed amount.
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return Discount{}, fmt.Errorf("malformed amount %q", raw)
	}
	return Discount{Kind: enum.DiscountKindAmount, Value: value}, nil
}

// parseDefValue accepts the value as either a JSON number or a quoted string.
func parseDefValue(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, errors.New("missing value")
	}
	s := strings.Trim(string(raw), `"`)
	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed value %q", s)
	}
	return value, nil
}

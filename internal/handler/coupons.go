package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sajikan-pos/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// CouponResolver resolves coupon codes against the configured definitions.
// Satisfied by *service.OrderService.
type CouponResolver interface {
	ValidateCoupon(ctx context.Context, code string) (*pricing.Discount, error)
}

// CouponHandler handles coupon validation.
type CouponHandler struct {
	resolver CouponResolver
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(resolver CouponResolver) *CouponHandler {
	return &CouponHandler{resolver: resolver}
}

// RegisterRoutes registers coupon endpoints on the given Chi router.
func (h *CouponHandler) RegisterRoutes(r chi.Router) {
	r.Post("/validate", h.Validate)
}

// --- Request / Response types ---

type validateCouponRequest struct {
	Code     string `json:"code"`
	Subtotal string `json:"subtotal"`
}

type validateCouponResponse struct {
	Code     string `json:"code"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Label    string `json:"label"`
	Discount string `json:"discount,omitempty"`
}

// --- Handlers ---

// Validate resolves a coupon code. When a subtotal is supplied, the computed
// discount against it is included in the response.
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	d, err := h.resolver.ValidateCoupon(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, pricing.ErrCouponNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "coupon not found"})
			return
		}
		// A coupon that exists but cannot be parsed is a configuration
		// problem, not a client error.
		log.Printf("ERROR: validate coupon: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := validateCouponResponse{
		Code:  req.Code,
		Kind:  d.Kind,
		Value: d.Value.String(),
		Label: d.Label,
	}

	if req.Subtotal != "" {
		subtotal, err := decimal.NewFromString(req.Subtotal)
		if err != nil || subtotal.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subtotal must be a non-negative decimal"})
			return
		}
		amount, err := pricing.DiscountAmount(d, subtotal)
		if err != nil {
			log.Printf("ERROR: compute discount: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		resp.Discount = formatMoney(amount)
	}

	writeJSON(w, http.StatusOK, resp)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajikan-pos/api/internal/database"
	"github.com/sajikan-pos/api/internal/pricing"
	"github.com/sajikan-pos/api/internal/service"
	"github.com/shopspring/decimal"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]database.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// ProductResolver resolves modifiers and quotes lines for a product.
// Satisfied by *service.OrderService.
type ProductResolver interface {
	ResolveModifiers(ctx context.Context, productID uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error)
	QuoteLine(ctx context.Context, productID uuid.UUID, selections map[string][]string, quantity int32) (pricing.LineItem, []pricing.Violation, error)
}

// ProductHandler handles product CRUD, modifier resolution, and quoting.
type ProductHandler struct {
	store    ProductStore
	resolver ProductResolver
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore, resolver ProductResolver) *ProductHandler {
	return &ProductHandler{store: store, resolver: resolver}
}

// RegisterRoutes registers product endpoints on the given Chi router.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{pid}", h.Update)
	r.Delete("/{pid}", h.Delete)
	r.Get("/{pid}/modifiers", h.Modifiers)
	r.Post("/{pid}/quote", h.Quote)
}

// --- Request / Response types ---

type productRequest struct {
	CategoryID string `json:"category_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	BasePrice  string `json:"base_price"`
	SortOrder  int32  `json:"sort_order"`
}

type productResponse struct {
	ID         uuid.UUID  `json:"id"`
	CategoryID *uuid.UUID `json:"category_id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	BasePrice  string     `json:"base_price"`
	SortOrder  int32      `json:"sort_order"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toProductResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:        p.ID,
		Code:      p.Code,
		Name:      p.Name,
		BasePrice: formatMoney(numericToDecimal(p.BasePrice)),
		SortOrder: p.SortOrder,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
	if p.CategoryID.Valid {
		id := uuid.UUID(p.CategoryID.Bytes)
		resp.CategoryID = &id
	}
	return resp
}

type modifierOptionResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceDelta string    `json:"price_delta"`
	SortOrder  int32     `json:"sort_order"`
}

type modifierGroupResponse struct {
	ID            uuid.UUID                `json:"id"`
	Name          string                   `json:"name"`
	SelectionKind string                   `json:"selection_kind"`
	MinSelect     int32                    `json:"min_select"`
	MaxSelect     *int32                   `json:"max_select"`
	SortOrder     int32                    `json:"sort_order"`
	Options       []modifierOptionResponse `json:"options"`
}

func toGroupSetResponse(set pricing.EffectiveGroupSet) []modifierGroupResponse {
	resp := make([]modifierGroupResponse, len(set))
	for i, g := range set {
		options := make([]modifierOptionResponse, len(g.Options))
		for j, o := range g.Options {
			options[j] = modifierOptionResponse{
				ID:         o.ID,
				Name:       o.Name,
				PriceDelta: formatMoney(o.PriceDelta),
				SortOrder:  o.SortOrder,
			}
		}
		resp[i] = modifierGroupResponse{
			ID:            g.ID,
			Name:          g.Name,
			SelectionKind: g.SelectionKind,
			MinSelect:     g.MinSelect,
			MaxSelect:     g.MaxSelect,
			SortOrder:     g.SortOrder,
			Options:       options,
		}
	}
	return resp
}

type quoteRequest struct {
	Quantity   int32               `json:"quantity"`
	Selections map[string][]string `json:"selections"`
}

type quoteResponse struct {
	ProductID  uuid.UUID                `json:"product_id"`
	Quantity   int32                    `json:"quantity"`
	UnitPrice  string                   `json:"unit_price"`
	LineTotal  string                   `json:"line_total"`
	Selections []pricing.SelectedOption `json:"selections"`
	Warnings   []violationResponse      `json:"warnings,omitempty"`
}

type violationResponse struct {
	Kind     string     `json:"kind"`
	GroupID  uuid.UUID  `json:"group_id"`
	OptionID *uuid.UUID `json:"option_id,omitempty"`
	Message  string     `json:"message"`
}

func toViolationResponses(violations []pricing.Violation) []violationResponse {
	resp := make([]violationResponse, len(violations))
	for i, v := range violations {
		resp[i] = violationResponse{
			Kind:    v.Kind.String(),
			GroupID: v.GroupID,
			Message: v.Message,
		}
		if v.OptionID != uuid.Nil {
			id := v.OptionID
			resp[i].OptionID = &id
		}
	}
	return resp
}

// --- Handlers ---

// List returns all active products.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create adds a new product.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, ok := h.productParams(w, req)
	if !ok {
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		CategoryID: params.categoryID,
		Code:       req.Code,
		Name:       req.Name,
		BasePrice:  params.basePrice,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "product code already exists"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Update modifies an existing product.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, ok := h.productParams(w, req)
	if !ok {
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		CategoryID: params.categoryID,
		Code:       req.Code,
		Name:       req.Name,
		BasePrice:  params.basePrice,
		SortOrder:  req.SortOrder,
		ID:         productID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Delete soft-deletes a product by setting is_active=false.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	_, err = h.store.SoftDeleteProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Modifiers returns the product's effective modifier group set.
func (h *ProductHandler) Modifiers(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	_, set, err := h.resolver.ResolveModifiers(r.Context(), productID)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: resolve modifiers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toGroupSetResponse(set))
}

// Quote validates and prices a single line without persisting anything.
func (h *ProductHandler) Quote(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	line, warnings, err := h.resolver.QuoteLine(r.Context(), productID, req.Selections, req.Quantity)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":      "invalid selections",
				"violations": toViolationResponses(vErr.Violations),
			})
		case errors.Is(err, service.ErrProductNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		case errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrInvalidGroupID),
			errors.Is(err, service.ErrInvalidOptionID):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: quote line: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		ProductID:  line.ProductID,
		Quantity:   line.Quantity,
		UnitPrice:  formatMoney(line.UnitPrice),
		LineTotal:  formatMoney(line.LineTotal),
		Selections: line.Selections,
		Warnings:   toViolationResponses(warnings),
	})
}

// --- Helpers ---

type parsedProductParams struct {
	categoryID pgtype.UUID
	basePrice  pgtype.Numeric
}

func (h *ProductHandler) productParams(w http.ResponseWriter, req productRequest) (parsedProductParams, bool) {
	if req.Code == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and name are required"})
		return parsedProductParams{}, false
	}

	categoryID := pgtype.UUID{}
	if req.CategoryID != "" {
		cid, err := uuid.Parse(req.CategoryID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category_id"})
			return parsedProductParams{}, false
		}
		categoryID = pgtype.UUID{Bytes: cid, Valid: true}
	}

	price, err := decimal.NewFromString(req.BasePrice)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base_price must be a non-negative decimal"})
		return parsedProductParams{}, false
	}

	return parsedProductParams{
		categoryID: categoryID,
		basePrice:  decimalToNumeric(price),
	}, true
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajikan-pos/api/internal/database"
	"github.com/sajikan-pos/api/internal/enum"
	"github.com/sajikan-pos/api/internal/middleware"
	"github.com/sajikan-pos/api/internal/pricing"
	"github.com/sajikan-pos/api/internal/service"
	"github.com/sajikan-pos/api/internal/ws"
	"github.com/shopspring/decimal"
)

// OrderSubmitter runs the submission pipeline.
// Satisfied by *service.OrderService.
type OrderSubmitter interface {
	Submit(ctx context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResult, error)
}

// OrderStore defines the database methods needed by order read endpoints.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// OrderBroadcaster pushes order events to connected clients.
// Satisfied by *ws.Hub.
type OrderBroadcaster interface {
	BroadcastOrderEvent(tableNumber string, event ws.Event)
}

// OrderHandler handles order submission and read endpoints.
type OrderHandler struct {
	submitter OrderSubmitter
	store     OrderStore
	hub       OrderBroadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(submitter OrderSubmitter, store OrderStore, hub OrderBroadcaster) *OrderHandler {
	return &OrderHandler{submitter: submitter, store: store, hub: hub}
}

// RegisterRoutes registers order read endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/cancel", h.Cancel)
	r.Delete("/{id}", h.Cancel)
}

// RegisterTableRoutes registers the table-scoped submit endpoint.
// Expected to be mounted at /tables.
func (h *OrderHandler) RegisterTableRoutes(r chi.Router) {
	r.Post("/{table}/orders", h.Submit)
}

// --- Request / Response types ---

type submitItemRequest struct {
	ProductID  string              `json:"product_id"`
	Quantity   int32               `json:"quantity"`
	Selections map[string][]string `json:"selections"`
	Notes      string              `json:"notes"`
}

// discountRequest is a manual cashier-entered discount. Ignored when the
// submission also carries a coupon that resolves.
type discountRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type submitOrderRequest struct {
	CouponCode         string              `json:"coupon_code"`
	AllowCouponFailure bool                `json:"allow_coupon_failure"`
	Discount           *discountRequest    `json:"discount"`
	Items              []submitItemRequest `json:"items"`
}

type orderResponse struct {
	ID             uuid.UUID `json:"id"`
	OrderNumber    string    `json:"order_number"`
	TableNumber    string    `json:"table_number"`
	Status         string    `json:"status"`
	Subtotal       string    `json:"subtotal"`
	DiscountAmount string    `json:"discount_amount"`
	DiscountLabel  *string   `json:"discount_label"`
	TaxAmount      string    `json:"tax_amount"`
	TotalAmount    string    `json:"total_amount"`
	PaidAmount     string    `json:"paid_amount"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		TableNumber:    o.TableNumber,
		Status:         o.Status,
		Subtotal:       formatMoney(numericToDecimal(o.Subtotal)),
		DiscountAmount: formatMoney(numericToDecimal(o.DiscountAmount)),
		TaxAmount:      formatMoney(numericToDecimal(o.TaxAmount)),
		TotalAmount:    formatMoney(numericToDecimal(o.TotalAmount)),
		PaidAmount:     formatMoney(numericToDecimal(o.PaidAmount)),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.DiscountLabel.Valid {
		resp.DiscountLabel = &o.DiscountLabel.String
	}
	return resp
}

type orderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   string          `json:"unit_price"`
	LineTotal   string          `json:"line_total"`
	Selections  json.RawMessage `json:"selections"`
	Notes       *string         `json:"notes"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:          it.ID,
		ProductID:   it.ProductID,
		ProductCode: it.ProductCode,
		ProductName: it.ProductName,
		Quantity:    it.Quantity,
		UnitPrice:   formatMoney(numericToDecimal(it.UnitPrice)),
		LineTotal:   formatMoney(numericToDecimal(it.LineTotal)),
		Selections:  json.RawMessage(it.Selections),
		CreatedAt:   it.CreatedAt,
	}
	if resp.Selections == nil {
		resp.Selections = json.RawMessage("[]")
	}
	if it.Notes.Valid {
		resp.Notes = &it.Notes.String
	}
	return resp
}

type submitOrderResponse struct {
	Order       orderResponse       `json:"order"`
	Items       []orderItemResponse `json:"items"`
	Appended    bool                `json:"appended"`
	Batch       batchTotals         `json:"batch"`
	Warnings    []violationResponse `json:"warnings,omitempty"`
	CouponError string              `json:"coupon_error,omitempty"`
}

type batchTotals struct {
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// --- Handlers ---

// Submit applies an order batch to the table.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var manual *pricing.Discount
	if req.Discount != nil {
		kind := strings.ToUpper(strings.TrimSpace(req.Discount.Kind))
		if kind != enum.DiscountKindPercent && kind != enum.DiscountKindAmount {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "discount kind must be PERCENT or AMOUNT"})
			return
		}
		value, err := decimal.NewFromString(req.Discount.Value)
		if err != nil || value.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount value"})
			return
		}
		manual = &pricing.Discount{Kind: kind, Value: value}
	}

	items := make([]service.SubmitItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.SubmitItemRequest{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			Selections: it.Selections,
			Notes:      it.Notes,
		}
	}

	result, err := h.submitter.Submit(r.Context(), service.SubmitOrderRequest{
		TableNumber:        table,
		CreatedBy:          claims.UserID,
		CouponCode:         req.CouponCode,
		AllowCouponFailure: req.AllowCouponFailure,
		Discount:           manual,
		Items:              items,
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	itemsResp := make([]orderItemResponse, len(result.Items))
	for i, it := range result.Items {
		itemsResp[i] = toOrderItemResponse(it)
	}

	resp := submitOrderResponse{
		Order:    toOrderResponse(result.Order),
		Items:    itemsResp,
		Appended: result.Appended,
		Batch: batchTotals{
			Subtotal: formatMoney(result.Batch.Subtotal),
			Discount: formatMoney(result.Batch.Discount),
			Tax:      formatMoney(result.Batch.Tax),
			Total:    formatMoney(result.Batch.Total),
		},
		Warnings:    toViolationResponses(result.Warnings),
		CouponError: result.CouponError,
	}

	h.broadcast(table, "order.submitted", resp.Order)

	status := http.StatusCreated
	if result.Appended {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *OrderHandler) writeSubmitError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      "invalid selections",
			"violations": toViolationResponses(vErr.Violations),
		})
	case errors.Is(err, service.ErrCouponRejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyTable),
		errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidProductID),
		errors.Is(err, service.ErrInvalidGroupID),
		errors.Is(err, service.ErrInvalidOptionID),
		errors.Is(err, pricing.ErrInvalidDiscount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		// Retries exhausted while racing another writer for the table.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "table is busy, retry the submission"})
	default:
		log.Printf("ERROR: submit order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// List returns orders, optionally filtered by status and table.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := pgtype.Text{}
	if s := r.URL.Query().Get("status"); s != "" {
		status = pgtype.Text{String: s, Valid: true}
	}
	table := pgtype.Text{}
	if t := r.URL.Query().Get("table"); t != "" {
		table = pgtype.Text{String: t, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		Status:      status,
		TableNumber: table,
		Limit:       100,
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one order with its items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	itemsResp := make([]orderItemResponse, len(items))
	for i, it := range items {
		itemsResp[i] = toOrderItemResponse(it)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order": toOrderResponse(order),
		"items": itemsResp,
	})
}

// Cancel marks an open order as cancelled.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.CancelOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found or not open"})
			return
		}
		log.Printf("ERROR: cancel order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.broadcast(order.TableNumber, "order.cancelled", toOrderResponse(order))
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) broadcast(table, eventType string, payload interface{}) {
	if h.hub == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.hub.BroadcastOrderEvent(table, ws.Event{Type: eventType, Payload: raw})
}

// --- Shared helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(pricing.RoundCurrency(d).StringFixed(2))
	return n
}

// formatMoney renders a monetary amount at the currency minor unit, rounding
// half to even. All response money fields go through here.
func formatMoney(d decimal.Decimal) string {
	return pricing.RoundCurrency(d).StringFixed(2)
}

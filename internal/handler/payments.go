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
	"github.com/sajikan-pos/api/internal/enum"
	"github.com/sajikan-pos/api/internal/middleware"
	"github.com/sajikan-pos/api/internal/service"
	"github.com/sajikan-pos/api/internal/ws"
	"github.com/shopspring/decimal"
)

// PaymentStore defines the database methods needed by payment handlers.
type PaymentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
	AddOrderPaidAmount(ctx context.Context, arg database.AddOrderPaidAmountParams) (database.Order, error)
	CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	store    PaymentStore
	pool     service.TxBeginner
	newStore NewPaymentStore
	hub      OrderBroadcaster
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(store PaymentStore, pool service.TxBeginner, newStore NewPaymentStore, hub OrderBroadcaster) *PaymentHandler {
	return &PaymentHandler{store: store, pool: pool, newStore: newStore, hub: hub}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /orders/{id}/payments
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Add)
	r.Get("/", h.List)
}

// --- Request / Response types ---

type addPaymentRequest struct {
	PaymentMethod   string `json:"payment_method"`
	Amount          string `json:"amount"`
	AmountReceived  string `json:"amount_received"`
	ReferenceNumber string `json:"reference_number"`
}

type paymentResponse struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	PaymentMethod   string    `json:"payment_method"`
	Amount          string    `json:"amount"`
	AmountReceived  *string   `json:"amount_received"`
	ChangeAmount    *string   `json:"change_amount"`
	ReferenceNumber *string   `json:"reference_number"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPaymentResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Amount:        formatMoney(numericToDecimal(p.Amount)),
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
	}
	if p.AmountReceived.Valid {
		v := formatMoney(numericToDecimal(p.AmountReceived))
		resp.AmountReceived = &v
	}
	if p.ChangeAmount.Valid {
		v := formatMoney(numericToDecimal(p.ChangeAmount))
		resp.ChangeAmount = &v
	}
	if p.ReferenceNumber.Valid {
		resp.ReferenceNumber = &p.ReferenceNumber.String
	}
	return resp
}

// --- Handlers ---

// Add handles POST /orders/{id}/payments. Fully paying an order completes it.
func (h *PaymentHandler) Add(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req addPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !isValidPaymentMethod(req.PaymentMethod) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
		return
	}

	if req.Amount == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount is required"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}

	// For CASH payments, validate amount_received
	var amountReceived pgtype.Numeric
	var changeAmount pgtype.Numeric
	if req.PaymentMethod == enum.PaymentMethodCash {
		if req.AmountReceived == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount_received is required for CASH payments"})
			return
		}
		received, err := decimal.NewFromString(req.AmountReceived)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount_received"})
			return
		}
		if received.LessThan(amount) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount_received must be >= amount"})
			return
		}
		amountReceived = decimalToNumeric(received)
		changeAmount = decimalToNumeric(received.Sub(amount))
	}

	var referenceNumber pgtype.Text
	if req.ReferenceNumber != "" {
		referenceNumber = pgtype.Text{String: req.ReferenceNumber, Valid: true}
	}

	// Begin transaction BEFORE reading order state to prevent TOCTOU races.
	// Two concurrent payments could both pass validation outside a tx, causing overpayment.
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx for add payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context())

	txStore := h.newStore(tx)

	// Lock the order row to serialize concurrent payment inserts
	order, err := txStore.GetOrderForUpdate(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for add payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if order.Status != enum.OrderStatusOpen {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not open"})
		return
	}

	totalPaid, err := txStore.SumPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: sum payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	totalPaidDecimal := numericToDecimal(totalPaid)
	orderTotal := numericToDecimal(order.TotalAmount)

	if totalPaidDecimal.GreaterThanOrEqual(orderTotal) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already fully paid"})
		return
	}

	newTotalPaid := totalPaidDecimal.Add(amount)
	if newTotalPaid.GreaterThan(orderTotal) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "payment exceeds remaining balance"})
		return
	}

	payment, err := txStore.CreatePayment(r.Context(), database.CreatePaymentParams{
		OrderID:         orderID,
		PaymentMethod:   req.PaymentMethod,
		Amount:          decimalToNumeric(amount),
		AmountReceived:  amountReceived,
		ChangeAmount:    changeAmount,
		ReferenceNumber: referenceNumber,
		ProcessedBy:     claims.UserID,
	})
	if err != nil {
		log.Printf("ERROR: create payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	updatedOrder, err := txStore.AddOrderPaidAmount(r.Context(), database.AddOrderPaidAmountParams{
		Amount: decimalToNumeric(amount),
		ID:     orderID,
	})
	if err != nil {
		log.Printf("ERROR: add paid amount: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Auto-complete the order once fully paid
	completed := false
	if newTotalPaid.GreaterThanOrEqual(orderTotal) {
		updatedOrder, err = txStore.CompleteOrder(r.Context(), orderID)
		if err != nil {
			log.Printf("ERROR: complete order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		completed = true
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx for add payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if completed && h.hub != nil {
		payload, err := json.Marshal(toOrderResponse(updatedOrder))
		if err == nil {
			h.hub.BroadcastOrderEvent(updatedOrder.TableNumber, ws.Event{Type: "order.completed", Payload: payload})
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"payment": toPaymentResponse(payment),
		"order":   toOrderResponse(updatedOrder),
	})
}

// List handles GET /orders/{id}/payments.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if _, err := h.store.GetOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func isValidPaymentMethod(pm string) bool {
	switch pm {
	case enum.PaymentMethodCash,
		enum.PaymentMethodQRIS,
		enum.PaymentMethodTransfer:
		return true
	}
	return false
}

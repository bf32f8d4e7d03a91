package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/sajikan-pos/api/internal/database"
	"github.com/sajikan-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// SettingStore defines the database methods needed by settings handlers.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	UpsertSetting(ctx context.Context, arg database.UpsertSettingParams) error
}

// SettingHandler handles the pricing configuration endpoints.
type SettingHandler struct {
	store SettingStore
}

// NewSettingHandler creates a new SettingHandler.
func NewSettingHandler(store SettingStore) *SettingHandler {
	return &SettingHandler{store: store}
}

// RegisterRoutes registers settings endpoints on the given Chi router.
func (h *SettingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{key}", h.Get)
	r.Put("/{key}", h.Put)
}

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type putSettingRequest struct {
	Value string `json:"value"`
}

// Get returns one setting's raw value.
func (h *SettingHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !isKnownSetting(key) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown setting"})
		return
	}

	value, err := h.store.GetSetting(r.Context(), key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "setting not configured"})
			return
		}
		log.Printf("ERROR: get setting: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}

// Put validates and stores a setting value.
func (h *SettingHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !isKnownSetting(key) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown setting"})
		return
	}

	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if msg := validateSettingValue(key, req.Value); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	if err := h.store.UpsertSetting(r.Context(), database.UpsertSettingParams{
		Key:   key,
		Value: req.Value,
	}); err != nil {
		log.Printf("ERROR: upsert setting: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: req.Value})
}

// --- Helpers ---

func isKnownSetting(key string) bool {
	switch key {
	case enum.SettingTaxRate, enum.SettingCoupons:
		return true
	}
	return false
}

// validateSettingValue rejects values that would later break order pricing.
func validateSettingValue(key, value string) string {
	switch key {
	case enum.SettingTaxRate:
		rate, err := decimal.NewFromString(value)
		if err != nil || rate.IsNegative() {
			return "tax_rate must be a non-negative decimal percentage"
		}
	case enum.SettingCoupons:
		var defs map[string]string
		if err := json.Unmarshal([]byte(value), &defs); err != nil {
			return "coupons must be a JSON object mapping codes to definitions"
		}
	}
	return ""
}

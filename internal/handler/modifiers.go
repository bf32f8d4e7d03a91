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
	"github.com/shopspring/decimal"
)

// ModifierStore defines the database methods needed by modifier handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ModifierStore interface {
	ListModifierGroups(ctx context.Context) ([]database.ModifierGroup, error)
	GetModifierGroup(ctx context.Context, id uuid.UUID) (database.ModifierGroup, error)
	CreateModifierGroup(ctx context.Context, arg database.CreateModifierGroupParams) (database.ModifierGroup, error)
	UpdateModifierGroup(ctx context.Context, arg database.UpdateModifierGroupParams) (database.ModifierGroup, error)
	SoftDeleteModifierGroup(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	ListOptionsByGroup(ctx context.Context, groupID uuid.UUID) ([]database.ModifierOption, error)
	CreateModifierOption(ctx context.Context, arg database.CreateModifierOptionParams) (database.ModifierOption, error)
	UpdateModifierOption(ctx context.Context, arg database.UpdateModifierOptionParams) (database.ModifierOption, error)
	SoftDeleteModifierOption(ctx context.Context, arg database.SoftDeleteModifierOptionParams) (uuid.UUID, error)
	ListAssignmentsByGroup(ctx context.Context, groupID uuid.UUID) ([]database.ModifierAssignment, error)
	CreateAssignment(ctx context.Context, arg database.CreateAssignmentParams) (database.ModifierAssignment, error)
	DeleteAssignment(ctx context.Context, arg database.DeleteAssignmentParams) (uuid.UUID, error)
}

// ModifierHandler handles modifier group, option, and assignment endpoints.
type ModifierHandler struct {
	store ModifierStore
}

// NewModifierHandler creates a new ModifierHandler.
func NewModifierHandler(store ModifierStore) *ModifierHandler {
	return &ModifierHandler{store: store}
}

// RegisterRoutes registers modifier endpoints on the given Chi router.
func (h *ModifierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListGroups)
	r.Post("/", h.CreateGroup)
	r.Put("/{gid}", h.UpdateGroup)
	r.Delete("/{gid}", h.DeleteGroup)

	r.Get("/{gid}/options", h.ListOptions)
	r.Post("/{gid}/options", h.CreateOption)
	r.Put("/{gid}/options/{oid}", h.UpdateOption)
	r.Delete("/{gid}/options/{oid}", h.DeleteOption)

	r.Get("/{gid}/assignments", h.ListAssignments)
	r.Post("/{gid}/assignments", h.CreateAssignment)
	r.Delete("/{gid}/assignments/{aid}", h.DeleteAssignment)
}

// --- Request / Response types ---

type modifierGroupRequest struct {
	Name          string `json:"name"`
	SelectionKind string `json:"selection_kind"`
	MinSelect     int32  `json:"min_select"`
	MaxSelect     *int32 `json:"max_select"`
	SortOrder     int32  `json:"sort_order"`
}

type modifierGroupRow struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	SelectionKind string    `json:"selection_kind"`
	MinSelect     int32     `json:"min_select"`
	MaxSelect     *int32    `json:"max_select"`
	SortOrder     int32     `json:"sort_order"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func toGroupRow(g database.ModifierGroup) modifierGroupRow {
	row := modifierGroupRow{
		ID:            g.ID,
		Name:          g.Name,
		SelectionKind: g.SelectionKind,
		MinSelect:     g.MinSelect,
		SortOrder:     g.SortOrder,
		IsActive:      g.IsActive,
		CreatedAt:     g.CreatedAt,
	}
	if g.MaxSelect.Valid {
		v := g.MaxSelect.Int32
		row.MaxSelect = &v
	}
	return row
}

type modifierOptionRequest struct {
	Name       string `json:"name"`
	PriceDelta string `json:"price_delta"`
	SortOrder  int32  `json:"sort_order"`
}

type modifierOptionRow struct {
	ID         uuid.UUID `json:"id"`
	GroupID    uuid.UUID `json:"group_id"`
	Name       string    `json:"name"`
	PriceDelta string    `json:"price_delta"`
	SortOrder  int32     `json:"sort_order"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func toOptionRow(o database.ModifierOption) modifierOptionRow {
	return modifierOptionRow{
		ID:         o.ID,
		GroupID:    o.GroupID,
		Name:       o.Name,
		PriceDelta: formatMoney(numericToDecimal(o.PriceDelta)),
		SortOrder:  o.SortOrder,
		IsActive:   o.IsActive,
		CreatedAt:  o.CreatedAt,
	}
}

type assignmentRequest struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
}

type assignmentRow struct {
	ID         uuid.UUID `json:"id"`
	GroupID    uuid.UUID `json:"group_id"`
	EntityKind string    `json:"entity_kind"`
	EntityID   uuid.UUID `json:"entity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAssignmentRow(a database.ModifierAssignment) assignmentRow {
	return assignmentRow{
		ID:         a.ID,
		GroupID:    a.GroupID,
		EntityKind: a.EntityKind,
		EntityID:   a.EntityID,
		CreatedAt:  a.CreatedAt,
	}
}

// --- Group handlers ---

// ListGroups returns all active modifier groups.
func (h *ModifierHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListModifierGroups(r.Context())
	if err != nil {
		log.Printf("ERROR: list modifier groups: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]modifierGroupRow, len(groups))
	for i, g := range groups {
		resp[i] = toGroupRow(g)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateGroup adds a new modifier group.
func (h *ModifierHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req modifierGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !h.validGroupRequest(w, req) {
		return
	}

	group, err := h.store.CreateModifierGroup(r.Context(), database.CreateModifierGroupParams{
		Name:          req.Name,
		SelectionKind: req.SelectionKind,
		MinSelect:     req.MinSelect,
		MaxSelect:     toInt4(req.MaxSelect),
		SortOrder:     req.SortOrder,
	})
	if err != nil {
		log.Printf("ERROR: create modifier group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toGroupRow(group))
}

// UpdateGroup modifies an existing modifier group.
func (h *ModifierHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	var req modifierGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !h.validGroupRequest(w, req) {
		return
	}

	group, err := h.store.UpdateModifierGroup(r.Context(), database.UpdateModifierGroupParams{
		Name:          req.Name,
		SelectionKind: req.SelectionKind,
		MinSelect:     req.MinSelect,
		MaxSelect:     toInt4(req.MaxSelect),
		SortOrder:     req.SortOrder,
		ID:            groupID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "modifier group not found"})
			return
		}
		log.Printf("ERROR: update modifier group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toGroupRow(group))
}

// DeleteGroup soft-deletes a modifier group. Order snapshots keep their
// option data, so existing orders are unaffected.
func (h *ModifierHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	_, err = h.store.SoftDeleteModifierGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "modifier group not found"})
			return
		}
		log.Printf("ERROR: delete modifier group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Option handlers ---

// ListOptions returns the active options of a group.
func (h *ModifierHandler) ListOptions(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	options, err := h.store.ListOptionsByGroup(r.Context(), groupID)
	if err != nil {
		log.Printf("ERROR: list modifier options: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]modifierOptionRow, len(options))
	for i, o := range options {
		resp[i] = toOptionRow(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateOption adds an option to a group.
func (h *ModifierHandler) CreateOption(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	var req modifierOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	delta, ok := h.parseDelta(w, req)
	if !ok {
		return
	}

	// Verify the group exists before attaching options.
	if _, err := h.store.GetModifierGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "modifier group not found"})
			return
		}
		log.Printf("ERROR: get modifier group: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	option, err := h.store.CreateModifierOption(r.Context(), database.CreateModifierOptionParams{
		GroupID:    groupID,
		Name:       req.Name,
		PriceDelta: decimalToNumeric(delta),
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		log.Printf("ERROR: create modifier option: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toOptionRow(option))
}

// UpdateOption modifies an option within its group.
func (h *ModifierHandler) UpdateOption(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}
	optionID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid option ID"})
		return
	}

	var req modifierOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	delta, ok := h.parseDelta(w, req)
	if !ok {
		return
	}

	option, err := h.store.UpdateModifierOption(r.Context(), database.UpdateModifierOptionParams{
		Name:       req.Name,
		PriceDelta: decimalToNumeric(delta),
		SortOrder:  req.SortOrder,
		ID:         optionID,
		GroupID:    groupID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "modifier option not found"})
			return
		}
		log.Printf("ERROR: update modifier option: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOptionRow(option))
}

// DeleteOption soft-deletes an option within its group.
func (h *ModifierHandler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}
	optionID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid option ID"})
		return
	}

	_, err = h.store.SoftDeleteModifierOption(r.Context(), database.SoftDeleteModifierOptionParams{
		ID:      optionID,
		GroupID: groupID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "modifier option not found"})
			return
		}
		log.Printf("ERROR: delete modifier option: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Assignment handlers ---

// ListAssignments returns the group's assignments.
func (h *ModifierHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	assignments, err := h.store.ListAssignmentsByGroup(r.Context(), groupID)
	if err != nil {
		log.Printf("ERROR: list assignments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]assignmentRow, len(assignments))
	for i, a := range assignments {
		resp[i] = toAssignmentRow(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateAssignment attaches the group to a category or product.
func (h *ModifierHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	switch req.EntityKind {
	case enum.AssignmentKindCategory, enum.AssignmentKindProduct:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity_kind must be CATEGORY or PRODUCT"})
		return
	}

	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid entity_id"})
		return
	}

	assignment, err := h.store.CreateAssignment(r.Context(), database.CreateAssignmentParams{
		GroupID:    groupID,
		EntityKind: req.EntityKind,
		EntityID:   entityID,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "assignment already exists"})
			return
		}
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "group or entity not found"})
			return
		}
		log.Printf("ERROR: create assignment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toAssignmentRow(assignment))
}

// DeleteAssignment detaches the group from a category or product.
func (h *ModifierHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "gid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group ID"})
		return
	}
	assignmentID, err := uuid.Parse(chi.URLParam(r, "aid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignment ID"})
		return
	}

	_, err = h.store.DeleteAssignment(r.Context(), database.DeleteAssignmentParams{
		ID:      assignmentID,
		GroupID: groupID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "assignment not found"})
			return
		}
		log.Printf("ERROR: delete assignment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *ModifierHandler) validGroupRequest(w http.ResponseWriter, req modifierGroupRequest) bool {
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return false
	}
	switch req.SelectionKind {
	case enum.SelectionKindSingle, enum.SelectionKindMultiple:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "selection_kind must be SINGLE or MULTIPLE"})
		return false
	}
	if req.MinSelect < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "min_select must be >= 0"})
		return false
	}
	if req.MaxSelect != nil && *req.MaxSelect < req.MinSelect {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_select must be >= min_select"})
		return false
	}
	return true
}

func (h *ModifierHandler) parseDelta(w http.ResponseWriter, req modifierOptionRequest) (decimal.Decimal, bool) {
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return decimal.Zero, false
	}
	if req.PriceDelta == "" {
		return decimal.Zero, true
	}
	delta, err := decimal.NewFromString(req.PriceDelta)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price_delta must be a decimal"})
		return decimal.Zero, false
	}
	return delta, true
}

func toInt4(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}

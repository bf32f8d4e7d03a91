package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sajikan-pos/api/internal/database"
	"github.com/sajikan-pos/api/internal/enum"
	"github.com/sajikan-pos/api/internal/handler"
	"github.com/sajikan-pos/api/internal/middleware"
)

type mockCategoryStore struct {
	categories map[uuid.UUID]database.Category
}

func newMockCategoryStore() *mockCategoryStore {
	return &mockCategoryStore{categories: make(map[uuid.UUID]database.Category)}
}

func (m *mockCategoryStore) ListCategories(_ context.Context) ([]database.Category, error) {
	var out []database.Category
	for _, c := range m.categories {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCategoryStore) CreateCategory(_ context.Context, arg database.CreateCategoryParams) (database.Category, error) {
	c := database.Category{
		ID:          uuid.New(),
		Name:        arg.Name,
		Description: arg.Description,
		SortOrder:   arg.SortOrder,
		IsActive:    true,
	}
	m.categories[c.ID] = c
	return c, nil
}

func (m *mockCategoryStore) UpdateCategory(_ context.Context, arg database.UpdateCategoryParams) (database.Category, error) {
	c, ok := m.categories[arg.ID]
	if !ok {
		return database.Category{}, pgx.ErrNoRows
	}
	c.Name = arg.Name
	c.Description = arg.Description
	c.SortOrder = arg.SortOrder
	m.categories[arg.ID] = c
	return c, nil
}

func (m *mockCategoryStore) SoftDeleteCategory(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	c, ok := m.categories[id]
	if !ok {
		return uuid.Nil, pgx.ErrNoRows
	}
	c.IsActive = false
	m.categories[id] = c
	return id, nil
}

func setupCategoryRouter(store *mockCategoryStore) *chi.Mux {
	h := handler.NewCategoryHandler(store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/categories", h.RegisterRoutes)
	return r
}

func TestCategoryCreate_Valid(t *testing.T) {
	store := newMockCategoryStore()
	router := setupCategoryRouter(store)

	rr := doAuthedRequest(t, router, "POST", "/categories", enum.UserRoleOwner, map[string]interface{}{
		"name":        "Coffee",
		"description": "Hot drinks",
		"sort_order":  1,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["name"] != "Coffee" {
		t.Errorf("name: got %v", resp["name"])
	}
	if resp["description"] != "Hot drinks" {
		t.Errorf("description: got %v", resp["description"])
	}
}

func TestCategoryCreate_MissingName(t *testing.T) {
	router := setupCategoryRouter(newMockCategoryStore())

	rr := doAuthedRequest(t, router, "POST", "/categories", enum.UserRoleOwner, map[string]interface{}{
		"description": "no name",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCategoryUpdate_NotFound(t *testing.T) {
	router := setupCategoryRouter(newMockCategoryStore())

	rr := doAuthedRequest(t, router, "PUT", "/categories/"+uuid.New().String(), enum.UserRoleOwner, map[string]interface{}{
		"name": "Coffee",
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCategoryDelete_HidesFromList(t *testing.T) {
	store := newMockCategoryStore()
	id := uuid.New()
	store.categories[id] = database.Category{ID: id, Name: "Coffee", IsActive: true}
	router := setupCategoryRouter(store)

	rr := doAuthedRequest(t, router, "DELETE", "/categories/"+id.String(), enum.UserRoleOwner, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status: got %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = doAuthedRequest(t, router, "GET", "/categories", enum.UserRoleCashier, nil)
	if resp := decodeListResponse(t, rr); len(resp) != 0 {
		t.Errorf("expected deleted category hidden, got %d", len(resp))
	}
}

func TestCategoryList_Unauthenticated(t *testing.T) {
	router := setupCategoryRouter(newMockCategoryStore())

	rr := doRequest(t, router, "GET", "/categories", nil)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

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
	"github.com/sajikan-pos/api/internal/pricing"
	"github.com/sajikan-pos/api/internal/service"
	"github.com/shopspring/decimal"
)

// --- Mocks ---

type mockProductStore struct {
	products map[uuid.UUID]database.Product
}

func newMockProductStore() *mockProductStore {
	return &mockProductStore{products: make(map[uuid.UUID]database.Product)}
}

func (m *mockProductStore) ListProducts(_ context.Context) ([]database.Product, error) {
	var out []database.Product
	for _, p := range m.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductStore) GetProduct(_ context.Context, id uuid.UUID) (database.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProductStore) CreateProduct(_ context.Context, arg database.CreateProductParams) (database.Product, error) {
	p := database.Product{
		ID:         uuid.New(),
		CategoryID: arg.CategoryID,
		Code:       arg.Code,
		Name:       arg.Name,
		BasePrice:  arg.BasePrice,
		SortOrder:  arg.SortOrder,
		IsActive:   true,
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) UpdateProduct(_ context.Context, arg database.UpdateProductParams) (database.Product, error) {
	p, ok := m.products[arg.ID]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	p.Code = arg.Code
	p.Name = arg.Name
	p.BasePrice = arg.BasePrice
	p.SortOrder = arg.SortOrder
	m.products[arg.ID] = p
	return p, nil
}

func (m *mockProductStore) SoftDeleteProduct(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, ok := m.products[id]
	if !ok {
		return uuid.Nil, pgx.ErrNoRows
	}
	p.IsActive = false
	m.products[id] = p
	return id, nil
}

type mockResolver struct {
	resolveFn func(ctx context.Context, productID uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error)
	quoteFn   func(ctx context.Context, productID uuid.UUID, selections map[string][]string, quantity int32) (pricing.LineItem, []pricing.Violation, error)
}

func (m *mockResolver) ResolveModifiers(ctx context.Context, productID uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error) {
	return m.resolveFn(ctx, productID)
}

func (m *mockResolver) QuoteLine(ctx context.Context, productID uuid.UUID, selections map[string][]string, quantity int32) (pricing.LineItem, []pricing.Violation, error) {
	return m.quoteFn(ctx, productID, selections, quantity)
}

func setupProductRouter(store *mockProductStore, resolver *mockResolver) *chi.Mux {
	h := handler.NewProductHandler(store, resolver)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/products", h.RegisterRoutes)
	return r
}

// --- CRUD tests ---

func TestProductCreate_Valid(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store, &mockResolver{})

	rr := doAuthedRequest(t, router, "POST", "/products", enum.UserRoleOwner, map[string]interface{}{
		"code":       "ESP",
		"name":       "Espresso",
		"base_price": "10.00",
		"sort_order": 1,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["code"] != "ESP" {
		t.Errorf("code: got %v", resp["code"])
	}
	if resp["base_price"] != "10.00" {
		t.Errorf("base_price: got %v", resp["base_price"])
	}
	if len(store.products) != 1 {
		t.Errorf("products stored: got %d, want 1", len(store.products))
	}
}

func TestProductCreate_NegativePrice(t *testing.T) {
	router := setupProductRouter(newMockProductStore(), &mockResolver{})

	rr := doAuthedRequest(t, router, "POST", "/products", enum.UserRoleOwner, map[string]interface{}{
		"code":       "ESP",
		"name":       "Espresso",
		"base_price": "-5.00",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestProductCreate_MissingCode(t *testing.T) {
	router := setupProductRouter(newMockProductStore(), &mockResolver{})

	rr := doAuthedRequest(t, router, "POST", "/products", enum.UserRoleOwner, map[string]interface{}{
		"name":       "Espresso",
		"base_price": "10.00",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestProductUpdate_NotFound(t *testing.T) {
	router := setupProductRouter(newMockProductStore(), &mockResolver{})

	rr := doAuthedRequest(t, router, "PUT", "/products/"+uuid.New().String(), enum.UserRoleOwner, map[string]interface{}{
		"code":       "ESP",
		"name":       "Espresso",
		"base_price": "11.00",
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProductDelete_HidesFromList(t *testing.T) {
	store := newMockProductStore()
	id := uuid.New()
	store.products[id] = database.Product{ID: id, Code: "ESP", Name: "Espresso", BasePrice: makeOrderNumeric("10.00"), IsActive: true}
	router := setupProductRouter(store, &mockResolver{})

	rr := doAuthedRequest(t, router, "DELETE", "/products/"+id.String(), enum.UserRoleOwner, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status: got %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = doAuthedRequest(t, router, "GET", "/products", enum.UserRoleCashier, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rr.Code)
	}
	if resp := decodeListResponse(t, rr); len(resp) != 0 {
		t.Errorf("expected deleted product hidden, got %d products", len(resp))
	}
}

// --- Modifier resolution tests ---

func TestProductModifiers_ReturnsEffectiveSet(t *testing.T) {
	productID := uuid.New()
	max := int32(1)
	resolver := &mockResolver{
		resolveFn: func(_ context.Context, id uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error) {
			if id != productID {
				return pricing.Product{}, nil, service.ErrProductNotFound
			}
			return pricing.Product{ID: productID, Code: "ESP"}, pricing.EffectiveGroupSet{
				{
					ID:            uuid.New(),
					Name:          "Size",
					SelectionKind: enum.SelectionKindSingle,
					MinSelect:     1,
					MaxSelect:     &max,
					Options: []pricing.ModifierOption{
						{ID: uuid.New(), Name: "Small", PriceDelta: decimal.Zero},
						{ID: uuid.New(), Name: "Large", PriceDelta: decimal.RequireFromString("2.00")},
					},
				},
			}, nil
		},
	}
	router := setupProductRouter(newMockProductStore(), resolver)

	rr := doAuthedRequest(t, router, "GET", "/products/"+productID.String()+"/modifiers", enum.UserRoleCashier, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	groups := decodeListResponse(t, rr)
	if len(groups) != 1 {
		t.Fatalf("groups: got %d, want 1", len(groups))
	}
	if groups[0]["name"] != "Size" {
		t.Errorf("name: got %v", groups[0]["name"])
	}
	options := groups[0]["options"].([]interface{})
	if len(options) != 2 {
		t.Fatalf("options: got %d, want 2", len(options))
	}
	large := options[1].(map[string]interface{})
	if large["price_delta"] != "2.00" {
		t.Errorf("price_delta: got %v", large["price_delta"])
	}
}

func TestProductModifiers_NotFound(t *testing.T) {
	resolver := &mockResolver{
		resolveFn: func(_ context.Context, _ uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error) {
			return pricing.Product{}, nil, service.ErrProductNotFound
		},
	}
	router := setupProductRouter(newMockProductStore(), resolver)

	rr := doAuthedRequest(t, router, "GET", "/products/"+uuid.New().String()+"/modifiers", enum.UserRoleCashier, nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Quote tests ---

func TestProductQuote_Valid(t *testing.T) {
	productID := uuid.New()
	resolver := &mockResolver{
		quoteFn: func(_ context.Context, id uuid.UUID, _ map[string][]string, quantity int32) (pricing.LineItem, []pricing.Violation, error) {
			return pricing.LineItem{
				ProductID: id,
				Quantity:  quantity,
				UnitPrice: decimal.RequireFromString("12.00"),
				LineTotal: decimal.RequireFromString("24.00"),
			}, nil, nil
		},
	}
	router := setupProductRouter(newMockProductStore(), resolver)

	rr := doAuthedRequest(t, router, "POST", "/products/"+productID.String()+"/quote", enum.UserRoleCashier, map[string]interface{}{
		"quantity": 2,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["unit_price"] != "12.00" {
		t.Errorf("unit_price: got %v", resp["unit_price"])
	}
	if resp["line_total"] != "24.00" {
		t.Errorf("line_total: got %v", resp["line_total"])
	}
}

func TestProductQuote_ViolationMapsTo422(t *testing.T) {
	groupID := uuid.New()
	resolver := &mockResolver{
		quoteFn: func(_ context.Context, _ uuid.UUID, _ map[string][]string, _ int32) (pricing.LineItem, []pricing.Violation, error) {
			return pricing.LineItem{}, nil, &service.ValidationError{Violations: []pricing.Violation{
				{Kind: pricing.RequiredChoicesMissing, GroupID: groupID, Message: "selection required"},
			}}
		},
	}
	router := setupProductRouter(newMockProductStore(), resolver)

	rr := doAuthedRequest(t, router, "POST", "/products/"+uuid.New().String()+"/quote", enum.UserRoleCashier, map[string]interface{}{
		"quantity": 1,
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	violations := resp["violations"].([]interface{})
	if len(violations) != 1 {
		t.Fatalf("violations: got %d, want 1", len(violations))
	}
}

func TestProductQuote_InvalidQuantityMapsTo400(t *testing.T) {
	resolver := &mockResolver{
		quoteFn: func(_ context.Context, _ uuid.UUID, _ map[string][]string, _ int32) (pricing.LineItem, []pricing.Violation, error) {
			return pricing.LineItem{}, nil, service.ErrInvalidQuantity
		},
	}
	router := setupProductRouter(newMockProductStore(), resolver)

	rr := doAuthedRequest(t, router, "POST", "/products/"+uuid.New().String()+"/quote", enum.UserRoleCashier, map[string]interface{}{
		"quantity": 0,
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

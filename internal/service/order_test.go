package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajikan-pos/api/internal/database"
	"github.com/sajikan-pos/api/internal/enum"
	"github.com/sajikan-pos/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getProductForOrderFn       func(ctx context.Context, id uuid.UUID) (database.Product, error)
	listAssignmentsForProductFn func(ctx context.Context, arg database.ListAssignmentsForProductParams) ([]database.ModifierAssignment, error)
	listModifierGroupsByIDsFn  func(ctx context.Context, ids []uuid.UUID) ([]database.ModifierGroup, error)
	listOptionsByGroupIDsFn    func(ctx context.Context, groupIDs []uuid.UUID) ([]database.ModifierOption, error)
	getSettingFn               func(ctx context.Context, key string) (string, error)
	getNextOrderNumberFn       func(ctx context.Context, day time.Time) (string, error)
	getOpenOrderForUpdateFn    func(ctx context.Context, tableNumber string) (database.Order, error)
	createOrderFn              func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	addOrderTotalsFn           func(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error)
	createOrderItemFn          func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

func (m *mockOrderStore) GetProductForOrder(ctx context.Context, id uuid.UUID) (database.Product, error) {
	return m.getProductForOrderFn(ctx, id)
}
func (m *mockOrderStore) ListAssignmentsForProduct(ctx context.Context, arg database.ListAssignmentsForProductParams) ([]database.ModifierAssignment, error) {
	return m.listAssignmentsForProductFn(ctx, arg)
}
func (m *mockOrderStore) ListModifierGroupsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.ModifierGroup, error) {
	return m.listModifierGroupsByIDsFn(ctx, ids)
}
func (m *mockOrderStore) ListOptionsByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]database.ModifierOption, error) {
	return m.listOptionsByGroupIDsFn(ctx, groupIDs)
}
func (m *mockOrderStore) GetSetting(ctx context.Context, key string) (string, error) {
	return m.getSettingFn(ctx, key)
}
func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context, day time.Time) (string, error) {
	return m.getNextOrderNumberFn(ctx, day)
}
func (m *mockOrderStore) GetOpenOrderForUpdate(ctx context.Context, tableNumber string) (database.Order, error) {
	return m.getOpenOrderForUpdateFn(ctx, tableNumber)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) AddOrderTotals(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
	return m.addOrderTotalsFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	return m.createOrderItemFn(ctx, arg)
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

// catalogFixture holds the IDs of the canonical test catalog: one product
// with a required single-choice Size group (Small +0.00, Large +2.00).
type catalogFixture struct {
	productID uuid.UUID
	groupID   uuid.UUID
	smallID   uuid.UUID
	largeID   uuid.UUID
}

func newFixture() catalogFixture {
	return catalogFixture{
		productID: uuid.New(),
		groupID:   uuid.New(),
		smallID:   uuid.New(),
		largeID:   uuid.New(),
	}
}

// defaultStore returns a mockOrderStore with sensible defaults: the fixture
// catalog, no settings, no open order. Individual tests override the
// functions they care about.
func defaultStore(f catalogFixture) *mockOrderStore {
	return &mockOrderStore{
		getProductForOrderFn: func(ctx context.Context, id uuid.UUID) (database.Product, error) {
			if id == f.productID {
				return database.Product{
					ID:        f.productID,
					Code:      "ESP",
					Name:      "Espresso",
					BasePrice: makeNumeric("10.00"),
					IsActive:  true,
				}, nil
			}
			return database.Product{}, pgx.ErrNoRows
		},
		listAssignmentsForProductFn: func(ctx context.Context, arg database.ListAssignmentsForProductParams) ([]database.ModifierAssignment, error) {
			return []database.ModifierAssignment{
				{ID: uuid.New(), GroupID: f.groupID, EntityKind: enum.AssignmentKindProduct, EntityID: f.productID},
			}, nil
		},
		listModifierGroupsByIDsFn: func(ctx context.Context, ids []uuid.UUID) ([]database.ModifierGroup, error) {
			return []database.ModifierGroup{
				{ID: f.groupID, Name: "Size", SelectionKind: enum.SelectionKindSingle, MinSelect: 1, SortOrder: 1, IsActive: true},
			}, nil
		},
		listOptionsByGroupIDsFn: func(ctx context.Context, groupIDs []uuid.UUID) ([]database.ModifierOption, error) {
			return []database.ModifierOption{
				{ID: f.smallID, GroupID: f.groupID, Name: "Small", PriceDelta: makeNumeric("0.00"), SortOrder: 1, IsActive: true},
				{ID: f.largeID, GroupID: f.groupID, Name: "Large", PriceDelta: makeNumeric("2.00"), SortOrder: 2, IsActive: true},
			}, nil
		},
		getSettingFn: func(ctx context.Context, key string) (string, error) {
			return "", pgx.ErrNoRows
		},
		getNextOrderNumberFn: func(ctx context.Context, day time.Time) (string, error) {
			return "20260901-0001", nil
		},
		getOpenOrderForUpdateFn: func(ctx context.Context, tableNumber string) (database.Order, error) {
			return database.Order{}, pgx.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:             uuid.New(),
				OrderNumber:    arg.OrderNumber,
				TableNumber:    arg.TableNumber,
				Status:         enum.OrderStatusOpen,
				Subtotal:       arg.Subtotal,
				DiscountAmount: arg.DiscountAmount,
				DiscountLabel:  arg.DiscountLabel,
				TaxAmount:      arg.TaxAmount,
				TotalAmount:    arg.TotalAmount,
				CreatedBy:      arg.CreatedBy,
			}, nil
		},
		addOrderTotalsFn: func(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
			return database.Order{ID: arg.ID, Status: enum.OrderStatusOpen}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:          uuid.New(),
				OrderID:     arg.OrderID,
				ProductID:   arg.ProductID,
				ProductCode: arg.ProductCode,
				ProductName: arg.ProductName,
				Quantity:    arg.Quantity,
				UnitPrice:   arg.UnitPrice,
				LineTotal:   arg.LineTotal,
				Selections:  arg.Selections,
				Notes:       arg.Notes,
			}, nil
		},
	}
}

// newTestService creates an OrderService with mocked dependencies.
func newTestService(store *mockOrderStore) *OrderService {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, store, newStore)
}

func basicReq(f catalogFixture) SubmitOrderRequest {
	return SubmitOrderRequest{
		TableNumber: "T1",
		CreatedBy:   uuid.New(),
		Items: []SubmitItemRequest{
			{
				ProductID: f.productID.String(),
				Quantity:  1,
				Selections: map[string][]string{
					f.groupID.String(): {f.largeID.String()},
				},
			},
		},
	}
}

// =====================
// Validation tests
// =====================

func TestSubmit_EmptyTable(t *testing.T) {
	svc := newTestService(defaultStore(newFixture()))

	req := basicReq(newFixture())
	req.TableNumber = ""
	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got: %v", err)
	}
}

func TestSubmit_EmptyItems(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	req := basicReq(f)
	req.Items = nil
	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestSubmit_InvalidQuantity(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	req := basicReq(f)
	req.Items[0].Quantity = 0
	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestSubmit_InvalidProductID(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	req := basicReq(f)
	req.Items[0].ProductID = "not-a-uuid"
	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrInvalidProductID) {
		t.Fatalf("expected ErrInvalidProductID, got: %v", err)
	}
}

func TestSubmit_ProductNotFound(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	req := basicReq(f)
	req.Items[0].ProductID = uuid.New().String()
	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got: %v", err)
	}
}

func TestSubmit_SelectionViolationRejectsBatch(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	itemsCreated := 0
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		itemsCreated++
		return database.OrderItem{}, nil
	}
	svc := newTestService(store)

	req := basicReq(f)
	req.Items[0].Selections = map[string][]string{
		f.groupID.String(): {f.smallID.String(), f.largeID.String()}, // two picks in a SINGLE group
	}
	_, err := svc.Submit(context.Background(), req)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if len(vErr.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
	if itemsCreated != 0 {
		t.Fatalf("expected no items persisted, got %d", itemsCreated)
	}
}

// =====================
// Pricing and creation tests
// =====================

func TestSubmit_CreatesOrderWithRecomputedTotals(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	var created database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = arg
		return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber, TableNumber: arg.TableNumber, Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	// base 10.00 + Large 2.00 = 12.00 unit price
	result, err := svc.Submit(context.Background(), basicReq(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Appended {
		t.Fatal("expected a fresh order, got appended")
	}
	if !numericEquals(created.Subtotal, "12.00") {
		t.Errorf("subtotal = %v, want 12.00", numericToDecimal(created.Subtotal))
	}
	if !numericEquals(created.TotalAmount, "12.00") {
		t.Errorf("total = %v, want 12.00", numericToDecimal(created.TotalAmount))
	}
	if created.OrderNumber != "20260901-0001" {
		t.Errorf("order number = %q", created.OrderNumber)
	}
	if !result.Batch.Subtotal.Equal(decimal.RequireFromString("12.00")) {
		t.Errorf("batch subtotal = %v", result.Batch.Subtotal)
	}
}

func TestSubmit_CouponAndTax(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.getSettingFn = func(ctx context.Context, key string) (string, error) {
		switch key {
		case enum.SettingTaxRate:
			return "6", nil
		case enum.SettingCoupons:
			return `{"SAVE10": "10%"}`, nil
		}
		return "", pgx.ErrNoRows
	}
	var created database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = arg
		return database.Order{ID: uuid.New(), Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	// 12.00 subtotal, 10% coupon = 1.20, tax 6% on 10.80 = 0.648 -> 0.65
	req := basicReq(f)
	req.CouponCode = "save10"
	result, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(created.Subtotal, "12.00") {
		t.Errorf("subtotal = %v", numericToDecimal(created.Subtotal))
	}
	if !numericEquals(created.DiscountAmount, "1.20") {
		t.Errorf("discount = %v", numericToDecimal(created.DiscountAmount))
	}
	if !numericEquals(created.TaxAmount, "0.65") {
		t.Errorf("tax = %v", numericToDecimal(created.TaxAmount))
	}
	if !numericEquals(created.TotalAmount, "11.45") {
		t.Errorf("total = %v", numericToDecimal(created.TotalAmount))
	}
	if result.CouponError != "" {
		t.Errorf("unexpected coupon error: %s", result.CouponError)
	}
}

func TestSubmit_CouponRejectedWithoutPolicy(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.getSettingFn = func(ctx context.Context, key string) (string, error) {
		if key == enum.SettingCoupons {
			return `{"SAVE10": "10%"}`, nil
		}
		return "", pgx.ErrNoRows
	}
	svc := newTestService(store)

	req := basicReq(f)
	req.CouponCode = "BOGUS"
	_, err := svc.Submit(context.Background(), req)
	if !errors.Is(err, ErrCouponRejected) {
		t.Fatalf("expected ErrCouponRejected, got: %v", err)
	}
}

func TestSubmit_CouponFailureToleratedWithPolicy(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.getSettingFn = func(ctx context.Context, key string) (string, error) {
		if key == enum.SettingCoupons {
			return `{"SAVE10": "10%"}`, nil
		}
		return "", pgx.ErrNoRows
	}
	var created database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = arg
		return database.Order{ID: uuid.New(), Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	req := basicReq(f)
	req.CouponCode = "BOGUS"
	req.AllowCouponFailure = true
	result, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CouponError == "" {
		t.Error("expected CouponError to be reported")
	}
	if !numericEquals(created.DiscountAmount, "0.00") {
		t.Errorf("discount = %v, want 0.00", numericToDecimal(created.DiscountAmount))
	}
}

func TestSubmit_ManualDiscount(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	var created database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = arg
		return database.Order{ID: uuid.New(), Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	// 12.00 subtotal, manual 2.00 off
	req := basicReq(f)
	req.Discount = &pricing.Discount{Kind: enum.DiscountKindAmount, Value: decimal.NewFromInt(2)}
	_, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(created.DiscountAmount, "2.00") {
		t.Errorf("discount = %v, want 2.00", numericToDecimal(created.DiscountAmount))
	}
	if !numericEquals(created.TotalAmount, "10.00") {
		t.Errorf("total = %v, want 10.00", numericToDecimal(created.TotalAmount))
	}
	if created.DiscountLabel.Valid {
		t.Errorf("manual discount should not set a label, got %q", created.DiscountLabel.String)
	}
}

func TestSubmit_CouponOverridesManualDiscount(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.getSettingFn = func(ctx context.Context, key string) (string, error) {
		if key == enum.SettingCoupons {
			return `{"SAVE10": "10%"}`, nil
		}
		return "", pgx.ErrNoRows
	}
	var created database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = arg
		return database.Order{ID: uuid.New(), Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	// coupon 10% (1.20) wins over the manual 5.00
	req := basicReq(f)
	req.CouponCode = "SAVE10"
	req.Discount = &pricing.Discount{Kind: enum.DiscountKindAmount, Value: decimal.NewFromInt(5)}
	_, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(created.DiscountAmount, "1.20") {
		t.Errorf("discount = %v, want 1.20 (the coupon, not the manual entry)", numericToDecimal(created.DiscountAmount))
	}
}

func TestSubmit_TaxRoundsHalfToEven(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.getSettingFn = func(ctx context.Context, key string) (string, error) {
		if key == enum.SettingTaxRate {
			return "5.875", nil
		}
		return "", pgx.ErrNoRows
	}
	var created database.CreateOrderParams
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		created = arg
		return database.Order{ID: uuid.New(), Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	// 12.00 * 5.875% = 0.705 exactly; half rounds to the even neighbor
	_, err := svc.Submit(context.Background(), basicReq(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(created.TaxAmount, "0.70") {
		t.Errorf("tax = %v, want 0.70", numericToDecimal(created.TaxAmount))
	}
	if !numericEquals(created.TotalAmount, "12.70") {
		t.Errorf("total = %v, want 12.70", numericToDecimal(created.TotalAmount))
	}
}

func TestDecimalToNumericRoundsHalfToEven(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2.705", "2.70"},
		{"2.715", "2.72"},
		{"2.706", "2.71"},
	}
	for _, c := range cases {
		n := decimalToNumeric(decimal.RequireFromString(c.in))
		if !numericEquals(n, c.want) {
			t.Errorf("decimalToNumeric(%s) = %v, want %s", c.in, numericToDecimal(n), c.want)
		}
	}
}

// =====================
// Consolidation tests
// =====================

func TestSubmit_AppendsToOpenOrder(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	existingID := uuid.New()
	store.getOpenOrderForUpdateFn = func(ctx context.Context, tableNumber string) (database.Order, error) {
		return database.Order{ID: existingID, TableNumber: tableNumber, Status: enum.OrderStatusOpen, Subtotal: makeNumeric("20.00")}, nil
	}
	createCalls := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		createCalls++
		return database.Order{}, nil
	}
	var folded database.AddOrderTotalsParams
	store.addOrderTotalsFn = func(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
		folded = arg
		return database.Order{ID: arg.ID, Status: enum.OrderStatusOpen}, nil
	}
	var itemOrderID uuid.UUID
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		itemOrderID = arg.OrderID
		return database.OrderItem{ID: uuid.New(), OrderID: arg.OrderID}, nil
	}
	svc := newTestService(store)

	result, err := svc.Submit(context.Background(), basicReq(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Appended {
		t.Fatal("expected batch to be appended")
	}
	if createCalls != 0 {
		t.Fatalf("expected no new order, CreateOrder called %d times", createCalls)
	}
	if folded.ID != existingID {
		t.Errorf("folded into order %v, want %v", folded.ID, existingID)
	}
	if !numericEquals(folded.Subtotal, "12.00") {
		t.Errorf("folded subtotal = %v, want 12.00 (the batch, not the running total)", numericToDecimal(folded.Subtotal))
	}
	if itemOrderID != existingID {
		t.Errorf("item attached to %v, want %v", itemOrderID, existingID)
	}
	if folded.DiscountLabel.Valid {
		t.Errorf("batch without a coupon must keep the order's label, got %q", folded.DiscountLabel.String)
	}
}

func TestSubmit_AppendedCouponLabelFolded(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.getSettingFn = func(ctx context.Context, key string) (string, error) {
		if key == enum.SettingCoupons {
			return `{"SAVE10": "10%"}`, nil
		}
		return "", pgx.ErrNoRows
	}
	existingID := uuid.New()
	store.getOpenOrderForUpdateFn = func(ctx context.Context, tableNumber string) (database.Order, error) {
		return database.Order{ID: existingID, TableNumber: tableNumber, Status: enum.OrderStatusOpen}, nil
	}
	var folded database.AddOrderTotalsParams
	store.addOrderTotalsFn = func(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
		folded = arg
		return database.Order{ID: arg.ID, Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	req := basicReq(f)
	req.CouponCode = "save10"
	result, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Appended {
		t.Fatal("expected batch to be appended")
	}
	if !folded.DiscountLabel.Valid || folded.DiscountLabel.String != "SAVE10" {
		t.Errorf("folded label = %+v, want SAVE10", folded.DiscountLabel)
	}
	if !numericEquals(folded.DiscountAmount, "1.20") {
		t.Errorf("folded discount = %v, want 1.20", numericToDecimal(folded.DiscountAmount))
	}
}

func TestSubmit_RetriesOnOpenOrderConflict(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	existingID := uuid.New()
	attempt := 0
	store.getOpenOrderForUpdateFn = func(ctx context.Context, tableNumber string) (database.Order, error) {
		attempt++
		if attempt == 1 {
			return database.Order{}, pgx.ErrNoRows
		}
		return database.Order{ID: existingID, Status: enum.OrderStatusOpen}, nil
	}
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		// Another process won the race between our read and our insert.
		return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_open_table_key"}
	}
	appended := false
	store.addOrderTotalsFn = func(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
		appended = true
		return database.Order{ID: arg.ID, Status: enum.OrderStatusOpen}, nil
	}
	svc := newTestService(store)

	result, err := svc.Submit(context.Background(), basicReq(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !appended {
		t.Fatal("expected the retry to land on the append path")
	}
	if !result.Appended {
		t.Error("expected Appended to be true")
	}
}

func TestSubmit_ConflictRetriesExhausted(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_open_table_key"}
	}
	svc := newTestService(store)

	_, err := svc.Submit(context.Background(), basicReq(f))
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		t.Fatalf("expected the conflict to surface after retries, got: %v", err)
	}
}

func TestSubmit_UnrelatedErrorNotRetried(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)
	calls := 0
	boom := errors.New("connection reset")
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		calls++
		return database.Order{}, boom
	}
	svc := newTestService(store)

	_, err := svc.Submit(context.Background(), basicReq(f))
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

// TestSubmit_ConcurrentSameTable submits two batches to the same table from
// two goroutines. The per-table lock serializes them, so exactly one creates
// the order and the other appends.
func TestSubmit_ConcurrentSameTable(t *testing.T) {
	f := newFixture()
	store := defaultStore(f)

	var open *database.Order
	created, appended := 0, 0
	store.getOpenOrderForUpdateFn = func(ctx context.Context, tableNumber string) (database.Order, error) {
		if open == nil {
			return database.Order{}, pgx.ErrNoRows
		}
		return *open, nil
	}
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		if open != nil {
			return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_open_table_key"}
		}
		o := database.Order{ID: uuid.New(), TableNumber: arg.TableNumber, Status: enum.OrderStatusOpen}
		open = &o
		created++
		return o, nil
	}
	store.addOrderTotalsFn = func(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error) {
		appended++
		return *open, nil
	}
	svc := newTestService(store)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), basicReq(f))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("orders created = %d, want 1", created)
	}
	if appended != 1 {
		t.Errorf("batches appended = %d, want 1", appended)
	}
}

// =====================
// Quote and resolve tests
// =====================

func TestQuoteLine(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	line, warnings, err := svc.QuoteLine(context.Background(), f.productID,
		map[string][]string{f.groupID.String(): {f.largeID.String()}}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !line.UnitPrice.Equal(decimal.RequireFromString("12.00")) {
		t.Errorf("unit price = %v, want 12.00", line.UnitPrice)
	}
	if !line.LineTotal.Equal(decimal.RequireFromString("24.00")) {
		t.Errorf("line total = %v, want 24.00", line.LineTotal)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestQuoteLine_ViolationSurfaces(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	_, _, err := svc.QuoteLine(context.Background(), f.productID, nil, 1)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for the missing required group, got: %v", err)
	}
}

func TestResolveModifiers(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	product, set, err := svc.ResolveModifiers(context.Background(), f.productID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.ID != f.productID {
		t.Errorf("product = %v", product.ID)
	}
	if len(set) != 1 || set[0].ID != f.groupID {
		t.Fatalf("expected the Size group, got %+v", set)
	}
	if len(set[0].Options) != 2 {
		t.Errorf("options = %d, want 2", len(set[0].Options))
	}
}

func TestResolveModifiers_ProductNotFound(t *testing.T) {
	f := newFixture()
	svc := newTestService(defaultStore(f))

	_, _, err := svc.ResolveModifiers(context.Background(), uuid.New())
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got: %v", err)
	}
}

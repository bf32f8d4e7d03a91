package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
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

const maxConflictRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems       = errors.New("items are required")
	ErrEmptyTable       = errors.New("table_number is required")
	ErrInvalidQuantity  = errors.New("quantity must be > 0")
	ErrInvalidProductID = errors.New("invalid product_id")
	ErrInvalidGroupID   = errors.New("invalid group_id in selections")
	ErrInvalidOptionID  = errors.New("invalid option_id in selections")
	ErrProductNotFound  = errors.New("product not found")
	ErrCouponRejected   = errors.New("coupon rejected")
	ErrOrderNotOpen     = errors.New("order is not open")
)

// ValidationError carries the full set of selection violations for a
// submission, so callers can report every problem at once.
type ValidationError struct {
	Violations []pricing.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "invalid selections: " + strings.Join(msgs, "; ")
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to submit orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.Product, error)
	ListAssignmentsForProduct(ctx context.Context, arg database.ListAssignmentsForProductParams) ([]database.ModifierAssignment, error)
	ListModifierGroupsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.ModifierGroup, error)
	ListOptionsByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]database.ModifierOption, error)
	GetSetting(ctx context.Context, key string) (string, error)
	GetNextOrderNumber(ctx context.Context, day time.Time) (string, error)
	GetOpenOrderForUpdate(ctx context.Context, tableNumber string) (database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	AddOrderTotals(ctx context.Context, arg database.AddOrderTotalsParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// SubmitOrderRequest is the input for submitting an order batch to a table.
// Discount is a manual cashier-entered discount; a resolved coupon takes
// precedence over it.
type SubmitOrderRequest struct {
	TableNumber        string
	CreatedBy          uuid.UUID
	CouponCode         string
	AllowCouponFailure bool
	Discount           *pricing.Discount
	Items              []SubmitItemRequest
}

// SubmitItemRequest is a single line in the batch. Selections maps a modifier
// group ID to the chosen option IDs.
type SubmitItemRequest struct {
	ProductID  string
	Quantity   int32
	Selections map[string][]string
	Notes      string
}

// SubmitOrderResult is the order after the batch has been applied.
type SubmitOrderResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Batch    pricing.Totals
	Appended bool // true when the batch was folded into an existing open order
	Warnings []pricing.Violation
	// CouponError is set when the coupon failed but the caller opted to
	// proceed without it.
	CouponError string
}

// OrderService handles order submission, modifier resolution, and quoting.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore

	mu     sync.Mutex
	tables map[string]*sync.Mutex
}

// NewOrderService creates a new OrderService. store is used for reads outside
// a transaction; newStore builds per-transaction stores.
func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore) *OrderService {
	return &OrderService{
		pool:     pool,
		store:    store,
		newStore: newStore,
		tables:   make(map[string]*sync.Mutex),
	}
}

// tableLock returns the mutex serializing submissions for one table. Locks are
// never removed; the map is bounded by the number of distinct tables seen.
func (s *OrderService) tableLock(tableNumber string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tables[tableNumber]
	if !ok {
		l = &sync.Mutex{}
		s.tables[tableNumber] = l
	}
	return l
}

// Submit validates, prices, and applies an order batch atomically. If the
// table already has an open order the batch is appended to it and its totals
// are folded in; otherwise a new open order is created.
//
// In-process submissions for the same table are serialized by a per-table
// mutex. Across processes the partial unique index on open orders makes the
// race lose with a 23505, which is retried up to maxConflictRetries times
// (the retry lands on the appended path).
func (s *OrderService) Submit(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error) {
	if req.TableNumber == "" {
		return nil, ErrEmptyTable
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(item.ProductID); err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}
	}

	lock := s.tableLock(req.TableNumber)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err := s.submitTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isConsolidationConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isConsolidationConflict checks for the unique constraint violations two
// racing submissions can produce: the one-open-order-per-table partial index
// and the order number key (pgconn error code 23505).
func isConsolidationConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" &&
			(pgErr.ConstraintName == "orders_open_table_key" || pgErr.ConstraintName == "orders_order_number_key")
	}
	return false
}

// pricedLine is a validated and priced line ready for insertion.
type pricedLine struct {
	line  pricing.LineItem
	notes string
}

// submitTx executes the full batch submission in a single transaction.
func (s *OrderService) submitTx(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Load pricing context from settings ---
	taxRate, err := loadTaxRate(ctx, store)
	if err != nil {
		return nil, err
	}

	var discount *pricing.Discount
	var couponErrMsg string
	if req.CouponCode != "" {
		d, err := resolveCouponFromSettings(ctx, store, req.CouponCode)
		if err != nil {
			if !req.AllowCouponFailure {
				return nil, fmt.Errorf("%w: %w", ErrCouponRejected, err)
			}
			couponErrMsg = err.Error()
		} else {
			discount = d
		}
	}
	// Manual discount applies only when no coupon resolved, including the
	// tolerated-failure case.
	if discount == nil && req.Discount != nil {
		discount = req.Discount
	}

	// --- Resolve, validate, and price every line ---
	var warnings []pricing.Violation
	var lines []pricedLine
	for i, item := range req.Items {
		productID, _ := uuid.Parse(item.ProductID)

		product, set, err := loadEffectiveGroups(ctx, store, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrProductNotFound)
			}
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}

		selections, err := parseSelections(item.Selections)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}

		selected, violations, warns := pricing.ValidateSelections(set, selections)
		if len(violations) > 0 {
			return nil, &ValidationError{Violations: violations}
		}
		warnings = append(warnings, warns...)

		line, err := pricing.PriceLine(product, selected, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		line.Notes = item.Notes
		lines = append(lines, pricedLine{line: line, notes: item.Notes})
	}

	// --- Price the batch ---
	plain := make([]pricing.LineItem, len(lines))
	for i, pl := range lines {
		plain[i] = pl.line
	}
	batch, err := pricing.PriceOrder(plain, discount, taxRate)
	if err != nil {
		return nil, err
	}

	// --- Consolidate: append to the table's open order or create one ---
	discountLabel := pgtype.Text{}
	if discount != nil && discount.Label != "" {
		discountLabel = pgtype.Text{String: discount.Label, Valid: true}
	}
	appended := true
	order, err := store.GetOpenOrderForUpdate(ctx, req.TableNumber)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get open order: %w", err)
		}
		appended = false
		orderNumber, err := store.GetNextOrderNumber(ctx, time.Now())
		if err != nil {
			return nil, fmt.Errorf("get next order number: %w", err)
		}
		order, err = store.CreateOrder(ctx, database.CreateOrderParams{
			OrderNumber:    orderNumber,
			TableNumber:    req.TableNumber,
			Subtotal:       decimalToNumeric(batch.Subtotal),
			DiscountAmount: decimalToNumeric(batch.Discount),
			DiscountLabel:  discountLabel,
			TaxAmount:      decimalToNumeric(batch.Tax),
			TotalAmount:    decimalToNumeric(batch.Total),
			CreatedBy:      req.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
	} else {
		order, err = store.AddOrderTotals(ctx, database.AddOrderTotalsParams{
			Subtotal:       decimalToNumeric(batch.Subtotal),
			DiscountAmount: decimalToNumeric(batch.Discount),
			DiscountLabel:  discountLabel,
			TaxAmount:      decimalToNumeric(batch.Tax),
			TotalAmount:    decimalToNumeric(batch.Total),
			ID:             order.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("fold order totals: %w", err)
		}
	}

	// --- Insert items ---
	var items []database.OrderItem
	for _, pl := range lines {
		selectionsJSON, err := json.Marshal(pl.line.Selections)
		if err != nil {
			return nil, fmt.Errorf("marshal selections: %w", err)
		}
		notes := pgtype.Text{}
		if pl.notes != "" {
			notes = pgtype.Text{String: pl.notes, Valid: true}
		}
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:     order.ID,
			ProductID:   pl.line.ProductID,
			ProductCode: pl.line.ProductCode,
			ProductName: pl.line.ProductName,
			Quantity:    pl.line.Quantity,
			UnitPrice:   decimalToNumeric(pl.line.UnitPrice),
			LineTotal:   decimalToNumeric(pl.line.LineTotal),
			Selections:  selectionsJSON,
			Notes:       notes,
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &SubmitOrderResult{
		Order:       order,
		Items:       items,
		Batch:       batch,
		Appended:    appended,
		Warnings:    warnings,
		CouponError: couponErrMsg,
	}, nil
}

// ResolveModifiers returns the product and its effective modifier group set,
// for menu display.
func (s *OrderService) ResolveModifiers(ctx context.Context, productID uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error) {
	product, set, err := loadEffectiveGroups(ctx, s.store, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Product{}, nil, ErrProductNotFound
		}
		return pricing.Product{}, nil, err
	}
	return product, set, nil
}

// QuoteLine validates and prices a single line without persisting anything.
func (s *OrderService) QuoteLine(ctx context.Context, productID uuid.UUID, rawSelections map[string][]string, quantity int32) (pricing.LineItem, []pricing.Violation, error) {
	if quantity <= 0 {
		return pricing.LineItem{}, nil, ErrInvalidQuantity
	}
	product, set, err := loadEffectiveGroups(ctx, s.store, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.LineItem{}, nil, ErrProductNotFound
		}
		return pricing.LineItem{}, nil, err
	}
	selections, err := parseSelections(rawSelections)
	if err != nil {
		return pricing.LineItem{}, nil, err
	}
	selected, violations, warnings := pricing.ValidateSelections(set, selections)
	if len(violations) > 0 {
		return pricing.LineItem{}, nil, &ValidationError{Violations: violations}
	}
	line, err := pricing.PriceLine(product, selected, quantity)
	if err != nil {
		return pricing.LineItem{}, nil, err
	}
	return line, warnings, nil
}

// ValidateCoupon resolves a coupon code against the configured definitions.
func (s *OrderService) ValidateCoupon(ctx context.Context, code string) (*pricing.Discount, error) {
	return resolveCouponFromSettings(ctx, s.store, code)
}

// --- Helpers ---

// loadEffectiveGroups fetches the product, its assignments, and the assigned
// groups with options, then resolves the effective group set.
func loadEffectiveGroups(ctx context.Context, store OrderStore, productID uuid.UUID) (pricing.Product, pricing.EffectiveGroupSet, error) {
	row, err := store.GetProductForOrder(ctx, productID)
	if err != nil {
		return pricing.Product{}, nil, err
	}
	product := productFromRow(row)

	categoryID := pgtype.UUID{}
	if product.CategoryID != nil {
		categoryID = pgtype.UUID{Bytes: *product.CategoryID, Valid: true}
	}
	assignmentRows, err := store.ListAssignmentsForProduct(ctx, database.ListAssignmentsForProductParams{
		ProductID:  productID,
		CategoryID: categoryID,
	})
	if err != nil {
		return pricing.Product{}, nil, fmt.Errorf("list assignments: %w", err)
	}
	assignments := make([]pricing.Assignment, len(assignmentRows))
	groupIDs := make([]uuid.UUID, 0, len(assignmentRows))
	seen := make(map[uuid.UUID]bool)
	for i, a := range assignmentRows {
		assignments[i] = pricing.Assignment{
			GroupID:    a.GroupID,
			EntityKind: a.EntityKind,
			EntityID:   a.EntityID,
		}
		if !seen[a.GroupID] {
			seen[a.GroupID] = true
			groupIDs = append(groupIDs, a.GroupID)
		}
	}

	var groups []pricing.ModifierGroup
	if len(groupIDs) > 0 {
		groupRows, err := store.ListModifierGroupsByIDs(ctx, groupIDs)
		if err != nil {
			return pricing.Product{}, nil, fmt.Errorf("list groups: %w", err)
		}
		optionRows, err := store.ListOptionsByGroupIDs(ctx, groupIDs)
		if err != nil {
			return pricing.Product{}, nil, fmt.Errorf("list options: %w", err)
		}
		optionsByGroup := make(map[uuid.UUID][]pricing.ModifierOption)
		for _, o := range optionRows {
			optionsByGroup[o.GroupID] = append(optionsByGroup[o.GroupID], pricing.ModifierOption{
				ID:         o.ID,
				GroupID:    o.GroupID,
				Name:       o.Name,
				PriceDelta: numericToDecimal(o.PriceDelta),
				SortOrder:  o.SortOrder,
				IsActive:   o.IsActive,
			})
		}
		groups = make([]pricing.ModifierGroup, len(groupRows))
		for i, g := range groupRows {
			var maxSelect *int32
			if g.MaxSelect.Valid {
				v := g.MaxSelect.Int32
				maxSelect = &v
			}
			groups[i] = pricing.ModifierGroup{
				ID:            g.ID,
				Name:          g.Name,
				SelectionKind: g.SelectionKind,
				MinSelect:     g.MinSelect,
				MaxSelect:     maxSelect,
				SortOrder:     g.SortOrder,
				IsActive:      g.IsActive,
				Options:       optionsByGroup[g.ID],
			}
		}
	}

	return product, pricing.ResolveEffectiveGroups(product, assignments, groups), nil
}

func productFromRow(row database.Product) pricing.Product {
	var categoryID *uuid.UUID
	if row.CategoryID.Valid {
		id := uuid.UUID(row.CategoryID.Bytes)
		categoryID = &id
	}
	return pricing.Product{
		ID:         row.ID,
		CategoryID: categoryID,
		Code:       row.Code,
		Name:       row.Name,
		BasePrice:  numericToDecimal(row.BasePrice),
		IsActive:   row.IsActive,
	}
}

func parseSelections(raw map[string][]string) (pricing.Selections, error) {
	selections := make(pricing.Selections, len(raw))
	for groupStr, optionStrs := range raw {
		groupID, err := uuid.Parse(groupStr)
		if err != nil {
			return nil, ErrInvalidGroupID
		}
		optionIDs := make([]uuid.UUID, len(optionStrs))
		for i, optStr := range optionStrs {
			optionID, err := uuid.Parse(optStr)
			if err != nil {
				return nil, ErrInvalidOptionID
			}
			optionIDs[i] = optionID
		}
		selections[groupID] = optionIDs
	}
	return selections, nil
}

// loadTaxRate reads the tax_rate setting; a missing row means no tax.
func loadTaxRate(ctx context.Context, store OrderStore) (decimal.Decimal, error) {
	raw, err := store.GetSetting(ctx, enum.SettingTaxRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get tax_rate setting: %w", err)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax_rate setting %q: %w", raw, err)
	}
	return rate, nil
}

// resolveCouponFromSettings reads the coupons setting and resolves the code
// against it. A missing row means no definitions are configured, which falls
// back to the builtin codes.
func resolveCouponFromSettings(ctx context.Context, store OrderStore, code string) (*pricing.Discount, error) {
	var defs map[string]string
	raw, err := store.GetSetting(ctx, enum.SettingCoupons)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get coupons setting: %w", err)
		}
	} else if raw != "" {
		if err := json.Unmarshal([]byte(raw), &defs); err != nil {
			return nil, fmt.Errorf("invalid coupons setting: %w", err)
		}
	}
	d, err := pricing.ResolveCoupon(defs, code)
	if err != nil {
		return nil, err
	}
	return &d, nil
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

// decimalToNumeric rounds to the currency minor unit (half to even) before
// persisting; intermediate arithmetic upstream is never rounded.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(pricing.RoundCurrency(d).StringFixed(2))
	return n
}

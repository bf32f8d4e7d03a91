package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, table_number, status, subtotal, discount_amount, discount_label, tax_amount, total_amount, paid_amount, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.TableNumber, &o.Status, &o.Subtotal, &o.DiscountAmount, &o.DiscountLabel, &o.TaxAmount, &o.TotalAmount, &o.PaidAmount, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// GetNextOrderNumber returns the next daily sequence for the given date
// (format YYYYMMDD-NNNN). The caller retries on a unique violation when two
// writers race for the same number.
func (q *Queries) GetNextOrderNumber(ctx context.Context, day time.Time) (string, error) {
	prefix := day.Format("20060102")
	const sql = `
		SELECT COALESCE(MAX(SUBSTRING(order_number FROM 10)::int), 0) + 1
		FROM orders
		WHERE order_number LIKE $1 || '-%'
	`
	var seq int
	if err := q.db.QueryRow(ctx, sql, prefix).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, seq), nil
}

// GetOpenOrderForUpdate locks the table's open order, if any, for the
// duration of the transaction.
func (q *Queries) GetOpenOrderForUpdate(ctx context.Context, tableNumber string) (Order, error) {
	const sql = `SELECT ` + orderColumns + ` FROM orders WHERE table_number = $1 AND status = 'OPEN' FOR UPDATE`
	return scanOrder(q.db.QueryRow(ctx, sql, tableNumber))
}

type CreateOrderParams struct {
	OrderNumber    string
	TableNumber    string
	Subtotal       pgtype.Numeric
	DiscountAmount pgtype.Numeric
	DiscountLabel  pgtype.Text
	TaxAmount      pgtype.Numeric
	TotalAmount    pgtype.Numeric
	CreatedBy      uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	const sql = `
		INSERT INTO orders (order_number, table_number, status, subtotal, discount_amount, discount_label, tax_amount, total_amount, created_by)
		VALUES ($1, $2, 'OPEN', $3, $4, $5, $6, $7, $8)
		RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, arg.OrderNumber, arg.TableNumber, arg.Subtotal, arg.DiscountAmount, arg.DiscountLabel, arg.TaxAmount, arg.TotalAmount, arg.CreatedBy))
}

type AddOrderTotalsParams struct {
	Subtotal       pgtype.Numeric
	DiscountAmount pgtype.Numeric
	DiscountLabel  pgtype.Text
	TaxAmount      pgtype.Numeric
	TotalAmount    pgtype.Numeric
	ID             uuid.UUID
}

// AddOrderTotals folds a batch's totals into the order's running totals.
// A NULL DiscountLabel keeps the label already on the order; a batch that
// carries its own coupon overwrites it.
func (q *Queries) AddOrderTotals(ctx context.Context, arg AddOrderTotalsParams) (Order, error) {
	const sql = `
		UPDATE orders
		SET subtotal = subtotal + $1,
		    discount_amount = discount_amount + $2,
		    discount_label = COALESCE($3, discount_label),
		    tax_amount = tax_amount + $4,
		    total_amount = total_amount + $5,
		    updated_at = now()
		WHERE id = $6 AND status = 'OPEN'
		RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, arg.Subtotal, arg.DiscountAmount, arg.DiscountLabel, arg.TaxAmount, arg.TotalAmount, arg.ID))
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	const sql = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(q.db.QueryRow(ctx, sql, id))
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	const sql = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(q.db.QueryRow(ctx, sql, id))
}

type ListOrdersParams struct {
	Status      pgtype.Text
	TableNumber pgtype.Text
	Limit       int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	const sql = `
		SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR table_number = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := q.db.Query(ctx, sql, arg.Status, arg.TableNumber, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	const sql = `
		UPDATE orders SET status = 'CANCELLED', updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, id))
}

func (q *Queries) CompleteOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	const sql = `
		UPDATE orders SET status = 'COMPLETED', updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, id))
}

type AddOrderPaidAmountParams struct {
	Amount pgtype.Numeric
	ID     uuid.UUID
}

func (q *Queries) AddOrderPaidAmount(ctx context.Context, arg AddOrderPaidAmountParams) (Order, error) {
	const sql = `
		UPDATE orders SET paid_amount = paid_amount + $1, updated_at = now()
		WHERE id = $2
		RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, arg.Amount, arg.ID))
}

// --- Order items ---

const orderItemColumns = `id, order_id, product_id, product_code, product_name, quantity, unit_price, line_total, selections, notes, created_at`

func scanOrderItem(row pgx.Row) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductCode, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.Selections, &it.Notes, &it.CreatedAt)
	return it, err
}

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	LineTotal   pgtype.Numeric
	Selections  []byte
	Notes       pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	const sql = `
		INSERT INTO order_items (order_id, product_id, product_code, product_name, quantity, unit_price, line_total, selections, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + orderItemColumns
	return scanOrderItem(q.db.QueryRow(ctx, sql, arg.OrderID, arg.ProductID, arg.ProductCode, arg.ProductName, arg.Quantity, arg.UnitPrice, arg.LineTotal, arg.Selections, arg.Notes))
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	const sql = `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, sql, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- Payments ---

const paymentColumns = `id, order_id, payment_method, amount, amount_received, change_amount, reference_number, status, processed_by, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentMethod, &p.Amount, &p.AmountReceived, &p.ChangeAmount, &p.ReferenceNumber, &p.Status, &p.ProcessedBy, &p.CreatedAt)
	return p, err
}

type CreatePaymentParams struct {
	OrderID         uuid.UUID
	PaymentMethod   string
	Amount          pgtype.Numeric
	AmountReceived  pgtype.Numeric
	ChangeAmount    pgtype.Numeric
	ReferenceNumber pgtype.Text
	ProcessedBy     uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	const sql = `
		INSERT INTO payments (order_id, payment_method, amount, amount_received, change_amount, reference_number, status, processed_by)
		VALUES ($1, $2, $3, $4, $5, $6, 'COMPLETED', $7)
		RETURNING ` + paymentColumns
	return scanPayment(q.db.QueryRow(ctx, sql, arg.OrderID, arg.PaymentMethod, arg.Amount, arg.AmountReceived, arg.ChangeAmount, arg.ReferenceNumber, arg.ProcessedBy))
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	const sql = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at`
	rows, err := q.db.Query(ctx, sql, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	const sql = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1 AND status = 'COMPLETED'`
	var total pgtype.Numeric
	err := q.db.QueryRow(ctx, sql, orderID).Scan(&total)
	return total, err
}

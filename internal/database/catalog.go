package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Categories ---

const categoryColumns = `id, name, description, sort_order, is_active, created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.SortOrder, &c.IsActive, &c.CreatedAt)
	return c, err
}

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	const sql = `SELECT ` + categoryColumns + ` FROM categories WHERE is_active = true ORDER BY sort_order, name`
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type CreateCategoryParams struct {
	Name        string
	Description pgtype.Text
	SortOrder   int32
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	const sql = `
		INSERT INTO categories (name, description, sort_order)
		VALUES ($1, $2, $3)
		RETURNING ` + categoryColumns
	return scanCategory(q.db.QueryRow(ctx, sql, arg.Name, arg.Description, arg.SortOrder))
}

type UpdateCategoryParams struct {
	Name        string
	Description pgtype.Text
	SortOrder   int32
	ID          uuid.UUID
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	const sql = `
		UPDATE categories SET name = $1, description = $2, sort_order = $3
		WHERE id = $4 AND is_active = true
		RETURNING ` + categoryColumns
	return scanCategory(q.db.QueryRow(ctx, sql, arg.Name, arg.Description, arg.SortOrder, arg.ID))
}

func (q *Queries) SoftDeleteCategory(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	const sql = `UPDATE categories SET is_active = false WHERE id = $1 AND is_active = true RETURNING id`
	var out uuid.UUID
	err := q.db.QueryRow(ctx, sql, id).Scan(&out)
	return out, err
}

// --- Products ---

const productColumns = `id, category_id, code, name, base_price, sort_order, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Code, &p.Name, &p.BasePrice, &p.SortOrder, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	const sql = `SELECT ` + productColumns + ` FROM products WHERE is_active = true ORDER BY sort_order, name`
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	const sql = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(q.db.QueryRow(ctx, sql, id))
}

// GetProductForOrder returns the product only when it is active; inactive
// products are not orderable.
func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (Product, error) {
	const sql = `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND is_active = true`
	return scanProduct(q.db.QueryRow(ctx, sql, id))
}

type CreateProductParams struct {
	CategoryID pgtype.UUID
	Code       string
	Name       string
	BasePrice  pgtype.Numeric
	SortOrder  int32
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	const sql = `
		INSERT INTO products (category_id, code, name, base_price, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + productColumns
	return scanProduct(q.db.QueryRow(ctx, sql, arg.CategoryID, arg.Code, arg.Name, arg.BasePrice, arg.SortOrder))
}

type UpdateProductParams struct {
	CategoryID pgtype.UUID
	Code       string
	Name       string
	BasePrice  pgtype.Numeric
	SortOrder  int32
	ID         uuid.UUID
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	const sql = `
		UPDATE products
		SET category_id = $1, code = $2, name = $3, base_price = $4, sort_order = $5, updated_at = now()
		WHERE id = $6 AND is_active = true
		RETURNING ` + productColumns
	return scanProduct(q.db.QueryRow(ctx, sql, arg.CategoryID, arg.Code, arg.Name, arg.BasePrice, arg.SortOrder, arg.ID))
}

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	const sql = `UPDATE products SET is_active = false, updated_at = now() WHERE id = $1 AND is_active = true RETURNING id`
	var out uuid.UUID
	err := q.db.QueryRow(ctx, sql, id).Scan(&out)
	return out, err
}

// --- Modifier groups ---

const modifierGroupColumns = `id, name, selection_kind, min_select, max_select, sort_order, is_active, created_at`

func scanModifierGroup(row pgx.Row) (ModifierGroup, error) {
	var g ModifierGroup
	err := row.Scan(&g.ID, &g.Name, &g.SelectionKind, &g.MinSelect, &g.MaxSelect, &g.SortOrder, &g.IsActive, &g.CreatedAt)
	return g, err
}

func (q *Queries) ListModifierGroups(ctx context.Context) ([]ModifierGroup, error) {
	const sql = `SELECT ` + modifierGroupColumns + ` FROM modifier_groups WHERE is_active = true ORDER BY sort_order, id`
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModifierGroup
	for rows.Next() {
		g, err := scanModifierGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *Queries) GetModifierGroup(ctx context.Context, id uuid.UUID) (ModifierGroup, error) {
	const sql = `SELECT ` + modifierGroupColumns + ` FROM modifier_groups WHERE id = $1 AND is_active = true`
	return scanModifierGroup(q.db.QueryRow(ctx, sql, id))
}

// ListModifierGroupsByIDs returns the active groups among the given IDs.
func (q *Queries) ListModifierGroupsByIDs(ctx context.Context, ids []uuid.UUID) ([]ModifierGroup, error) {
	const sql = `SELECT ` + modifierGroupColumns + ` FROM modifier_groups WHERE id = ANY($1) AND is_active = true ORDER BY sort_order, id`
	rows, err := q.db.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModifierGroup
	for rows.Next() {
		g, err := scanModifierGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type CreateModifierGroupParams struct {
	Name          string
	SelectionKind string
	MinSelect     int32
	MaxSelect     pgtype.Int4
	SortOrder     int32
}

func (q *Queries) CreateModifierGroup(ctx context.Context, arg CreateModifierGroupParams) (ModifierGroup, error) {
	const sql = `
		INSERT INTO modifier_groups (name, selection_kind, min_select, max_select, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + modifierGroupColumns
	return scanModifierGroup(q.db.QueryRow(ctx, sql, arg.Name, arg.SelectionKind, arg.MinSelect, arg.MaxSelect, arg.SortOrder))
}

type UpdateModifierGroupParams struct {
	Name          string
	SelectionKind string
	MinSelect     int32
	MaxSelect     pgtype.Int4
	SortOrder     int32
	ID            uuid.UUID
}

func (q *Queries) UpdateModifierGroup(ctx context.Context, arg UpdateModifierGroupParams) (ModifierGroup, error) {
	const sql = `
		UPDATE modifier_groups
		SET name = $1, selection_kind = $2, min_select = $3, max_select = $4, sort_order = $5
		WHERE id = $6 AND is_active = true
		RETURNING ` + modifierGroupColumns
	return scanModifierGroup(q.db.QueryRow(ctx, sql, arg.Name, arg.SelectionKind, arg.MinSelect, arg.MaxSelect, arg.SortOrder, arg.ID))
}

func (q *Queries) SoftDeleteModifierGroup(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	const sql = `UPDATE modifier_groups SET is_active = false WHERE id = $1 AND is_active = true RETURNING id`
	var out uuid.UUID
	err := q.db.QueryRow(ctx, sql, id).Scan(&out)
	return out, err
}

// --- Modifier options ---

const modifierOptionColumns = `id, group_id, name, price_delta, sort_order, is_active, created_at`

func scanModifierOption(row pgx.Row) (ModifierOption, error) {
	var o ModifierOption
	err := row.Scan(&o.ID, &o.GroupID, &o.Name, &o.PriceDelta, &o.SortOrder, &o.IsActive, &o.CreatedAt)
	return o, err
}

func (q *Queries) ListOptionsByGroup(ctx context.Context, groupID uuid.UUID) ([]ModifierOption, error) {
	const sql = `SELECT ` + modifierOptionColumns + ` FROM modifier_options WHERE group_id = $1 AND is_active = true ORDER BY sort_order, id`
	rows, err := q.db.Query(ctx, sql, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModifierOption
	for rows.Next() {
		o, err := scanModifierOption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOptionsByGroupIDs returns the active options for all given groups.
func (q *Queries) ListOptionsByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]ModifierOption, error) {
	const sql = `SELECT ` + modifierOptionColumns + ` FROM modifier_options WHERE group_id = ANY($1) AND is_active = true ORDER BY sort_order, id`
	rows, err := q.db.Query(ctx, sql, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModifierOption
	for rows.Next() {
		o, err := scanModifierOption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type CreateModifierOptionParams struct {
	GroupID    uuid.UUID
	Name       string
	PriceDelta pgtype.Numeric
	SortOrder  int32
}

func (q *Queries) CreateModifierOption(ctx context.Context, arg CreateModifierOptionParams) (ModifierOption, error) {
	const sql = `
		INSERT INTO modifier_options (group_id, name, price_delta, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + modifierOptionColumns
	return scanModifierOption(q.db.QueryRow(ctx, sql, arg.GroupID, arg.Name, arg.PriceDelta, arg.SortOrder))
}

type UpdateModifierOptionParams struct {
	Name       string
	PriceDelta pgtype.Numeric
	SortOrder  int32
	ID         uuid.UUID
	GroupID    uuid.UUID
}

func (q *Queries) UpdateModifierOption(ctx context.Context, arg UpdateModifierOptionParams) (ModifierOption, error) {
	const sql = `
		UPDATE modifier_options SET name = $1, price_delta = $2, sort_order = $3
		WHERE id = $4 AND group_id = $5 AND is_active = true
		RETURNING ` + modifierOptionColumns
	return scanModifierOption(q.db.QueryRow(ctx, sql, arg.Name, arg.PriceDelta, arg.SortOrder, arg.ID, arg.GroupID))
}

type SoftDeleteModifierOptionParams struct {
	ID      uuid.UUID
	GroupID uuid.UUID
}

func (q *Queries) SoftDeleteModifierOption(ctx context.Context, arg SoftDeleteModifierOptionParams) (uuid.UUID, error) {
	const sql = `UPDATE modifier_options SET is_active = false WHERE id = $1 AND group_id = $2 AND is_active = true RETURNING id`
	var out uuid.UUID
	err := q.db.QueryRow(ctx, sql, arg.ID, arg.GroupID).Scan(&out)
	return out, err
}

// --- Assignments ---

const assignmentColumns = `id, group_id, entity_kind, entity_id, created_at`

func scanAssignment(row pgx.Row) (ModifierAssignment, error) {
	var a ModifierAssignment
	err := row.Scan(&a.ID, &a.GroupID, &a.EntityKind, &a.EntityID, &a.CreatedAt)
	return a, err
}

type ListAssignmentsForProductParams struct {
	ProductID  uuid.UUID
	CategoryID pgtype.UUID
}

// ListAssignmentsForProduct returns every assignment that could apply to the
// product: product-scoped records plus category-scoped records for its
// category (when it has one).
func (q *Queries) ListAssignmentsForProduct(ctx context.Context, arg ListAssignmentsForProductParams) ([]ModifierAssignment, error) {
	const sql = `
		SELECT ` + assignmentColumns + ` FROM modifier_assignments
		WHERE (entity_kind = 'PRODUCT' AND entity_id = $1)
		   OR (entity_kind = 'CATEGORY' AND $2::uuid IS NOT NULL AND entity_id = $2)
	`
	rows, err := q.db.Query(ctx, sql, arg.ProductID, arg.CategoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModifierAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) ListAssignmentsByGroup(ctx context.Context, groupID uuid.UUID) ([]ModifierAssignment, error) {
	const sql = `SELECT ` + assignmentColumns + ` FROM modifier_assignments WHERE group_id = $1 ORDER BY created_at`
	rows, err := q.db.Query(ctx, sql, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModifierAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type CreateAssignmentParams struct {
	GroupID    uuid.UUID
	EntityKind string
	EntityID   uuid.UUID
}

func (q *Queries) CreateAssignment(ctx context.Context, arg CreateAssignmentParams) (ModifierAssignment, error) {
	const sql = `
		INSERT INTO modifier_assignments (group_id, entity_kind, entity_id)
		VALUES ($1, $2, $3)
		RETURNING ` + assignmentColumns
	return scanAssignment(q.db.QueryRow(ctx, sql, arg.GroupID, arg.EntityKind, arg.EntityID))
}

type DeleteAssignmentParams struct {
	ID      uuid.UUID
	GroupID uuid.UUID
}

// DeleteAssignment removes a link record. Assignments are pure links, so this
// is a hard delete, unlike the soft-deleted catalog entities.
func (q *Queries) DeleteAssignment(ctx context.Context, arg DeleteAssignmentParams) (uuid.UUID, error) {
	const sql = `DELETE FROM modifier_assignments WHERE id = $1 AND group_id = $2 RETURNING id`
	var out uuid.UUID
	err := q.db.QueryRow(ctx, sql, arg.ID, arg.GroupID).Scan(&out)
	return out, err
}

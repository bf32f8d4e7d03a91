package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	SortOrder   int32
	IsActive    bool
	CreatedAt   time.Time
}

type Product struct {
	ID         uuid.UUID
	CategoryID pgtype.UUID
	Code       string
	Name       string
	BasePrice  pgtype.Numeric
	SortOrder  int32
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ModifierGroup struct {
	ID            uuid.UUID
	Name          string
	SelectionKind string
	MinSelect     int32
	MaxSelect     pgtype.Int4
	SortOrder     int32
	IsActive      bool
	CreatedAt     time.Time
}

type ModifierOption struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	PriceDelta pgtype.Numeric
	SortOrder  int32
	IsActive   bool
	CreatedAt  time.Time
}

type ModifierAssignment struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	EntityKind string
	EntityID   uuid.UUID
	CreatedAt  time.Time
}

type Order struct {
	ID             uuid.UUID
	OrderNumber    string
	TableNumber    string
	Status         string
	Subtotal       pgtype.Numeric
	DiscountAmount pgtype.Numeric
	DiscountLabel  pgtype.Text
	TaxAmount      pgtype.Numeric
	TotalAmount    pgtype.Numeric
	PaidAmount     pgtype.Numeric
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	LineTotal   pgtype.Numeric
	Selections  []byte // jsonb snapshot of the validated selections
	Notes       pgtype.Text
	CreatedAt   time.Time
}

type Payment struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	PaymentMethod   string
	Amount          pgtype.Numeric
	AmountReceived  pgtype.Numeric
	ChangeAmount    pgtype.Numeric
	ReferenceNumber pgtype.Text
	Status          string
	ProcessedBy     uuid.UUID
	CreatedAt       time.Time
}

type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

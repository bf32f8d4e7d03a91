package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen      = "OPEN"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusVoided    = "VOIDED"
)

// ── Group B: Catalog kinds (CHECK constrained in DB) ──

const (
	SelectionKindSingle   = "SINGLE"
	SelectionKindMultiple = "MULTIPLE"
)

const (
	AssignmentKindCategory = "CATEGORY"
	AssignmentKindProduct  = "PRODUCT"
)

const (
	DiscountKindPercent = "PERCENT"
	DiscountKindAmount  = "AMOUNT"
)

// ── Group C: Configurable labels (no DB constraint) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodQRIS     = "QRIS"
	PaymentMethodTransfer = "TRANSFER"
)

// Settings keys consumed by the pricing engine.
const (
	SettingTaxRate = "tax_rate"
	SettingCoupons = "coupons"
)

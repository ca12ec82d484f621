package domain

import "time"

// All monetary amounts are int64 cents.

type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	CostCents  int64  `json:"cost_cents"`
	Stock      int    `json:"stock"`
	MinStock   int    `json:"min_stock"`
	MaxStock   int    `json:"max_stock"`
	Active     bool   `json:"active"`
}

type ProductCreateRequest struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	PriceCents   int64  `json:"price_cents"`
	CostCents    int64  `json:"cost_cents"`
	InitialStock int    `json:"initial_stock"`
	MinStock     int    `json:"min_stock"`
	MaxStock     int    `json:"max_stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	CostCents  *int64  `json:"cost_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// CartLine is a cart entry. UnitPriceCents is snapshotted from the product
// when the line is added, so later price edits do not reprice an open cart.
type CartLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func (l CartLine) LineTotalCents() int64 {
	return int64(l.Qty) * l.UnitPriceCents
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type SaleLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	IdempotencyKey   string     `json:"idempotency_key"`
	SubtotalCents    int64      `json:"subtotal_cents"`
	DiscountCents    int64      `json:"discount_cents"`
	TaxRatePercent   float64    `json:"tax_rate_percent"`
	TaxCents         int64      `json:"tax_cents"`
	TotalCents       int64      `json:"total_cents"`
	PaymentMethod    string     `json:"payment_method"`
	PromotionID      string     `json:"promotion_id,omitempty"`
	PromotionNote    string     `json:"promotion_note,omitempty"`
	PromotionDropped bool       `json:"promotion_dropped,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	Lines            []SaleLine `json:"lines"`
}

const (
	SaleStatusDraft      = "draft"
	SaleStatusPricing    = "pricing"
	SaleStatusCommitting = "committing"
	SaleStatusCompleted  = "completed"
	SaleStatusFailed     = "failed"
)

const (
	LedgerKindSale       = "sale"
	LedgerKindExpense    = "expense"
	LedgerKindDeposit    = "deposit"
	LedgerKindWithdrawal = "withdrawal"
)

// LedgerEntry is one movement in the append-only cash ledger. AmountCents is
// always positive; the kind decides the sign when folding into a balance.
type LedgerEntry struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignedAmountCents maps the entry kind onto the balance fold: sale and
// deposit add, expense and withdrawal subtract.
func (e LedgerEntry) SignedAmountCents() int64 {
	switch e.Kind {
	case LedgerKindExpense, LedgerKindWithdrawal:
		return -e.AmountCents
	default:
		return e.AmountCents
	}
}

func ValidLedgerKind(kind string) bool {
	switch kind {
	case LedgerKindSale, LedgerKindExpense, LedgerKindDeposit, LedgerKindWithdrawal:
		return true
	}
	return false
}

type DailyTotals struct {
	Date         string `json:"date"`
	IncomeCents  int64  `json:"income_cents"`
	ExpenseCents int64  `json:"expense_cents"`
	NetCents     int64  `json:"net_cents"`
	EntryCount   int64  `json:"entry_count"`
}

type LedgerAppendRequest struct {
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	ReferenceID string `json:"reference_id,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type CartItemRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type PriceQuoteRequest struct {
	Items          []CartItemRequest `json:"items"`
	TaxRatePercent float64           `json:"tax_rate_percent"`
}

type PriceQuote struct {
	SubtotalCents  int64            `json:"subtotal_cents"`
	DiscountCents  int64            `json:"discount_cents"`
	TaxCents       int64            `json:"tax_cents"`
	TotalCents     int64            `json:"total_cents"`
	Promotion      *PromotionResult `json:"promotion,omitempty"`
	TaxRatePercent float64          `json:"tax_rate_percent"`
}

type CommitSaleRequest struct {
	Items            []CartItemRequest `json:"items"`
	TaxRatePercent   float64           `json:"tax_rate_percent"`
	PaymentMethod    string            `json:"payment_method"`
	CustomerID       string            `json:"customer_id,omitempty"`
	IdempotencyKey   string            `json:"idempotency_key,omitempty"`
	RequirePromotion bool              `json:"require_promotion,omitempty"`
}

type CommitSaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

package store

import (
	"context"
	"errors"
	"time"

	"tiendita/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed input caught before any persistence:
	// zero quantities, unknown payment kinds, non-positive totals.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is the cart-time ceiling check.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStockConflict means stock dropped between pricing and commit; the
	// caller may reduce quantities and retry.
	ErrStockConflict = errors.New("stock conflict")

	// ErrPromotionExhausted means the usage cap was hit by the
	// compare-and-increment inside commit.
	ErrPromotionExhausted = errors.New("promotion exhausted")

	// ErrForbidden means the acting user lacks the role an operation needs.
	ErrForbidden = errors.New("forbidden")
)

// Repository is the persistence boundary. CommitSale is the single atomic
// operation behind the sale state machine: it revalidates stock, decrements
// it, applies the promotion usage compare-and-increment, persists the sale
// with its lines, and appends the matching ledger entry. Either all of that
// happens or none of it does.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	IncreaseStock(ctx context.Context, sku string, qty int) error

	ListPromotions(ctx context.Context, onlyActive bool) ([]domain.Promotion, error)
	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	GetPromotionByID(ctx context.Context, id string) (*domain.Promotion, error)
	SetPromotionActive(ctx context.Context, id string, active bool) (*domain.Promotion, error)

	// CommitSale persists a priced sale. If requirePromotion is false and the
	// referenced promotion turns out to be exhausted, the sale is committed
	// without the discount (totals recomputed) and flagged PromotionDropped;
	// if requirePromotion is true the whole commit aborts with
	// ErrPromotionExhausted.
	CommitSale(ctx context.Context, sale domain.Sale, requirePromotion bool) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)

	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	LedgerBalance(ctx context.Context) (int64, error)
	LedgerEntriesInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.LedgerEntry, error)
	LedgerDailyTotals(ctx context.Context, day time.Time) (domain.DailyTotals, error)

	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

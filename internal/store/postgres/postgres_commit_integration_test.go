package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"tiendita/internal/domain"
	"tiendita/internal/store"
)

func TestCommitSaleAtomicOverPostgres(t *testing.T) {
	databaseURL := os.Getenv("TIENDITA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TIENDITA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	sku := fmt.Sprintf("SKU-COMMIT-IT-%d", stamp)
	promoID := fmt.Sprintf("promo-commit-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_ledger_entries WHERE reference_id IN (SELECT id FROM sales WHERE idempotency_key LIKE $1)`, fmt.Sprintf("idem-commit-it-%d-%%", stamp))
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sku = $1`, sku)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE idempotency_key LIKE $1`, fmt.Sprintf("idem-commit-it-%d-%%", stamp))
		_, _ = s.db.ExecContext(ctx, `DELETE FROM promotions WHERE id = $1`, promoID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_stocks WHERE sku = $1`, sku)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price_cents, cost_cents, min_stock, max_stock, active, created_at, updated_at)
		VALUES ($1, 'Producto Commit IT', 'abarrotes', 10000, 6000, 0, 0, true, now(), now())
	`, sku); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_stocks (sku, qty, updated_at) VALUES ($1, 3, now())
	`, sku); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (
			id, name, kind, percent, amount_cents, buy_qty, get_qty, bundle_skus,
			starts_at, ends_at, active, min_subtotal_cents, max_uses, current_uses,
			product_skus, categories, created_at
		)
		VALUES ($1, 'Una vez IT', 'percentage', 10, 0, 0, 0, '[]',
			$2, $3, true, 0, 1, 0, '[]', '[]', $2)
	`, promoID, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("seed promotion: %v", err)
	}

	newSale := func(n int, discount int64) domain.Sale {
		return domain.Sale{
			IdempotencyKey: fmt.Sprintf("idem-commit-it-%d-%d", stamp, n),
			PaymentMethod:  "cash",
			PromotionID:    promoID,
			DiscountCents:  discount,
			Lines: []domain.SaleLine{
				{SKU: sku, Name: "Producto Commit IT", Qty: 1, UnitPriceCents: 10000},
			},
		}
	}

	// First commit consumes the single promotion use.
	first, err := s.CommitSale(ctx, newSale(1, 1000), false)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if first.TotalCents != 9000 {
		t.Fatalf("first total = %d, want 9000", first.TotalCents)
	}

	// Second commit hits the cap: discount dropped, sale committed flagged.
	second, err := s.CommitSale(ctx, newSale(2, 1000), false)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if !second.PromotionDropped || second.TotalCents != 10000 {
		t.Fatalf("second commit = dropped %t total %d, want dropped at full price", second.PromotionDropped, second.TotalCents)
	}

	// Third commit requires the promotion and must abort completely.
	_, err = s.CommitSale(ctx, newSale(3, 1000), true)
	if !errors.Is(err, store.ErrPromotionExhausted) {
		t.Fatalf("third commit err = %v, want ErrPromotionExhausted", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `SELECT qty FROM inventory_stocks WHERE sku = $1`, sku).Scan(&qty); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if qty != 1 {
		t.Fatalf("stock = %d, want 1 (two committed sales, aborted one untouched)", qty)
	}

	var uses int
	if err := s.db.QueryRowContext(ctx, `SELECT current_uses FROM promotions WHERE id = $1`, promoID).Scan(&uses); err != nil {
		t.Fatalf("read promotion: %v", err)
	}
	if uses != 1 {
		t.Fatalf("current_uses = %d, want 1", uses)
	}

	// Each committed sale produced exactly one ledger entry.
	var ledgerCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cash_ledger_entries WHERE reference_id IN ($1, $2)
	`, first.ID, second.ID).Scan(&ledgerCount); err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if ledgerCount != 2 {
		t.Fatalf("ledger entries = %d, want 2", ledgerCount)
	}
}

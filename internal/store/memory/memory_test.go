package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendita/internal/domain"
	"tiendita/internal/store"
)

func seedProduct(t *testing.T, s *Store, sku string, priceCents int64, stock int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		SKU:        sku,
		Name:       "Producto " + sku,
		Category:   "abarrotes",
		PriceCents: priceCents,
		Stock:      stock,
	})
	require.NoError(t, err)
}

func seedPromotion(t *testing.T, s *Store, promo domain.Promotion) domain.Promotion {
	t.Helper()
	if promo.StartsAt.IsZero() {
		promo.StartsAt = time.Now().UTC().AddDate(0, -1, 0)
	}
	if promo.EndsAt.IsZero() {
		promo.EndsAt = time.Now().UTC().AddDate(0, 1, 0)
	}
	promo.Active = true
	created, err := s.CreatePromotion(context.Background(), promo)
	require.NoError(t, err)
	return *created
}

func saleFor(sku string, qty int, unitPrice int64, idemKey string) domain.Sale {
	return domain.Sale{
		IdempotencyKey: idemKey,
		PaymentMethod:  "cash",
		Lines: []domain.SaleLine{
			{SKU: sku, Name: sku, Qty: qty, UnitPriceCents: unitPrice},
		},
	}
}

func TestCommitSaleFailureLeavesNoTrace(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "SKU-A", 1000, 2)
	promo := seedPromotion(t, s, domain.Promotion{
		Name: "10%", Kind: domain.PromoPercentage, Percent: 10,
	})

	sale := saleFor("SKU-A", 5, 1000, "over-stock")
	sale.PromotionID = promo.ID
	sale.DiscountCents = 500

	_, err := s.CommitSale(ctx, sale, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStockConflict))

	// No stock change, no usage increment, no sale, no ledger entry.
	product, err := s.GetProductBySKU(ctx, "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, 2, product.Stock)

	stored, err := s.GetPromotionByID(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentUses)

	_, err = s.FindSaleByIdempotency(ctx, "over-stock")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	balance, err := s.LedgerBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCommitSaleExhaustedPromotion(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "SKU-A", 1000, 10)
	promo := seedPromotion(t, s, domain.Promotion{
		Name: "una vez", Kind: domain.PromoPercentage, Percent: 10, MaxUses: 1,
	})

	first := saleFor("SKU-A", 1, 1000, "uses-cap-1")
	first.PromotionID = promo.ID
	first.DiscountCents = 100
	committed, err := s.CommitSale(ctx, first, false)
	require.NoError(t, err)
	assert.Equal(t, int64(900), committed.TotalCents)

	// Cap reached: without requirePromotion the sale commits at full price
	// and is flagged.
	second := saleFor("SKU-A", 1, 1000, "uses-cap-2")
	second.PromotionID = promo.ID
	second.DiscountCents = 100
	committed, err = s.CommitSale(ctx, second, false)
	require.NoError(t, err)
	assert.True(t, committed.PromotionDropped)
	assert.Equal(t, int64(0), committed.DiscountCents)
	assert.Equal(t, int64(1000), committed.TotalCents)

	// With requirePromotion the whole commit aborts.
	third := saleFor("SKU-A", 1, 1000, "uses-cap-3")
	third.PromotionID = promo.ID
	third.DiscountCents = 100
	_, err = s.CommitSale(ctx, third, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrPromotionExhausted))

	stored, err := s.GetPromotionByID(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentUses)

	product, err := s.GetProductBySKU(ctx, "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, 8, product.Stock)
}

func TestCommitSaleIdempotencyReplay(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "SKU-A", 1000, 5)

	first, err := s.CommitSale(ctx, saleFor("SKU-A", 1, 1000, "same-key"), false)
	require.NoError(t, err)

	replay, err := s.CommitSale(ctx, saleFor("SKU-A", 1, 1000, "same-key"), false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	product, err := s.GetProductBySKU(ctx, "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, 4, product.Stock)
}

func TestLedgerSeqMonotonicUnderConcurrency(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendLedgerEntry(ctx, domain.LedgerEntry{
				Kind:        domain.LedgerKindDeposit,
				AmountCents: int64(i + 1),
				Description: fmt.Sprintf("deposito %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := s.LedgerEntriesInRange(ctx,
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, n)

	seen := make(map[int64]bool, n)
	for _, entry := range entries {
		assert.False(t, seen[entry.Seq], "seq %d assigned twice", entry.Seq)
		seen[entry.Seq] = true
		assert.GreaterOrEqual(t, entry.Seq, int64(1))
		assert.LessOrEqual(t, entry.Seq, int64(n))
	}
}

func TestLedgerBalanceEqualsFold(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()

	mustAppend := func(kind string, amount int64) {
		_, err := s.AppendLedgerEntry(ctx, domain.LedgerEntry{Kind: kind, AmountCents: amount})
		require.NoError(t, err)
	}
	mustAppend(domain.LedgerKindDeposit, 10000)
	mustAppend(domain.LedgerKindExpense, 2500)
	mustAppend(domain.LedgerKindSale, 4000)
	mustAppend(domain.LedgerKindWithdrawal, 3000)

	entries, err := s.LedgerEntriesInRange(ctx,
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	var fold int64
	for _, entry := range entries {
		fold += entry.SignedAmountCents()
	}

	balance, err := s.LedgerBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, fold, balance)
	assert.Equal(t, int64(8500), balance)
}

func TestAppendLedgerEntryValidation(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()

	_, err := s.AppendLedgerEntry(ctx, domain.LedgerEntry{Kind: domain.LedgerKindDeposit, AmountCents: 0})
	assert.True(t, errors.Is(err, store.ErrValidation))

	_, err = s.AppendLedgerEntry(ctx, domain.LedgerEntry{Kind: "propina", AmountCents: 100})
	assert.True(t, errors.Is(err, store.ErrValidation))
}

func TestCommitSaleUnknownCustomer(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedProduct(t, s, "SKU-A", 1000, 5)

	sale := saleFor("SKU-A", 1, 1000, "cust-check")
	sale.CustomerID = "cust-fantasma"
	_, err := s.CommitSale(ctx, sale, false)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestSeededStoreHasWorkingCatalog(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
	for _, p := range products {
		assert.True(t, p.Active)
		assert.Positive(t, p.Stock)
	}

	promos, err := s.ListPromotions(ctx, true)
	require.NoError(t, err)
	assert.NotEmpty(t, promos)
	for _, p := range promos {
		assert.NoError(t, p.Validate())
	}

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, customers)
}

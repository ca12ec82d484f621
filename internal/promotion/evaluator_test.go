package promotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendita/internal/domain"
)

var evalNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func window() (time.Time, time.Time) {
	return evalNow.AddDate(0, -1, 0), evalNow.AddDate(0, 1, 0)
}

func percentPromo(id string, percent float64, minSubtotal int64) domain.Promotion {
	starts, ends := window()
	return domain.Promotion{
		ID:               id,
		Name:             "promo " + id,
		Kind:             domain.PromoPercentage,
		Percent:          percent,
		StartsAt:         starts,
		EndsAt:           ends,
		Active:           true,
		MinSubtotalCents: minSubtotal,
	}
}

func line(sku, category string, qty int, unitPrice int64) domain.CartLine {
	return domain.CartLine{SKU: sku, Name: sku, Category: category, Qty: qty, UnitPriceCents: unitPrice}
}

func subtotalOf(lines []domain.CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotalCents()
	}
	return total
}

func TestPercentageDiscount(t *testing.T) {
	e := NewEvaluator()
	lines := []domain.CartLine{line("SKU-A", "abarrotes", 3, 10000)}

	result := e.Evaluate([]domain.Promotion{percentPromo("p1", 10, 0)}, lines, subtotalOf(lines), evalNow)
	require.NotNil(t, result)
	assert.Equal(t, "p1", result.PromotionID)
	assert.Equal(t, int64(3000), result.DiscountCents)
}

func TestMinSubtotalGate(t *testing.T) {
	e := NewEvaluator()
	lines := []domain.CartLine{line("SKU-A", "abarrotes", 1, 4999)}

	result := e.Evaluate([]domain.Promotion{percentPromo("p1", 10, 5000)}, lines, subtotalOf(lines), evalNow)
	assert.Nil(t, result)

	lines[0].UnitPriceCents = 5000
	result = e.Evaluate([]domain.Promotion{percentPromo("p1", 10, 5000)}, lines, subtotalOf(lines), evalNow)
	require.NotNil(t, result)
	assert.Equal(t, int64(500), result.DiscountCents)
}

func TestFixedAmountClampedToEligibleSubtotal(t *testing.T) {
	e := NewEvaluator()
	starts, ends := window()
	promo := domain.Promotion{
		ID: "p1", Name: "fijo", Kind: domain.PromoFixedAmount, AmountCents: 5000,
		StartsAt: starts, EndsAt: ends, Active: true,
		ProductSKUs: []string{"SKU-A"},
	}
	lines := []domain.CartLine{
		line("SKU-A", "abarrotes", 1, 3000),
		line("SKU-B", "bebidas", 1, 9000),
	}

	result := e.Evaluate([]domain.Promotion{promo}, lines, subtotalOf(lines), evalNow)
	require.NotNil(t, result)
	assert.Equal(t, int64(3000), result.DiscountCents)
	assert.Equal(t, []string{"SKU-A"}, result.AppliedSKUs)
}

func TestBuyXGetY(t *testing.T) {
	e := NewEvaluator()
	starts, ends := window()
	promo := domain.Promotion{
		ID: "p1", Name: "2x1", Kind: domain.PromoBuyXGetY, BuyQty: 2, GetQty: 1,
		StartsAt: starts, EndsAt: ends, Active: true,
		ProductSKUs: []string{"SKU-A"},
	}

	// Three units: one full 2+1 set, one unit free.
	lines := []domain.CartLine{line("SKU-A", "abarrotes", 3, 10000)}
	result := e.Evaluate([]domain.Promotion{promo}, lines, subtotalOf(lines), evalNow)
	require.NotNil(t, result)
	assert.Equal(t, int64(10000), result.DiscountCents)

	// One unit: no complete set, no discount.
	lines = []domain.CartLine{line("SKU-A", "abarrotes", 1, 10000)}
	assert.Nil(t, e.Evaluate([]domain.Promotion{promo}, lines, subtotalOf(lines), evalNow))
}

func TestBundleAllOrNothing(t *testing.T) {
	e := NewEvaluator()
	starts, ends := window()
	promo := domain.Promotion{
		ID: "p1", Name: "desayuno", Kind: domain.PromoBundle, AmountCents: 1000,
		BundleSKUs: []string{"SKU-PAN", "SKU-LECHE"},
		StartsAt:   starts, EndsAt: ends, Active: true,
	}

	partial := []domain.CartLine{line("SKU-PAN", "panaderia", 1, 4600)}
	assert.Nil(t, e.Evaluate([]domain.Promotion{promo}, partial, subtotalOf(partial), evalNow))

	full := []domain.CartLine{
		line("SKU-PAN", "panaderia", 1, 4600),
		line("SKU-LECHE", "lacteos", 2, 2700),
	}
	result := e.Evaluate([]domain.Promotion{promo}, full, subtotalOf(full), evalNow)
	require.NotNil(t, result)
	assert.Equal(t, int64(1000), result.DiscountCents)
}

func TestLargestDiscountWinsFirstOnTie(t *testing.T) {
	e := NewEvaluator()
	lines := []domain.CartLine{line("SKU-A", "abarrotes", 1, 10000)}
	subtotal := subtotalOf(lines)

	big := percentPromo("big", 20, 0)
	small := percentPromo("small", 5, 0)
	result := e.Evaluate([]domain.Promotion{small, big}, lines, subtotal, evalNow)
	require.NotNil(t, result)
	assert.Equal(t, "big", result.PromotionID)

	// Equal discounts: the first in input order stays the winner.
	twinA := percentPromo("twin-a", 10, 0)
	twinB := percentPromo("twin-b", 10, 0)
	result = e.Evaluate([]domain.Promotion{twinA, twinB}, lines, subtotal, evalNow)
	require.NotNil(t, result)
	assert.Equal(t, "twin-a", result.PromotionID)
}

func TestInvalidPromotionsSkipped(t *testing.T) {
	e := NewEvaluator()
	lines := []domain.CartLine{line("SKU-A", "abarrotes", 1, 10000)}
	subtotal := subtotalOf(lines)
	starts, ends := window()

	inactive := percentPromo("inactive", 10, 0)
	inactive.Active = false

	expired := percentPromo("expired", 10, 0)
	expired.StartsAt = evalNow.AddDate(0, -2, 0)
	expired.EndsAt = evalNow.AddDate(0, -1, 0)

	future := percentPromo("future", 10, 0)
	future.StartsAt = evalNow.AddDate(0, 1, 0)
	future.EndsAt = evalNow.AddDate(0, 2, 0)

	exhausted := domain.Promotion{
		ID: "exhausted", Name: "agotada", Kind: domain.PromoPercentage, Percent: 10,
		StartsAt: starts, EndsAt: ends, Active: true, MaxUses: 5, CurrentUses: 5,
	}

	assert.Nil(t, e.Evaluate([]domain.Promotion{inactive, expired, future, exhausted}, lines, subtotal, evalNow))
}

func TestValidityWindowBoundaries(t *testing.T) {
	e := NewEvaluator()
	lines := []domain.CartLine{line("SKU-A", "abarrotes", 1, 10000)}
	subtotal := subtotalOf(lines)

	promo := percentPromo("p1", 10, 0)

	// The window is inclusive at starts_at and exclusive at ends_at.
	assert.NotNil(t, e.Evaluate([]domain.Promotion{promo}, lines, subtotal, promo.StartsAt))
	assert.Nil(t, e.Evaluate([]domain.Promotion{promo}, lines, subtotal, promo.EndsAt))
	assert.Nil(t, e.Evaluate([]domain.Promotion{promo}, lines, subtotal, promo.StartsAt.Add(-time.Second)))
}

func TestCategoryEligibility(t *testing.T) {
	e := NewEvaluator()
	starts, ends := window()
	promo := domain.Promotion{
		ID: "p1", Name: "bebidas", Kind: domain.PromoPercentage, Percent: 50,
		StartsAt: starts, EndsAt: ends, Active: true,
		Categories: []string{"bebidas"},
	}
	lines := []domain.CartLine{
		line("SKU-AGUA", "bebidas", 2, 1600),
		line("SKU-ARROZ", "abarrotes", 1, 3200),
	}

	result := e.Evaluate([]domain.Promotion{promo}, lines, subtotalOf(lines), evalNow)
	require.NotNil(t, result)
	assert.Equal(t, int64(1600), result.DiscountCents)
	assert.Equal(t, []string{"SKU-AGUA"}, result.AppliedSKUs)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEvaluator()
	lines := []domain.CartLine{
		line("SKU-A", "abarrotes", 3, 10000),
		line("SKU-B", "bebidas", 2, 1600),
	}
	subtotal := subtotalOf(lines)
	promos := []domain.Promotion{
		percentPromo("p1", 10, 0),
		percentPromo("p2", 10, 0),
		percentPromo("p3", 7, 0),
	}

	first := e.Evaluate(promos, lines, subtotal, evalNow)
	for i := 0; i < 20; i++ {
		again := e.Evaluate(promos, lines, subtotal, evalNow)
		require.NotNil(t, again)
		assert.Equal(t, first.PromotionID, again.PromotionID)
		assert.Equal(t, first.DiscountCents, again.DiscountCents)
	}
}

func TestEmptyCartAndZeroSubtotal(t *testing.T) {
	e := NewEvaluator()
	promos := []domain.Promotion{percentPromo("p1", 10, 0)}

	assert.Nil(t, e.Evaluate(promos, nil, 0, evalNow))
	assert.Nil(t, e.Evaluate(promos, []domain.CartLine{}, 0, evalNow))
}

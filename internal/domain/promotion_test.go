package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validWindow() (time.Time, time.Time) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return now, now.AddDate(0, 1, 0)
}

func TestValidateRejectsForeignKindFields(t *testing.T) {
	starts, ends := validWindow()
	base := Promotion{Name: "p", StartsAt: starts, EndsAt: ends}

	cases := []struct {
		name  string
		build func() Promotion
	}{
		{"percentage with amount", func() Promotion {
			p := base
			p.Kind = PromoPercentage
			p.Percent = 10
			p.AmountCents = 500
			return p
		}},
		{"percentage with buy qty", func() Promotion {
			p := base
			p.Kind = PromoPercentage
			p.Percent = 10
			p.BuyQty = 2
			return p
		}},
		{"fixed amount with percent", func() Promotion {
			p := base
			p.Kind = PromoFixedAmount
			p.AmountCents = 500
			p.Percent = 10
			return p
		}},
		{"buy x get y with bundle skus", func() Promotion {
			p := base
			p.Kind = PromoBuyXGetY
			p.BuyQty = 2
			p.GetQty = 1
			p.BundleSKUs = []string{"A", "B"}
			return p
		}},
		{"bundle with percent", func() Promotion {
			p := base
			p.Kind = PromoBundle
			p.AmountCents = 500
			p.BundleSKUs = []string{"A", "B"}
			p.Percent = 10
			return p
		}},
		{"unknown kind", func() Promotion {
			p := base
			p.Kind = "mystery"
			return p
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.build().Validate(), ErrInvalidPromotion)
		})
	}
}

func TestValidateAcceptsEachKind(t *testing.T) {
	starts, ends := validWindow()

	assert.NoError(t, Promotion{
		Name: "pct", Kind: PromoPercentage, Percent: 15, StartsAt: starts, EndsAt: ends,
	}.Validate())
	assert.NoError(t, Promotion{
		Name: "fijo", Kind: PromoFixedAmount, AmountCents: 500, StartsAt: starts, EndsAt: ends,
	}.Validate())
	assert.NoError(t, Promotion{
		Name: "2x1", Kind: PromoBuyXGetY, BuyQty: 2, GetQty: 1, StartsAt: starts, EndsAt: ends,
	}.Validate())
	assert.NoError(t, Promotion{
		Name: "combo", Kind: PromoBundle, AmountCents: 1000, BundleSKUs: []string{"A", "B"}, StartsAt: starts, EndsAt: ends,
	}.Validate())
}

func TestValidateWindowAndBounds(t *testing.T) {
	starts, ends := validWindow()

	inverted := Promotion{Name: "p", Kind: PromoPercentage, Percent: 10, StartsAt: ends, EndsAt: starts}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidPromotion)

	overPercent := Promotion{Name: "p", Kind: PromoPercentage, Percent: 101, StartsAt: starts, EndsAt: ends}
	assert.ErrorIs(t, overPercent.Validate(), ErrInvalidPromotion)

	negativeCap := Promotion{Name: "p", Kind: PromoPercentage, Percent: 10, StartsAt: starts, EndsAt: ends, MaxUses: -1}
	assert.ErrorIs(t, negativeCap.Validate(), ErrInvalidPromotion)

	singleBundle := Promotion{Name: "p", Kind: PromoBundle, AmountCents: 100, BundleSKUs: []string{"A"}, StartsAt: starts, EndsAt: ends}
	assert.ErrorIs(t, singleBundle.Validate(), ErrInvalidPromotion)
}

func TestValidAtAndExhausted(t *testing.T) {
	starts, ends := validWindow()
	p := Promotion{Name: "p", Kind: PromoPercentage, Percent: 10, StartsAt: starts, EndsAt: ends, Active: true}

	assert.True(t, p.ValidAt(starts))
	assert.True(t, p.ValidAt(ends.Add(-time.Second)))
	assert.False(t, p.ValidAt(ends))
	assert.False(t, p.ValidAt(starts.Add(-time.Second)))

	p.MaxUses = 3
	p.CurrentUses = 3
	assert.True(t, p.Exhausted())
	assert.False(t, p.ValidAt(starts))

	// MaxUses zero means unlimited.
	p.MaxUses = 0
	assert.False(t, p.Exhausted())
	assert.True(t, p.ValidAt(starts))
}

func TestSignedAmountCents(t *testing.T) {
	assert.Equal(t, int64(500), LedgerEntry{Kind: LedgerKindSale, AmountCents: 500}.SignedAmountCents())
	assert.Equal(t, int64(500), LedgerEntry{Kind: LedgerKindDeposit, AmountCents: 500}.SignedAmountCents())
	assert.Equal(t, int64(-500), LedgerEntry{Kind: LedgerKindExpense, AmountCents: 500}.SignedAmountCents())
	assert.Equal(t, int64(-500), LedgerEntry{Kind: LedgerKindWithdrawal, AmountCents: 500}.SignedAmountCents())
}

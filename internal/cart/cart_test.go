package cart

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiendita/internal/domain"
	"tiendita/internal/store"
)

func product(sku string, priceCents int64, stock int) domain.Product {
	return domain.Product{
		SKU:        sku,
		Name:       "Producto " + sku,
		Category:   "abarrotes",
		PriceCents: priceCents,
		Stock:      stock,
		Active:     true,
	}
}

func TestAddLineMergesSameSKU(t *testing.T) {
	c := New()
	p := product("SKU-A", 1000, 10)

	require.NoError(t, c.AddLine(p, 2))
	require.NoError(t, c.AddLine(p, 3))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Qty)
	assert.Equal(t, int64(5000), c.Subtotal())
}

func TestAddLineRejectsOverStock(t *testing.T) {
	c := New()
	p := product("SKU-A", 1000, 3)

	require.NoError(t, c.AddLine(p, 2))
	err := c.AddLine(p, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))

	// The failed add must not change the cart.
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, 2, c.Lines()[0].Qty)
}

func TestAddLineRejectsInactiveAndBadQty(t *testing.T) {
	c := New()

	inactive := product("SKU-A", 1000, 10)
	inactive.Active = false
	err := c.AddLine(inactive, 1)
	assert.True(t, errors.Is(err, store.ErrValidation))

	err = c.AddLine(product("SKU-B", 1000, 10), 0)
	assert.True(t, errors.Is(err, store.ErrValidation))
}

func TestAddLineSnapshotsUnitPrice(t *testing.T) {
	c := New()
	p := product("SKU-A", 1500, 10)
	require.NoError(t, c.AddLine(p, 1))

	// A later catalog price change must not reprice the open cart.
	p.PriceCents = 9900
	assert.Equal(t, int64(1500), c.Lines()[0].UnitPriceCents)
	assert.Equal(t, int64(1500), c.Subtotal())
}

func TestSetQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(product("SKU-A", 1000, 5), 2))

	require.NoError(t, c.SetQuantity("SKU-A", 4))
	assert.Equal(t, int64(4000), c.Subtotal())

	err := c.SetQuantity("SKU-A", 6)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))

	require.NoError(t, c.SetQuantity("SKU-A", 0))
	assert.True(t, c.Empty())

	err = c.SetQuantity("SKU-A", 1)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRemoveLine(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(product("SKU-A", 1000, 5), 1))
	require.NoError(t, c.AddLine(product("SKU-B", 2000, 5), 1))

	require.NoError(t, c.RemoveLine("SKU-A"))
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, "SKU-B", c.Lines()[0].SKU)

	err := c.RemoveLine("SKU-A")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestSubtotalRecomputedFromLines(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(product("SKU-A", 1234, 10), 3))
	require.NoError(t, c.AddLine(product("SKU-B", 999, 10), 2))

	assert.Equal(t, int64(3*1234+2*999), c.Subtotal())

	require.NoError(t, c.SetQuantity("SKU-B", 1))
	assert.Equal(t, int64(3*1234+999), c.Subtotal())
}

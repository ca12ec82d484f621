// Package cart holds the candidate line items of a sale before commit. A
// cart enforces per-line stock ceilings against the product stock observed
// when the line was added; the authoritative check happens again inside
// CommitSale, where stock is re-read under lock.
package cart

import (
	"fmt"
	"strings"

	"tiendita/internal/domain"
	"tiendita/internal/store"
)

type Cart struct {
	lines []domain.CartLine
	// stock is the per-SKU ceiling snapshotted from the product at add time.
	stock map[string]int
}

func New() *Cart {
	return &Cart{stock: make(map[string]int)}
}

// AddLine adds qty units of the product, merging into an existing line for
// the same SKU. The unit price is snapshotted from the product now; later
// price edits do not reprice the cart. Fails with ErrInsufficientStock when
// the requested quantity plus what the cart already holds for this product
// exceeds the product's stock.
func (c *Cart) AddLine(product domain.Product, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	sku := strings.ToUpper(strings.TrimSpace(product.SKU))
	if sku == "" || !product.Active {
		return fmt.Errorf("%w: product unavailable", store.ErrValidation)
	}

	held := 0
	idx := -1
	for i, line := range c.lines {
		if line.SKU == sku {
			held = line.Qty
			idx = i
			break
		}
	}

	if held+qty > product.Stock {
		return fmt.Errorf("%w: sku %s has %d in stock, %d requested", store.ErrInsufficientStock, sku, product.Stock, held+qty)
	}

	c.stock[sku] = product.Stock
	if idx >= 0 {
		c.lines[idx].Qty += qty
		return nil
	}

	c.lines = append(c.lines, domain.CartLine{
		SKU:            sku,
		Name:           product.Name,
		Category:       product.Category,
		Qty:            qty,
		UnitPriceCents: product.PriceCents,
	})
	return nil
}

// SetQuantity replaces the quantity of an existing line. Setting it to zero
// removes the line. The stock ceiling snapshotted at add time still applies.
func (c *Cart) SetQuantity(sku string, qty int) error {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if qty < 0 {
		return fmt.Errorf("%w: quantity must not be negative", store.ErrValidation)
	}
	if qty == 0 {
		return c.RemoveLine(sku)
	}

	for i, line := range c.lines {
		if line.SKU != sku {
			continue
		}
		if qty > c.stock[sku] {
			return fmt.Errorf("%w: sku %s has %d in stock, %d requested", store.ErrInsufficientStock, sku, c.stock[sku], qty)
		}
		c.lines[i].Qty = qty
		return nil
	}
	return fmt.Errorf("%w: sku %s not in cart", store.ErrNotFound, sku)
}

func (c *Cart) RemoveLine(sku string) error {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	for i, line := range c.lines {
		if line.SKU == sku {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			delete(c.stock, sku)
			return nil
		}
	}
	return fmt.Errorf("%w: sku %s not in cart", store.ErrNotFound, sku)
}

// Subtotal is recomputed from the lines on every call; it is never cached
// apart from them.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, line := range c.lines {
		total += line.LineTotalCents()
	}
	return total
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

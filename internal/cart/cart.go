package cart

import (
	"errors"
	"fmt"

	"github.com/huyngo-dev/pos-terminal/internal/catalog"
	"github.com/huyngo-dev/pos-terminal/internal/pricing"
)

var (
	// ErrOutOfStock is returned when the product has no remaining stock.
	ErrOutOfStock = errors.New("product out of stock")
	// ErrExceedsStock is returned when the requested quantity is above the
	// available stock. The cart is left unchanged.
	ErrExceedsStock = errors.New("quantity exceeds available stock")
	// ErrNotFound is returned when no line exists for the product.
	ErrNotFound = errors.New("cart line not found")
)

// Line is one pending product × quantity entry. It exists only inside an open
// editing session and never outlives it.
type Line struct {
	Product catalog.Product
	Qty     int
	Notes   string
}

// PricingLine projects the cart line into the pricing engine's shape.
func (l Line) PricingLine() pricing.Line {
	return pricing.Line{UnitPrice: l.Product.UnitPrice, Qty: l.Qty, TaxBps: l.Product.TaxBps}
}

// Cart holds the pending lines of one editing session, in add order. It is not
// safe for concurrent use; a session owns exactly one cart.
type Cart struct {
	lines []Line
}

// Add appends qty units of the product, merging into an existing line for the
// same product. Quantity never exceeds the product stock; a rejected add
// mutates nothing.
func (c *Cart) Add(p catalog.Product, qty int, notes string) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrExceedsStock)
	}
	if p.Stock <= 0 {
		return ErrOutOfStock
	}
	if i := c.index(p.ID); i >= 0 {
		if c.lines[i].Qty+qty > p.Stock {
			return ErrExceedsStock
		}
		c.lines[i].Qty += qty
		if notes != "" {
			c.lines[i].Notes = notes
		}
		return nil
	}
	if qty > p.Stock {
		return ErrExceedsStock
	}
	c.lines = append(c.lines, Line{Product: p, Qty: qty, Notes: notes})
	return nil
}

// SetQty sets the quantity of the product's line. Zero removes the line; a
// quantity above stock is rejected with the line unchanged.
func (c *Cart) SetQty(productID string, qty int) error {
	i := c.index(productID)
	if i < 0 {
		return ErrNotFound
	}
	if qty <= 0 {
		c.removeAt(i)
		return nil
	}
	if qty > c.lines[i].Product.Stock {
		return ErrExceedsStock
	}
	c.lines[i].Qty = qty
	return nil
}

// Remove drops the product's line if present.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.removeAt(i)
	}
}

// SetNotes attaches preparation notes to the product's line.
func (c *Cart) SetNotes(productID, notes string) error {
	i := c.index(productID)
	if i < 0 {
		return ErrNotFound
	}
	c.lines[i].Notes = notes
	return nil
}

// Lines returns a copy of the pending lines in add order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// PricingLines projects all pending lines for the pricing engine, in add order.
func (c *Cart) PricingLines() []pricing.Line {
	out := make([]pricing.Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = l.PricingLine()
	}
	return out
}

// Len reports the number of pending lines.
func (c *Cart) Len() int { return len(c.lines) }

// IsEmpty reports whether the cart has no pending lines.
func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Clear drops every pending line.
func (c *Cart) Clear() { c.lines = nil }

func (c *Cart) index(productID string) int {
	for i, l := range c.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}

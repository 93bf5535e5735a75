package order

import "github.com/huyngo-dev/pos-terminal/internal/pricing"

// Status is the lifecycle state of an order as tracked by the backend.
type Status string

const (
	StatusPending   Status = "pending"
	StatusServed    Status = "served"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus mirrors the backend payment flag.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Order is the external aggregate. The core only computes the monetary fields
// it sends; the backend owns everything else.
type Order struct {
	ID            string
	TableID       string
	CustomerName  string
	CustomerCount int
	Subtotal      pricing.Money
	Tax           pricing.Money
	Discount      pricing.Money
	Total         pricing.Money
	Status        Status
	PaymentStatus PaymentStatus
}

// Line is a persisted order line fetched from the backend. Discount is
// recomputed locally before being pushed back; Total is server-computed and
// authoritative until then.
type Line struct {
	ID        string
	ProductID string
	Name      string
	UnitPrice pricing.Money
	Qty       int
	TaxBps    int32
	Discount  pricing.Money
	Total     pricing.Money
}

// PricingLine projects the persisted line into the pricing engine's shape.
func (l Line) PricingLine() pricing.Line {
	return pricing.Line{UnitPrice: l.UnitPrice, Qty: l.Qty, TaxBps: l.TaxBps}
}

// NewLine is a line-item payload for order creation or add-items commands.
type NewLine struct {
	ProductID string
	Name      string
	UnitPrice pricing.Money
	Qty       int
	TaxBps    int32
	Discount  pricing.Money
	Notes     string
}

// CreatePayload carries the header fields of a brand-new order. The monetary
// figures are the exact floored values the operator saw in the footer.
type CreatePayload struct {
	TableID       string
	CustomerName  string
	CustomerCount int
	Subtotal      pricing.Money
	Tax           pricing.Money
	Discount      pricing.Money
	Total         pricing.Money
}

// HeaderPatch is a partial update of the order header. Nil fields are left
// untouched by the backend.
type HeaderPatch struct {
	CustomerName  *string
	CustomerCount *int
	Subtotal      *pricing.Money
	Tax           *pricing.Money
	Discount      *pricing.Money
	Total         *pricing.Money
}

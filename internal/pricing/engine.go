package pricing

// Money represents a monetary value in whole Vietnamese đồng. The currency has
// no sub-unit in circulation, so every figure that reaches a display or the
// backend is an integer amount.
type Money = int64

// Mode selects which tax formula applies to listed product prices. The store
// settings carry a single global flag; callers must thread the resolved mode
// through every pricing call instead of reading shared state.
type Mode int

const (
	// TaxExclusive means listed prices do not contain tax; tax is added on top.
	TaxExclusive Mode = iota
	// TaxInclusive means listed prices already contain tax; the tax share is
	// carved out of the gross amount.
	TaxInclusive
)

func (m Mode) String() string {
	if m == TaxInclusive {
		return "tax_inclusive"
	}
	return "tax_exclusive"
}

// ModeFor maps the store-level priceIncludesTax flag to a Mode.
func ModeFor(priceIncludesTax bool) Mode {
	if priceIncludesTax {
		return TaxInclusive
	}
	return TaxExclusive
}

// Line is one product × quantity entry, persisted or pending.
type Line struct {
	UnitPrice Money
	Qty       int
	// TaxBps is the tax rate in basis points (1000 == 10%). Zero means untaxed.
	TaxBps int32
}

// Basis returns the listed gross amount of the line. It is the proportional
// weight used for discount allocation, regardless of tax mode.
func (l Line) Basis() Money {
	if l.Qty <= 0 {
		return 0
	}
	return Money(l.Qty) * l.UnitPrice
}

// LineAmounts holds the pre-discount subtotal and tax of a single line.
type LineAmounts struct {
	Subtotal Money
	Tax      Money
}

// PriceLine computes subtotal and tax for one line in isolation.
//
// Precondition: qty >= 1 and unitPrice > 0; callers must not pass non-positive
// quantities.
//
// Under TaxExclusive the subtotal is the listed amount and tax is added with
// half-up rounding. Under TaxInclusive the listed amount is gross; the subtotal
// is carved out with half-up rounding and tax is the exact remainder, so
// subtotal + tax always equals the gross amount.
func PriceLine(unitPrice Money, qty int, taxBps int32, mode Mode) LineAmounts {
	gross := Money(qty) * unitPrice
	if taxBps <= 0 {
		return LineAmounts{Subtotal: gross}
	}
	if mode == TaxInclusive {
		subtotal := roundDiv(gross*10000, 10000+Money(taxBps))
		return LineAmounts{Subtotal: subtotal, Tax: gross - subtotal}
	}
	return LineAmounts{Subtotal: gross, Tax: roundDiv(gross*Money(taxBps), 10000)}
}

// roundDiv divides a by b rounding half up. Operands must be non-negative.
func roundDiv(a, b Money) Money {
	return (a + b/2) / b
}

// AllocateDiscount distributes an order-level discount across lines in
// proportion to each line's basis. The slice order is significant: existing
// order lines come first, cart lines after, and the final line absorbs the
// rounding remainder so the allocated sum equals the requested discount
// exactly. The allocation is recomputed in full on every change; no per-line
// result survives a basis change.
func AllocateDiscount(discount Money, lines []Line) []Money {
	out := make([]Money, len(lines))
	if len(lines) == 0 || discount <= 0 {
		return out
	}
	var totalBasis Money
	for _, l := range lines {
		totalBasis += l.Basis()
	}
	if totalBasis <= 0 {
		return out
	}
	var allocated Money
	last := len(lines) - 1
	for i := 0; i < last; i++ {
		// Truncating integer division, never round.
		share := discount * lines[i].Basis() / totalBasis
		out[i] = share
		allocated += share
	}
	rest := discount - allocated
	if rest < 0 {
		rest = 0
	}
	out[last] = rest
	return out
}

// Summary aggregates the order-level figures shown in the footer and sent to
// the backend. Total is gross of discount: floor(subtotal) + floor(tax),
// clamped at zero. The discount travels as its own field; AmountDue derives
// the net figure for payment.
type Summary struct {
	Subtotal Money
	Tax      Money
	Discount Money
	Total    Money
	// LineDiscounts mirrors the AllocateDiscount output for the aggregated
	// lines, for per-line display. It is not re-summed into Discount.
	LineDiscounts []Money
}

// AmountDue is the net amount a customer pays: total minus discount, never
// negative.
func (s Summary) AmountDue() Money {
	due := s.Total - s.Discount
	if due < 0 {
		return 0
	}
	return due
}

// Aggregate prices every line under the given mode and produces the order
// summary. Lines must be the full concatenation of existing lines followed by
// cart lines, in that order; the same slice drives the discount allocation.
// Whatever integers this returns are exactly what the caller displays and
// transmits. The figures are never re-derived downstream.
func Aggregate(lines []Line, mode Mode, discount Money) Summary {
	var subtotal, tax Money
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		a := PriceLine(l.UnitPrice, l.Qty, l.TaxBps, mode)
		subtotal += a.Subtotal
		tax += a.Tax
	}
	if discount < 0 {
		discount = 0
	}
	total := subtotal + tax
	if total < 0 {
		total = 0
	}
	return Summary{
		Subtotal:      subtotal,
		Tax:           tax,
		Discount:      discount,
		Total:         total,
		LineDiscounts: AllocateDiscount(discount, lines),
	}
}

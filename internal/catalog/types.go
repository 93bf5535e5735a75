package catalog

import "github.com/huyngo-dev/pos-terminal/internal/pricing"

// Product is the read-only product record served by the backend. UnitPrice is
// the listed face price; whether it contains tax depends on the store mode.
type Product struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	// TaxBps is the product tax rate in basis points. Zero means untaxed.
	TaxBps int32 `json:"taxBps"`
	// BeforeTaxPrice is the precomputed tax-exclusive price, present when the
	// store lists tax-inclusive prices.
	BeforeTaxPrice *pricing.Money `json:"beforeTaxPrice,omitempty"`
	// AfterTaxPrice is the precomputed tax-inclusive price, present when the
	// store lists tax-exclusive prices.
	AfterTaxPrice *pricing.Money `json:"afterTaxPrice,omitempty"`
	Stock         int            `json:"stock"`
}

// DisplayPrice returns the price shown next to the product under the given
// mode, falling back to the listed price when no precomputed counterpart is
// available.
func (p Product) DisplayPrice(mode pricing.Mode) pricing.Money {
	if mode == pricing.TaxInclusive && p.BeforeTaxPrice != nil {
		return *p.BeforeTaxPrice
	}
	if mode == pricing.TaxExclusive && p.AfterTaxPrice != nil {
		return *p.AfterTaxPrice
	}
	return p.UnitPrice
}

// Category groups products on the menu.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StoreSettings carries the store-wide pricing switch.
type StoreSettings struct {
	PriceIncludesTax bool `json:"priceIncludesTax"`
}

// Mode resolves the pricing mode implied by the settings.
func (s StoreSettings) Mode() pricing.Mode {
	return pricing.ModeFor(s.PriceIncludesTax)
}

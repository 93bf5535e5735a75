package backend

import (
	"github.com/huyngo-dev/pos-terminal/internal/catalog"
	"github.com/huyngo-dev/pos-terminal/internal/order"
	"github.com/huyngo-dev/pos-terminal/internal/pricing"
)

type productDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	UnitPrice      string  `json:"unitPrice"`
	TaxRatePercent *string `json:"taxRatePercent"`
	BeforeTaxPrice *string `json:"beforeTaxPrice"`
	AfterTaxPrice  *string `json:"afterTaxPrice"`
	Stock          int     `json:"stock"`
}

func (d productDTO) toDomain() (catalog.Product, error) {
	unitPrice, err := parseAmount(d.UnitPrice)
	if err != nil {
		return catalog.Product{}, err
	}
	taxBps, err := parsePercentBps(d.TaxRatePercent)
	if err != nil {
		return catalog.Product{}, err
	}
	before, err := parseOptionalAmount(d.BeforeTaxPrice)
	if err != nil {
		return catalog.Product{}, err
	}
	after, err := parseOptionalAmount(d.AfterTaxPrice)
	if err != nil {
		return catalog.Product{}, err
	}
	return catalog.Product{
		ID:             d.ID,
		Name:           d.Name,
		UnitPrice:      unitPrice,
		TaxBps:         taxBps,
		BeforeTaxPrice: before,
		AfterTaxPrice:  after,
		Stock:          d.Stock,
	}, nil
}

type categoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type settingsDTO struct {
	PriceIncludesTax bool `json:"priceIncludesTax"`
}

type orderDTO struct {
	ID            string `json:"id"`
	TableID       string `json:"tableId"`
	CustomerName  string `json:"customerName"`
	CustomerCount int    `json:"customerCount"`
	Subtotal      string `json:"subtotal"`
	Tax           string `json:"tax"`
	Discount      string `json:"discount"`
	Total         string `json:"total"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

func (d orderDTO) toDomain() (order.Order, error) {
	subtotal, err := parseAmount(d.Subtotal)
	if err != nil {
		return order.Order{}, err
	}
	tax, err := parseAmount(d.Tax)
	if err != nil {
		return order.Order{}, err
	}
	discount, err := parseAmount(d.Discount)
	if err != nil {
		return order.Order{}, err
	}
	total, err := parseAmount(d.Total)
	if err != nil {
		return order.Order{}, err
	}
	return order.Order{
		ID:            d.ID,
		TableID:       d.TableID,
		CustomerName:  d.CustomerName,
		CustomerCount: d.CustomerCount,
		Subtotal:      subtotal,
		Tax:           tax,
		Discount:      discount,
		Total:         total,
		Status:        order.Status(d.Status),
		PaymentStatus: order.PaymentStatus(d.PaymentStatus),
	}, nil
}

type lineDTO struct {
	ID             string  `json:"id"`
	ProductID      string  `json:"productId"`
	Name           string  `json:"name"`
	UnitPrice      string  `json:"unitPrice"`
	Quantity       int     `json:"quantity"`
	TaxRatePercent *string `json:"taxRatePercent"`
	Discount       string  `json:"discount"`
	Total          string  `json:"total"`
}

func (d lineDTO) toDomain() (order.Line, error) {
	unitPrice, err := parseAmount(d.UnitPrice)
	if err != nil {
		return order.Line{}, err
	}
	taxBps, err := parsePercentBps(d.TaxRatePercent)
	if err != nil {
		return order.Line{}, err
	}
	discount, err := parseAmount(d.Discount)
	if err != nil {
		return order.Line{}, err
	}
	total, err := parseAmount(d.Total)
	if err != nil {
		return order.Line{}, err
	}
	return order.Line{
		ID:        d.ID,
		ProductID: d.ProductID,
		Name:      d.Name,
		UnitPrice: unitPrice,
		Qty:       d.Quantity,
		TaxBps:    taxBps,
		Discount:  discount,
		Total:     total,
	}, nil
}

type newLineDTO struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPrice      string `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	TaxRatePercent string `json:"taxRatePercent"`
	Discount       string `json:"discount"`
	Notes          string `json:"notes,omitempty"`
}

func toNewLineDTOs(lines []order.NewLine) []newLineDTO {
	out := make([]newLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, newLineDTO{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      formatAmount(l.UnitPrice),
			Quantity:       l.Qty,
			TaxRatePercent: formatPercent(l.TaxBps),
			Discount:       formatAmount(l.Discount),
			Notes:          l.Notes,
		})
	}
	return out
}

type createOrderReq struct {
	TableID       string       `json:"tableId,omitempty"`
	CustomerName  string       `json:"customerName"`
	CustomerCount int          `json:"customerCount"`
	Subtotal      string       `json:"subtotal"`
	Tax           string       `json:"tax"`
	Discount      string       `json:"discount"`
	Total         string       `json:"total"`
	Items         []newLineDTO `json:"items"`
}

type addLinesReq struct {
	Items []newLineDTO `json:"items"`
}

type headerPatchDTO struct {
	CustomerName  *string `json:"customerName,omitempty"`
	CustomerCount *int    `json:"customerCount,omitempty"`
	Subtotal      *string `json:"subtotal,omitempty"`
	Tax           *string `json:"tax,omitempty"`
	Discount      *string `json:"discount,omitempty"`
	Total         *string `json:"total,omitempty"`
}

type lineDiscountReq struct {
	Discount string `json:"discount"`
}

func optionalAmount(m *pricing.Money) *string {
	if m == nil {
		return nil
	}
	s := formatAmount(*m)
	return &s
}

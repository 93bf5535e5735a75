package backend

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/huyngo-dev/pos-terminal/internal/pricing"
)

// Monetary fields cross the REST boundary as decimal strings without
// thousands separators. The đồng has no sub-unit in use, so amounts are
// floored to whole units on the way in and rendered without a fractional part
// on the way out. Tax rates travel as percent strings ("10" or "10.00") and
// are basis points internally.

func formatAmount(m pricing.Money) string {
	return decimal.NewFromInt(m).String()
}

func parseAmount(value string) (pricing.Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return d.Floor().IntPart(), nil
}

func parseOptionalAmount(value *string) (*pricing.Money, error) {
	if value == nil {
		return nil, nil
	}
	m, err := parseAmount(*value)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func formatPercent(bps int32) string {
	return decimal.New(int64(bps), -2).String()
}

func parsePercentBps(value *string) (int32, error) {
	if value == nil {
		return 0, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse tax rate %q: %w", *value, err)
	}
	return int32(d.Shift(2).Round(0).IntPart()), nil
}

package catalog

import (
	"context"
	"errors"

	"github.com/huyngo-dev/pos-terminal/internal/events"
	"github.com/huyngo-dev/pos-terminal/internal/pricing"
)

// Source is the backend query surface the catalog reads from.
type Source interface {
	GetProducts(ctx context.Context) ([]Product, error)
	GetCategories(ctx context.Context) ([]Category, error)
	GetStoreSettings(ctx context.Context) (StoreSettings, error)
}

// Service provides cache-aside reads over the backend catalog queries. The
// cache is optional; without one every read goes to the source.
type Service struct {
	Source Source
	Cache  *Cache
}

// Products returns the menu products, cached.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	if s == nil || s.Source == nil {
		return nil, errors.New("catalog service not configured")
	}
	var products []Product
	if ok, err := s.Cache.GetJSON(ctx, KeyProducts, &products); err == nil && ok {
		return products, nil
	}
	products, err := s.Source.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, KeyProducts, products)
	return products, nil
}

// Categories returns the menu categories, cached.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	if s == nil || s.Source == nil {
		return nil, errors.New("catalog service not configured")
	}
	var categories []Category
	if ok, err := s.Cache.GetJSON(ctx, KeyCategories, &categories); err == nil && ok {
		return categories, nil
	}
	categories, err := s.Source.GetCategories(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, KeyCategories, categories)
	return categories, nil
}

// Settings returns the store settings, cached.
func (s *Service) Settings(ctx context.Context) (StoreSettings, error) {
	if s == nil || s.Source == nil {
		return StoreSettings{}, errors.New("catalog service not configured")
	}
	var settings StoreSettings
	if ok, err := s.Cache.GetJSON(ctx, KeySettings, &settings); err == nil && ok {
		return settings, nil
	}
	settings, err := s.Source.GetStoreSettings(ctx)
	if err != nil {
		return StoreSettings{}, err
	}
	_ = s.Cache.SetJSON(ctx, KeySettings, settings)
	return settings, nil
}

// Mode resolves the current pricing mode from the store settings.
func (s *Service) Mode(ctx context.Context) (pricing.Mode, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return pricing.TaxExclusive, err
	}
	return settings.Mode(), nil
}

// SubscribeInvalidation drops the order, table, product and per-order line
// read models whenever the edit workflow reports a successful mutation, so the
// surrounding UI refetches fresh state.
func (s *Service) SubscribeInvalidation(bus *events.Bus) {
	if s == nil || bus == nil {
		return
	}
	handler := func(ctx context.Context, ev events.Event) error {
		keys := []string{KeyOrders, KeyTables, KeyProducts}
		if ev.OrderID != "" {
			keys = append(keys, KeyOrderLines(ev.OrderID))
		}
		return s.Cache.Invalidate(ctx, keys...)
	}
	bus.Subscribe(events.TopicOrderCreated, handler)
	bus.Subscribe(events.TopicOrderUpdated, handler)
	bus.Subscribe(events.TopicOrderLineRemoved, handler)
}

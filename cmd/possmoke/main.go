// Command possmoke runs a live smoke pass against a restaurant backend: it
// loads the catalog, opens a checkout session, prices a one-line cart and,
// when POS_SMOKE_SUBMIT is set, submits the resulting order.
package main

import (
	"context"
	"os"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/huyngo-dev/pos-terminal/internal/backend"
	"github.com/huyngo-dev/pos-terminal/internal/catalog"
	"github.com/huyngo-dev/pos-terminal/internal/checkout"
	"github.com/huyngo-dev/pos-terminal/internal/common"
	"github.com/huyngo-dev/pos-terminal/internal/config"
	"github.com/huyngo-dev/pos-terminal/internal/events"
	"github.com/huyngo-dev/pos-terminal/internal/obs"
	"github.com/huyngo-dev/pos-terminal/internal/resilience"
)

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, running without cache")
			redisClient = nil
		}
	}

	breaker := resilience.NewBreaker(cfg.BreakerMinReqs, cfg.BreakerRatio, cfg.BreakerOpenFor)
	client := backend.New(cfg.BackendBaseURL, backend.Options{
		Timeout:     cfg.BackendTimeout,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseBackoff: cfg.RetryBaseBackoff,
		Breaker:     breaker,
		Logger:      logger,
	})

	bus := &events.Bus{}
	catalogSvc := &catalog.Service{
		Source: client,
		Cache:  catalog.NewCache(redisClient, cfg.CacheTTL),
	}
	catalogSvc.SubscribeInvalidation(bus)

	products, err := catalogSvc.Products(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load products")
	}
	categories, err := catalogSvc.Categories(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load categories")
	}
	mode, err := catalogSvc.Mode(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load store settings")
	}
	logger.Info().
		Int("products", len(products)).
		Int("categories", len(categories)).
		Stringer("price_mode", mode).
		Msg("catalog loaded")

	var pick *catalog.Product
	for i := range products {
		if products[i].Stock > 0 {
			pick = &products[i]
			break
		}
	}
	if pick == nil {
		logger.Fatal().Msg("no in-stock product to order")
	}

	session, err := checkout.NewCreate(checkout.Config{
		Service:   client,
		Bus:       bus,
		Logger:    logger,
		PriceMode: mode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open session")
	}
	if err := session.AddProduct(*pick, 1, ""); err != nil {
		logger.Fatal().Err(err).Str("product", pick.Name).Msg("add product")
	}
	if err := session.SetCustomer(checkout.CustomerInfo{Name: "smoke test", Count: 1}); err != nil {
		logger.Fatal().Err(err).Msg("set customer")
	}

	sum := session.Totals()
	logger.Info().
		Str("product", pick.Name).
		Int64("display_price", pick.DisplayPrice(mode)).
		Int64("subtotal", int64(sum.Subtotal)).
		Int64("tax", int64(sum.Tax)).
		Int64("total", int64(sum.Total)).
		Int64("amount_due", int64(sum.AmountDue())).
		Msg("cart priced")

	if !envBool("POS_SMOKE_SUBMIT", false) {
		logger.Info().Msg("dry run complete, set POS_SMOKE_SUBMIT=true to submit")
		return
	}

	ord, err := session.Submit(ctx)
	if err != nil {
		logger.Fatal().Err(err).
			Str("failed_step", string(session.LastFailedStep())).
			Str("operator_message", common.UserMessage(err, "could not submit the order")).
			Msg("submit order")
	}
	logger.Info().
		Str("order_id", ord.ID).
		Int64("total", int64(ord.Total)).
		Str("status", string(ord.Status)).
		Msg("order created")
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

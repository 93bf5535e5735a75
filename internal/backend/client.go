// Package backend implements the order command/query service over the
// restaurant REST API. It is the only place that speaks the wire format; the
// rest of the core works in whole-đồng integers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/huyngo-dev/pos-terminal/internal/catalog"
	"github.com/huyngo-dev/pos-terminal/internal/common"
	"github.com/huyngo-dev/pos-terminal/internal/obs"
	"github.com/huyngo-dev/pos-terminal/internal/order"
	"github.com/huyngo-dev/pos-terminal/internal/pricing"
	"github.com/huyngo-dev/pos-terminal/internal/resilience"
)

// Options tunes the HTTP behaviour of the client.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Breaker     *resilience.Breaker
	Transport   http.RoundTripper
	Logger      zerolog.Logger
}

// Client talks to the restaurant backend. All money leaves as the exact
// floored figures the caller computed; the client never re-derives totals.
type Client struct {
	baseURL string
	http    resilience.HTTPClient
	log     zerolog.Logger
}

// New constructs a backend client for the given base URL.
func New(baseURL string, opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: transport},
			Breaker:     opts.Breaker,
			MaxAttempts: maxAttempts,
			BaseBackoff: opts.BaseBackoff,
			Timeout:     opts.Timeout,
		},
		log: opts.Logger,
	}
}

// GetProducts lists the menu products.
func (c *Client) GetProducts(ctx context.Context) ([]catalog.Product, error) {
	var dtos []productDTO
	if err := c.do(ctx, "get_products", http.MethodGet, "/products", nil, nil, &dtos); err != nil {
		return nil, err
	}
	products := make([]catalog.Product, 0, len(dtos))
	for _, d := range dtos {
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// GetCategories lists the menu categories.
func (c *Client) GetCategories(ctx context.Context) ([]catalog.Category, error) {
	var dtos []categoryDTO
	if err := c.do(ctx, "get_categories", http.MethodGet, "/categories", nil, nil, &dtos); err != nil {
		return nil, err
	}
	categories := make([]catalog.Category, 0, len(dtos))
	for _, d := range dtos {
		categories = append(categories, catalog.Category{ID: d.ID, Name: d.Name})
	}
	return categories, nil
}

// GetStoreSettings fetches the store-wide pricing switch.
func (c *Client) GetStoreSettings(ctx context.Context) (catalog.StoreSettings, error) {
	var dto settingsDTO
	if err := c.do(ctx, "get_settings", http.MethodGet, "/store/settings", nil, nil, &dto); err != nil {
		return catalog.StoreSettings{}, err
	}
	return catalog.StoreSettings{PriceIncludesTax: dto.PriceIncludesTax}, nil
}

// GetOrderLines fetches the persisted lines of an order.
func (c *Client) GetOrderLines(ctx context.Context, orderID string) ([]order.Line, error) {
	var dtos []lineDTO
	path := "/orders/" + url.PathEscape(orderID) + "/items"
	if err := c.do(ctx, "get_order_lines", http.MethodGet, path, nil, nil, &dtos); err != nil {
		return nil, err
	}
	lines := make([]order.Line, 0, len(dtos))
	for _, d := range dtos {
		l, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// CreateOrder creates a new order together with its line items. Like
// AddOrderLines the request carries an idempotency key: creation is not
// idempotent, and the retry layer must not be able to commit it twice.
func (c *Client) CreateOrder(ctx context.Context, payload order.CreatePayload, lines []order.NewLine) (order.Order, error) {
	body := createOrderReq{
		TableID:       payload.TableID,
		CustomerName:  payload.CustomerName,
		CustomerCount: payload.CustomerCount,
		Subtotal:      formatAmount(payload.Subtotal),
		Tax:           formatAmount(payload.Tax),
		Discount:      formatAmount(payload.Discount),
		Total:         formatAmount(payload.Total),
		Items:         toNewLineDTOs(lines),
	}
	headers := http.Header{"Idempotency-Key": []string{uuid.NewString()}}
	var dto orderDTO
	if err := c.do(ctx, "create_order", http.MethodPost, "/orders", headers, body, &dto); err != nil {
		return order.Order{}, err
	}
	return dto.toDomain()
}

// AddOrderLines appends new line items to an existing order. The request
// carries a client-generated idempotency key so a blind resubmission cannot
// duplicate lines server-side.
func (c *Client) AddOrderLines(ctx context.Context, orderID string, lines []order.NewLine) (order.Order, error) {
	path := "/orders/" + url.PathEscape(orderID) + "/items"
	headers := http.Header{"Idempotency-Key": []string{uuid.NewString()}}
	body := addLinesReq{Items: toNewLineDTOs(lines)}
	var dto orderDTO
	if err := c.do(ctx, "add_order_lines", http.MethodPost, path, headers, body, &dto); err != nil {
		return order.Order{}, err
	}
	return dto.toDomain()
}

// UpdateOrder patches the order header. Monetary fields are sent only when
// set, as the exact floored figures supplied.
func (c *Client) UpdateOrder(ctx context.Context, orderID string, patch order.HeaderPatch) (order.Order, error) {
	body := headerPatchDTO{
		CustomerName:  patch.CustomerName,
		CustomerCount: patch.CustomerCount,
		Subtotal:      optionalAmount(patch.Subtotal),
		Tax:           optionalAmount(patch.Tax),
		Discount:      optionalAmount(patch.Discount),
		Total:         optionalAmount(patch.Total),
	}
	var dto orderDTO
	path := "/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, "update_order", http.MethodPatch, path, nil, body, &dto); err != nil {
		return order.Order{}, err
	}
	return dto.toDomain()
}

// UpdateOrderLineDiscount pushes a recomputed per-line discount.
func (c *Client) UpdateOrderLineDiscount(ctx context.Context, lineID string, discount pricing.Money) error {
	path := "/order-items/" + url.PathEscape(lineID)
	body := lineDiscountReq{Discount: formatAmount(discount)}
	return c.do(ctx, "update_line_discount", http.MethodPatch, path, nil, body, nil)
}

// DeleteOrderLine removes a persisted line. The deletion is committed the
// moment the command succeeds; there is no undo.
func (c *Client) DeleteOrderLine(ctx context.Context, lineID string) error {
	path := "/order-items/" + url.PathEscape(lineID)
	return c.do(ctx, "delete_order_line", http.MethodDelete, path, nil, nil, nil)
}

// RecalculateOrder asks the backend to recompute its totals. The result is a
// hint only; the caller's floored figures remain authoritative.
func (c *Client) RecalculateOrder(ctx context.Context, orderID string) (order.Order, error) {
	var dto orderDTO
	path := "/orders/" + url.PathEscape(orderID) + "/recalculate"
	if err := c.do(ctx, "recalculate_order", http.MethodPost, path, nil, nil, &dto); err != nil {
		return order.Order{}, err
	}
	return dto.toDomain()
}

func (c *Client) do(ctx context.Context, op, method, path string, headers http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	result := "ok"
	if err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest) {
		result = "error"
	}
	if obs.BackendRequestDuration != nil {
		obs.BackendRequestDuration.WithLabelValues(op, result).Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		logger := obs.LoggerWithTrace(ctx, c.log)
		logger.Warn().Err(err).Str("operation", op).Msg("backend request failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(ctx, op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) decodeError(ctx context.Context, op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	message := extractMessage(raw)
	if message == "" {
		message = "request failed with status " + resp.Status
	}
	logger := obs.LoggerWithTrace(ctx, c.log)
	logger.Warn().
		Str("operation", op).
		Int("status", resp.StatusCode).
		Str("message", message).
		Msg("backend returned error")
	return &common.AppError{
		Code:    "BACKEND_ERROR",
		Message: message,
		Status:  resp.StatusCode,
		Details: string(raw),
	}
}

// extractMessage reduces an error body to its most specific human-readable
// message: details over error over message.
func extractMessage(body []byte) string {
	return envelopeMessage(body, 2)
}

type errEnvelope struct {
	Details json.RawMessage `json:"details"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

func envelopeMessage(raw []byte, depth int) string {
	if len(raw) == 0 || depth < 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var env errEnvelope
	if json.Unmarshal(raw, &env) != nil {
		return ""
	}
	if msg := envelopeMessage(env.Details, depth-1); msg != "" {
		return msg
	}
	if msg := envelopeMessage(env.Error, depth-1); msg != "" {
		return msg
	}
	return strings.TrimSpace(env.Message)
}

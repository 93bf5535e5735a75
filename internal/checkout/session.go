// Package checkout drives the order-edit workflow: one session per open
// dialog, owning the pending cart, the mutable copy of persisted lines and the
// order-level discount, and sequencing the backend commands on submit.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/huyngo-dev/pos-terminal/internal/cart"
	"github.com/huyngo-dev/pos-terminal/internal/catalog"
	"github.com/huyngo-dev/pos-terminal/internal/events"
	"github.com/huyngo-dev/pos-terminal/internal/lock"
	"github.com/huyngo-dev/pos-terminal/internal/obs"
	"github.com/huyngo-dev/pos-terminal/internal/order"
	"github.com/huyngo-dev/pos-terminal/internal/pricing"
)

var (
	// ErrEmptyCart rejects a create-mode submit with nothing in the cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotEditing is returned when the session has already completed.
	ErrNotEditing = errors.New("session is not editing")
	// ErrSubmitInProgress guards against a second submit while one is running.
	ErrSubmitInProgress = errors.New("submit already in progress")
	// ErrInvalidDiscount rejects a negative order discount.
	ErrInvalidDiscount = errors.New("discount must not be negative")
)

// OrderService is the command/query surface the workflow consumes. The
// backend client implements it; tests substitute a recording mock.
type OrderService interface {
	GetOrderLines(ctx context.Context, orderID string) ([]order.Line, error)
	CreateOrder(ctx context.Context, payload order.CreatePayload, lines []order.NewLine) (order.Order, error)
	AddOrderLines(ctx context.Context, orderID string, lines []order.NewLine) (order.Order, error)
	UpdateOrder(ctx context.Context, orderID string, patch order.HeaderPatch) (order.Order, error)
	UpdateOrderLineDiscount(ctx context.Context, lineID string, discount pricing.Money) error
	DeleteOrderLine(ctx context.Context, lineID string) error
	RecalculateOrder(ctx context.Context, orderID string) (order.Order, error)
}

// Mode distinguishes creating a new order from editing a persisted one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateEditing
	StateSubmitting
)

// Step names one stage of the edit-mode submit sequence, so a failure can be
// reported with precise context instead of one opaque error.
type Step string

const (
	StepAddItems      Step = "add_items"
	StepRefreshLines  Step = "refresh_lines"
	StepRecalculate   Step = "recalculate"
	StepLineDiscounts Step = "line_discounts"
	StepUpdateHeader  Step = "update_header"
)

// CustomerInfo carries the order header fields the operator can edit.
type CustomerInfo struct {
	TableID string `validate:"max=64"`
	Name    string `validate:"max=120"`
	Count   int    `validate:"gte=0,lte=100"`
}

// Config wires a session's collaborators. Locks is optional; without it edit
// sessions run unserialised, which is fine for a single terminal.
type Config struct {
	Service   OrderService
	Bus       *events.Bus
	Locks     *lock.EditLock
	Logger    zerolog.Logger
	PriceMode pricing.Mode
}

// Session is one open editing dialog. It is single-goroutine by design: the
// cart and discount belong exclusively to it, and nothing here locks.
type Session struct {
	svc      OrderService
	bus      *events.Bus
	log      zerolog.Logger
	validate *validator.Validate

	mode      Mode
	state     State
	priceMode pricing.Mode

	orderID  string
	existing []order.Line
	cart     *cart.Cart
	discount pricing.Money
	customer CustomerInfo

	loadedDiscount  pricing.Money
	loadedLineCount int
	failedStep      Step
	lease           *lock.Lease

	// pendingRefresh is set when lines were added but the follow-up refetch
	// failed; the next submit must refresh before doing anything else.
	pendingRefresh bool
}

// NewCreate opens a session for a brand-new order: empty cart, no persisted
// lines.
func NewCreate(cfg Config) (*Session, error) {
	if cfg.Service == nil {
		return nil, errors.New("checkout: order service is required")
	}
	return &Session{
		svc:       cfg.Service,
		bus:       cfg.Bus,
		log:       cfg.Logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		mode:      ModeCreate,
		state:     StateEditing,
		priceMode: cfg.PriceMode,
		cart:      &cart.Cart{},
	}, nil
}

// NewEdit opens a session for an existing order. The persisted lines are
// fetched fresh on every open; a stale cached copy is never reused.
func NewEdit(ctx context.Context, cfg Config, ord order.Order) (*Session, error) {
	if cfg.Service == nil {
		return nil, errors.New("checkout: order service is required")
	}
	if ord.ID == "" {
		return nil, errors.New("checkout: order id is required")
	}
	lease, err := cfg.Locks.Acquire(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	lines, err := cfg.Service.GetOrderLines(ctx, ord.ID)
	if err != nil {
		_ = lease.Release(ctx)
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	return &Session{
		svc:       cfg.Service,
		bus:       cfg.Bus,
		log:       cfg.Logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		mode:      ModeEdit,
		state:     StateEditing,
		priceMode: cfg.PriceMode,
		orderID:   ord.ID,
		existing:  lines,
		cart:      &cart.Cart{},
		discount:  ord.Discount,
		customer: CustomerInfo{
			TableID: ord.TableID,
			Name:    ord.CustomerName,
			Count:   ord.CustomerCount,
		},
		loadedDiscount:  ord.Discount,
		loadedLineCount: len(lines),
		lease:           lease,
	}, nil
}

// Mode reports whether the session creates or edits.
func (s *Session) Mode() Mode { return s.mode }

// State reports the lifecycle state.
func (s *Session) State() State { return s.state }

// OrderID returns the edited order's id, empty in create mode.
func (s *Session) OrderID() string { return s.orderID }

// Discount returns the current order-level discount.
func (s *Session) Discount() pricing.Money { return s.discount }

// Customer returns the editable header fields.
func (s *Session) Customer() CustomerInfo { return s.customer }

// CartLines returns a copy of the pending cart lines.
func (s *Session) CartLines() []cart.Line { return s.cart.Lines() }

// ExistingLines returns a copy of the persisted lines held by the session.
func (s *Session) ExistingLines() []order.Line {
	out := make([]order.Line, len(s.existing))
	copy(out, s.existing)
	return out
}

// LastFailedStep names the submit step that failed last, empty when none has.
func (s *Session) LastFailedStep() Step { return s.failedStep }

// AddProduct adds qty units of the product to the cart, subject to stock.
func (s *Session) AddProduct(p catalog.Product, qty int, notes string) error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.cart.Add(p, qty, notes)
}

// SetQuantity changes a cart line's quantity; zero removes the line.
func (s *Session) SetQuantity(productID string, qty int) error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.cart.SetQty(productID, qty)
}

// RemoveCartLine drops a pending line. Pending lines have no external side
// effects, so removal is purely local.
func (s *Session) RemoveCartLine(productID string) error {
	if err := s.editable(); err != nil {
		return err
	}
	s.cart.Remove(productID)
	return nil
}

// SetCartNotes attaches preparation notes to a pending line. Notes travel
// with the line when it is submitted.
func (s *Session) SetCartNotes(productID, notes string) error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.cart.SetNotes(productID, notes)
}

// SetDiscount sets the order-level discount. Per-line shares are derived from
// scratch on every Totals call; nothing is cached.
func (s *Session) SetDiscount(d pricing.Money) error {
	if err := s.editable(); err != nil {
		return err
	}
	if d < 0 {
		return ErrInvalidDiscount
	}
	s.discount = d
	return nil
}

// SetCustomer updates the editable header fields.
func (s *Session) SetCustomer(info CustomerInfo) error {
	if err := s.editable(); err != nil {
		return err
	}
	s.customer = info
	return nil
}

// Totals computes the footer summary over existing lines followed by cart
// lines. The integers returned here are exactly what Submit transmits.
func (s *Session) Totals() pricing.Summary {
	return pricing.Aggregate(s.combinedLines(), s.priceMode, s.discount)
}

// RemoveExistingLine deletes a persisted line immediately: the backend delete
// is issued first, then the order totals are recomputed from the remaining
// persisted lines and pushed. The deletion is committed even if the header
// push fails; there is no undo.
func (s *Session) RemoveExistingLine(ctx context.Context, lineID string) error {
	if err := s.editable(); err != nil {
		return err
	}
	idx := -1
	for i, l := range s.existing {
		if l.ID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("order line %s: %w", lineID, cart.ErrNotFound)
	}
	if err := s.svc.DeleteOrderLine(ctx, lineID); err != nil {
		s.observeLineRemoval("error")
		return fmt.Errorf("delete order line: %w", err)
	}
	s.existing = append(s.existing[:idx], s.existing[idx+1:]...)
	s.observeLineRemoval("ok")

	remaining := make([]pricing.Line, 0, len(s.existing))
	for _, l := range s.existing {
		remaining = append(remaining, l.PricingLine())
	}
	sum := pricing.Aggregate(remaining, s.priceMode, s.discount)
	patch := order.HeaderPatch{
		Subtotal: &sum.Subtotal,
		Tax:      &sum.Tax,
		Discount: &sum.Discount,
		Total:    &sum.Total,
	}
	if _, err := s.svc.UpdateOrder(ctx, s.orderID, patch); err != nil {
		return fmt.Errorf("update order totals: %w", err)
	}
	s.emit(ctx, events.TopicOrderLineRemoved, s.orderID, map[string]any{
		"lineId": lineID,
		"total":  sum.Total,
	})
	return nil
}

// emit dispatches a workflow event. Handler failures (a dropped cache
// invalidation, typically) never fail the mutation that already committed;
// they are surfaced in the log instead.
func (s *Session) emit(ctx context.Context, topic, orderID string, payload map[string]any) {
	if err := s.bus.Emit(ctx, topic, orderID, payload); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Str("order_id", orderID).Msg("event handlers failed")
	}
}

// Submit pushes the session to the backend. On success the session resets and
// returns the resulting order; on failure the local state is preserved so the
// operator can retry without re-entering anything.
func (s *Session) Submit(ctx context.Context) (order.Order, error) {
	switch s.state {
	case StateSubmitting:
		return order.Order{}, ErrSubmitInProgress
	case StateIdle:
		return order.Order{}, ErrNotEditing
	}
	if err := s.validate.Struct(s.customer); err != nil {
		return order.Order{}, fmt.Errorf("invalid customer details: %w", err)
	}
	if s.mode == ModeCreate && s.cart.IsEmpty() {
		return order.Order{}, ErrEmptyCart
	}

	// The summary the operator is looking at right now. These integers are
	// what gets transmitted; nothing downstream recomputes them.
	footer := s.Totals()

	s.state = StateSubmitting
	var (
		ord order.Order
		err error
	)
	if s.mode == ModeCreate {
		ord, err = s.submitCreate(ctx, footer)
	} else {
		ord, err = s.submitEdit(ctx, footer)
	}
	if err != nil {
		s.state = StateEditing
		s.observeSubmit("error")
		return order.Order{}, err
	}
	s.reset()
	s.observeSubmit("ok")
	return ord, nil
}

// Close discards all local edits. Existing-line deletions already committed
// stay committed.
func (s *Session) Close() {
	s.reset()
}

func (s *Session) submitCreate(ctx context.Context, footer pricing.Summary) (order.Order, error) {
	cartLines := s.cart.Lines()
	newLines := make([]order.NewLine, 0, len(cartLines))
	for i, l := range cartLines {
		newLines = append(newLines, order.NewLine{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.UnitPrice,
			Qty:       l.Qty,
			TaxBps:    l.Product.TaxBps,
			Discount:  footer.LineDiscounts[i],
			Notes:     l.Notes,
		})
	}
	payload := order.CreatePayload{
		TableID:       s.customer.TableID,
		CustomerName:  s.customer.Name,
		CustomerCount: s.customer.Count,
		Subtotal:      footer.Subtotal,
		Tax:           footer.Tax,
		Discount:      footer.Discount,
		Total:         footer.Total,
	}
	ord, err := s.svc.CreateOrder(ctx, payload, newLines)
	if err != nil {
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.emit(ctx, events.TopicOrderCreated, ord.ID, map[string]any{"total": footer.Total})
	return ord, nil
}

// submitEdit runs the multi-step sequence. The steps are eager and not
// transactional: a committed step stays committed when a later one fails, and
// the whole sequence is safe to re-run because added lines are refetched as
// existing lines before the cart is cleared. The header patch carries the
// footer figures captured by Submit; a backend that reprices a line on the
// way in cannot change what gets stored.
func (s *Session) submitEdit(ctx context.Context, footer pricing.Summary) (order.Order, error) {
	if s.pendingRefresh {
		fresh, err := s.svc.GetOrderLines(ctx, s.orderID)
		if err != nil {
			return order.Order{}, s.stepFailed(StepRefreshLines, err)
		}
		s.existing = fresh
		s.pendingRefresh = false
	}

	if !s.cart.IsEmpty() {
		// Allocated over the current combined slice, not the captured footer:
		// a pending-refresh recovery may have grown s.existing since capture.
		combined := s.combinedLines()
		alloc := pricing.AllocateDiscount(s.discount, combined)
		cartLines := s.cart.Lines()
		offset := len(s.existing)
		newLines := make([]order.NewLine, 0, len(cartLines))
		for i, l := range cartLines {
			newLines = append(newLines, order.NewLine{
				ProductID: l.Product.ID,
				Name:      l.Product.Name,
				UnitPrice: l.Product.UnitPrice,
				Qty:       l.Qty,
				TaxBps:    l.Product.TaxBps,
				Discount:  alloc[offset+i],
				Notes:     l.Notes,
			})
		}
		if _, err := s.svc.AddOrderLines(ctx, s.orderID, newLines); err != nil {
			return order.Order{}, s.stepFailed(StepAddItems, err)
		}
		// The added lines are persisted now. Refetch so a retry can never
		// resubmit them as new.
		s.cart.Clear()
		fresh, err := s.svc.GetOrderLines(ctx, s.orderID)
		if err != nil {
			s.pendingRefresh = true
			return order.Order{}, s.stepFailed(StepRefreshLines, err)
		}
		s.existing = fresh
	}

	if s.discount != s.loadedDiscount || len(s.existing) != s.loadedLineCount {
		if _, err := s.svc.RecalculateOrder(ctx, s.orderID); err != nil {
			// Best-effort hint: the client-floored figures win regardless.
			s.log.Warn().Err(err).Str("order_id", s.orderID).Msg("order recalculation hint failed")
			s.observeRecalculate("error")
		} else {
			s.observeRecalculate("ok")
		}
	}

	lines := make([]pricing.Line, 0, len(s.existing))
	for _, l := range s.existing {
		lines = append(lines, l.PricingLine())
	}
	alloc := pricing.AllocateDiscount(s.discount, lines)
	for i, l := range s.existing {
		if alloc[i] == l.Discount {
			continue
		}
		if err := s.svc.UpdateOrderLineDiscount(ctx, l.ID, alloc[i]); err != nil {
			return order.Order{}, s.stepFailed(StepLineDiscounts, err)
		}
		s.existing[i].Discount = alloc[i]
	}

	patch := order.HeaderPatch{
		CustomerName:  &s.customer.Name,
		CustomerCount: &s.customer.Count,
		Subtotal:      &footer.Subtotal,
		Tax:           &footer.Tax,
		Discount:      &footer.Discount,
		Total:         &footer.Total,
	}
	ord, err := s.svc.UpdateOrder(ctx, s.orderID, patch)
	if err != nil {
		return order.Order{}, s.stepFailed(StepUpdateHeader, err)
	}
	s.emit(ctx, events.TopicOrderUpdated, s.orderID, map[string]any{"total": footer.Total})
	return ord, nil
}

func (s *Session) combinedLines() []pricing.Line {
	out := make([]pricing.Line, 0, len(s.existing)+s.cart.Len())
	for _, l := range s.existing {
		out = append(out, l.PricingLine())
	}
	out = append(out, s.cart.PricingLines()...)
	return out
}

func (s *Session) editable() error {
	switch s.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateIdle:
		return ErrNotEditing
	}
	return nil
}

func (s *Session) stepFailed(step Step, err error) error {
	s.failedStep = step
	if obs.SubmitStepFailures != nil {
		obs.SubmitStepFailures.WithLabelValues(string(step)).Inc()
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (s *Session) reset() {
	s.state = StateIdle
	s.cart.Clear()
	s.existing = nil
	s.discount = 0
	s.customer = CustomerInfo{}
	s.pendingRefresh = false
	if s.lease != nil {
		_ = s.lease.Release(context.Background())
		s.lease = nil
	}
}

func (s *Session) observeSubmit(result string) {
	if obs.SubmitTotal != nil {
		obs.SubmitTotal.WithLabelValues(s.mode.String(), result).Inc()
	}
}

func (s *Session) observeRecalculate(result string) {
	if obs.RecalculateTotal != nil {
		obs.RecalculateTotal.WithLabelValues(result).Inc()
	}
}

func (s *Session) observeLineRemoval(result string) {
	if obs.LineRemovalTotal != nil {
		obs.LineRemovalTotal.WithLabelValues(result).Inc()
	}
}

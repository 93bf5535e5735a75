package checkout_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/huyngo-dev/pos-terminal/internal/catalog"
	"github.com/huyngo-dev/pos-terminal/internal/checkout"
	"github.com/huyngo-dev/pos-terminal/internal/events"
	"github.com/huyngo-dev/pos-terminal/internal/lock"
	"github.com/huyngo-dev/pos-terminal/internal/order"
	"github.com/huyngo-dev/pos-terminal/internal/pricing"
)

// mockService records every command and lets tests inject failures per
// operation.
type mockService struct {
	lines   map[string][]order.Line
	nextID  int
	fail    map[string]error
	created      []order.CreatePayload
	createdLines [][]order.NewLine
	addCall      [][]order.NewLine
	patches []order.HeaderPatch
	lineUpd map[string]pricing.Money
	deleted []string
	recalcs int
	// repriceAdded simulates a backend that overrides the unit price of
	// incoming lines, so the persisted copy differs from what was sent.
	repriceAdded pricing.Money
}

func newMockService() *mockService {
	return &mockService{
		lines:   map[string][]order.Line{},
		fail:    map[string]error{},
		lineUpd: map[string]pricing.Money{},
	}
}

func (m *mockService) GetOrderLines(_ context.Context, orderID string) ([]order.Line, error) {
	if err := m.fail["get_lines"]; err != nil {
		return nil, err
	}
	out := make([]order.Line, len(m.lines[orderID]))
	copy(out, m.lines[orderID])
	return out, nil
}

func (m *mockService) CreateOrder(_ context.Context, payload order.CreatePayload, lines []order.NewLine) (order.Order, error) {
	if err := m.fail["create"]; err != nil {
		return order.Order{}, err
	}
	m.created = append(m.created, payload)
	m.createdLines = append(m.createdLines, lines)
	m.nextID++
	id := fmt.Sprintf("ord-%d", m.nextID)
	for i, l := range lines {
		m.lines[id] = append(m.lines[id], order.Line{
			ID:        fmt.Sprintf("%s-line-%d", id, i),
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Qty:       l.Qty,
			TaxBps:    l.TaxBps,
			Discount:  l.Discount,
		})
	}
	return order.Order{ID: id, Subtotal: payload.Subtotal, Tax: payload.Tax, Discount: payload.Discount, Total: payload.Total}, nil
}

func (m *mockService) AddOrderLines(_ context.Context, orderID string, lines []order.NewLine) (order.Order, error) {
	if err := m.fail["add"]; err != nil {
		return order.Order{}, err
	}
	m.addCall = append(m.addCall, lines)
	for i, l := range lines {
		m.lines[orderID] = append(m.lines[orderID], order.Line{
			ID:        fmt.Sprintf("%s-added-%d-%d", orderID, len(m.addCall), i),
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice + m.repriceAdded,
			Qty:       l.Qty,
			TaxBps:    l.TaxBps,
			Discount:  l.Discount,
		})
	}
	return order.Order{ID: orderID}, nil
}

func (m *mockService) UpdateOrder(_ context.Context, orderID string, patch order.HeaderPatch) (order.Order, error) {
	if err := m.fail["update"]; err != nil {
		return order.Order{}, err
	}
	m.patches = append(m.patches, patch)
	ord := order.Order{ID: orderID}
	if patch.Subtotal != nil {
		ord.Subtotal = *patch.Subtotal
	}
	if patch.Tax != nil {
		ord.Tax = *patch.Tax
	}
	if patch.Discount != nil {
		ord.Discount = *patch.Discount
	}
	if patch.Total != nil {
		ord.Total = *patch.Total
	}
	return ord, nil
}

func (m *mockService) UpdateOrderLineDiscount(_ context.Context, lineID string, discount pricing.Money) error {
	if err := m.fail["line_discount"]; err != nil {
		return err
	}
	m.lineUpd[lineID] = discount
	return nil
}

func (m *mockService) DeleteOrderLine(_ context.Context, lineID string) error {
	if err := m.fail["delete"]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, lineID)
	for id, lines := range m.lines {
		for i, l := range lines {
			if l.ID == lineID {
				m.lines[id] = append(lines[:i], lines[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (m *mockService) RecalculateOrder(_ context.Context, orderID string) (order.Order, error) {
	m.recalcs++
	if err := m.fail["recalc"]; err != nil {
		return order.Order{}, err
	}
	return order.Order{ID: orderID}, nil
}

func testProduct(id string, price pricing.Money, taxBps int32) catalog.Product {
	return catalog.Product{ID: id, Name: "product " + id, UnitPrice: price, TaxBps: taxBps, Stock: 100}
}

func TestCreateSubmitTransmitsFooterFigures(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{Service: svc, PriceMode: pricing.TaxExclusive})
	require.NoError(t, err)

	require.NoError(t, sess.AddProduct(testProduct("p1", 100_000, 1000), 2, ""))
	require.NoError(t, sess.SetDiscount(20_000))
	require.NoError(t, sess.SetCustomer(checkout.CustomerInfo{Name: "Anh Tu", Count: 4}))

	footer := sess.Totals()
	ord, err := sess.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, svc.created, 1)
	payload := svc.created[0]
	require.Equal(t, footer.Subtotal, payload.Subtotal)
	require.Equal(t, footer.Tax, payload.Tax)
	require.Equal(t, footer.Discount, payload.Discount)
	require.Equal(t, footer.Total, payload.Total)
	require.Equal(t, pricing.Money(200_000), payload.Subtotal)
	require.Equal(t, pricing.Money(20_000), payload.Tax)
	require.Equal(t, pricing.Money(220_000), payload.Total)

	require.Equal(t, checkout.StateIdle, sess.State())
	require.Equal(t, "ord-1", ord.ID)
	// Single line gets the whole discount.
	require.Equal(t, pricing.Money(20_000), svc.lines["ord-1"][0].Discount)
}

func TestCreateSubmitRejectsEmptyCart(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{Service: svc})
	require.NoError(t, err)

	_, err = sess.Submit(context.Background())
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	require.Empty(t, svc.created, "no external call before local validation passes")
	require.Equal(t, checkout.StateEditing, sess.State())
}

func TestCreateSubmitFailureKeepsEditingState(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.fail["create"] = errors.New("backend down")
	sess, err := checkout.NewCreate(checkout.Config{Service: svc})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p1", 10_000, 0), 1, ""))

	_, err = sess.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, checkout.StateEditing, sess.State())
	require.Len(t, sess.CartLines(), 1, "local state preserved for retry")
}

func TestEditSubmitSequencesSteps(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-7"] = []order.Line{
		{ID: "l1", ProductID: "p1", UnitPrice: 90_000, Qty: 1, TaxBps: 1000},
		{ID: "l2", ProductID: "p2", UnitPrice: 30_000, Qty: 1},
	}
	ord := order.Order{ID: "ord-7", Discount: 0}
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc, PriceMode: pricing.TaxInclusive}, ord)
	require.NoError(t, err)

	require.NoError(t, sess.SetDiscount(10_000))
	require.NoError(t, sess.SetCustomer(checkout.CustomerInfo{Name: "Chi Lan", Count: 2}))

	footer := sess.Totals()
	_, err = sess.Submit(context.Background())
	require.NoError(t, err)

	// No cart lines, so no add-items command.
	require.Empty(t, svc.addCall)
	// Discount changed since load: recalculation hint issued.
	require.Equal(t, 1, svc.recalcs)
	// 10,000 split 3:1 across bases 90,000/30,000, remainder on the last line.
	require.Equal(t, pricing.Money(7_500), svc.lineUpd["l1"])
	require.Equal(t, pricing.Money(2_500), svc.lineUpd["l2"])

	require.Len(t, svc.patches, 1)
	patch := svc.patches[0]
	require.Equal(t, footer.Subtotal, *patch.Subtotal)
	require.Equal(t, footer.Tax, *patch.Tax)
	require.Equal(t, footer.Discount, *patch.Discount)
	require.Equal(t, footer.Total, *patch.Total)
	require.Equal(t, "Chi Lan", *patch.CustomerName)
}

func TestEditSubmitAddsOnlyCartLines(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-3"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 50_000, Qty: 1}}
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-3"})
	require.NoError(t, err)

	require.NoError(t, sess.AddProduct(testProduct("p2", 20_000, 0), 2, "extra chili"))
	_, err = sess.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, svc.addCall, 1)
	require.Len(t, svc.addCall[0], 1, "existing lines are never resubmitted")
	require.Equal(t, "p2", svc.addCall[0][0].ProductID)
	require.Equal(t, "extra chili", svc.addCall[0][0].Notes)
}

func TestEditResubmissionDoesNotDuplicateLines(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-9"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 40_000, Qty: 1}}
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-9"})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p2", 15_000, 0), 1, ""))

	// First submit: add succeeds, header update fails.
	svc.fail["update"] = errors.New("gateway timeout")
	_, err = sess.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, checkout.StepUpdateHeader, sess.LastFailedStep())
	require.Equal(t, checkout.StateEditing, sess.State())
	require.Len(t, svc.addCall, 1)

	// Retry with unchanged cart: the already-added line must not be added
	// again.
	delete(svc.fail, "update")
	_, err = sess.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.addCall, 1, "add-items must not be resubmitted blindly")
	require.Len(t, svc.lines["ord-9"], 2)
}

func TestEditSubmitRecalculationFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-4"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 10_000, Qty: 1}}
	svc.fail["recalc"] = errors.New("recalc unavailable")
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-4"})
	require.NoError(t, err)

	require.NoError(t, sess.SetDiscount(1_000))
	_, err = sess.Submit(context.Background())
	require.NoError(t, err, "best-effort recalculation must not gate the submit")
	require.Equal(t, 1, svc.recalcs)
	require.Len(t, svc.patches, 1)
}

func TestEditSubmitStepFailureReportsStep(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-5"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 10_000, Qty: 1}}
	svc.fail["line_discount"] = errors.New("conflict")
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-5"})
	require.NoError(t, err)
	require.NoError(t, sess.SetDiscount(2_000))

	_, err = sess.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, checkout.StepLineDiscounts, sess.LastFailedStep())
	require.Contains(t, err.Error(), "line_discounts")
}

func TestRemoveExistingLineIsEager(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-6"] = []order.Line{
		{ID: "l1", ProductID: "p1", UnitPrice: 60_000, Qty: 1, TaxBps: 1000},
		{ID: "l2", ProductID: "p2", UnitPrice: 40_000, Qty: 1},
	}
	bus := &events.Bus{}
	var removed []string
	bus.Subscribe(events.TopicOrderLineRemoved, func(_ context.Context, ev events.Event) error {
		removed = append(removed, ev.Payload["lineId"].(string))
		return nil
	})
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc, Bus: bus, PriceMode: pricing.TaxExclusive}, order.Order{ID: "ord-6"})
	require.NoError(t, err)

	require.NoError(t, sess.RemoveExistingLine(context.Background(), "l1"))
	require.Equal(t, []string{"l1"}, svc.deleted)
	require.Equal(t, []string{"l1"}, removed)

	// Totals recomputed from the remaining line and pushed immediately.
	require.Len(t, svc.patches, 1)
	require.Equal(t, pricing.Money(40_000), *svc.patches[0].Subtotal)
	require.Equal(t, pricing.Money(40_000), *svc.patches[0].Total)
	require.Len(t, sess.ExistingLines(), 1)
}

func TestRemoveExistingLineDeleteFailureMutatesNothing(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-8"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 10_000, Qty: 1}}
	svc.fail["delete"] = errors.New("forbidden")
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-8"})
	require.NoError(t, err)

	require.Error(t, sess.RemoveExistingLine(context.Background(), "l1"))
	require.Len(t, sess.ExistingLines(), 1)
	require.Empty(t, svc.patches)
}

func TestSubmitGuardsState(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{Service: svc})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p1", 10_000, 0), 1, ""))

	_, err = sess.Submit(context.Background())
	require.NoError(t, err)

	// Session completed; further edits and submits are rejected.
	_, err = sess.Submit(context.Background())
	require.ErrorIs(t, err, checkout.ErrNotEditing)
	require.ErrorIs(t, sess.AddProduct(testProduct("p2", 5_000, 0), 1, ""), checkout.ErrNotEditing)
}

func TestSubmitValidatesCustomer(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{Service: svc})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p1", 10_000, 0), 1, ""))
	require.NoError(t, sess.SetCustomer(checkout.CustomerInfo{Count: 1000}))

	_, err = sess.Submit(context.Background())
	require.Error(t, err)
	require.Empty(t, svc.created, "validation failures never reach the backend")
	require.Equal(t, checkout.StateEditing, sess.State())
}

func TestSetDiscountRejectsNegative(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{Service: svc})
	require.NoError(t, err)
	require.ErrorIs(t, sess.SetDiscount(-1), checkout.ErrInvalidDiscount)
}

func TestEditOpenRefetchesLines(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-2"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 5_000, Qty: 2}}
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-2", Discount: 500, CustomerName: "Hoa"})
	require.NoError(t, err)

	require.Len(t, sess.ExistingLines(), 1)
	require.Equal(t, pricing.Money(500), sess.Discount())
	require.Equal(t, "Hoa", sess.Customer().Name)
}

func TestTotalsCombineExistingThenCart(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-10"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 90_000, Qty: 1}}
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc, PriceMode: pricing.TaxExclusive}, order.Order{ID: "ord-10"})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p2", 30_000, 0), 1, ""))
	require.NoError(t, sess.SetDiscount(10_000))

	sum := sess.Totals()
	require.Equal(t, pricing.Money(120_000), sum.Subtotal)
	// Existing line first, cart line last: the cart line absorbs the
	// remainder.
	require.Equal(t, []pricing.Money{7_500, 2_500}, sum.LineDiscounts)
}

func TestEditLockSerialisesTerminals(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locks := &lock.EditLock{R: client}

	svc := newMockService()
	svc.lines["ord-11"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 10_000, Qty: 1}}
	cfg := checkout.Config{Service: svc, Locks: locks}
	ctx := context.Background()

	first, err := checkout.NewEdit(ctx, cfg, order.Order{ID: "ord-11"})
	require.NoError(t, err)

	_, err = checkout.NewEdit(ctx, cfg, order.Order{ID: "ord-11"})
	require.ErrorIs(t, err, lock.ErrOrderBusy)

	first.Close()
	_, err = checkout.NewEdit(ctx, cfg, order.Order{ID: "ord-11"})
	require.NoError(t, err)
}

func TestEditLockReleasedAfterSubmit(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locks := &lock.EditLock{R: client}

	svc := newMockService()
	svc.lines["ord-12"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 10_000, Qty: 1}}
	cfg := checkout.Config{Service: svc, Locks: locks}
	ctx := context.Background()

	sess, err := checkout.NewEdit(ctx, cfg, order.Order{ID: "ord-12"})
	require.NoError(t, err)
	_, err = sess.Submit(ctx)
	require.NoError(t, err)

	_, err = checkout.NewEdit(ctx, cfg, order.Order{ID: "ord-12"})
	require.NoError(t, err)
}

func TestEditHeaderCarriesFooterFiguresDespiteReprice(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.lines["ord-13"] = []order.Line{{ID: "l1", ProductID: "p1", UnitPrice: 40_000, Qty: 1}}
	svc.repriceAdded = 5_000
	sess, err := checkout.NewEdit(context.Background(), checkout.Config{Service: svc}, order.Order{ID: "ord-13"})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p2", 30_000, 0), 1, ""))

	footer := sess.Totals()
	require.Equal(t, pricing.Money(70_000), footer.Subtotal)
	require.Equal(t, pricing.Money(70_000), footer.Total)

	_, err = sess.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, svc.patches, 1)
	require.Equal(t, footer.Subtotal, *svc.patches[0].Subtotal)
	require.Equal(t, footer.Tax, *svc.patches[0].Tax)
	require.Equal(t, footer.Total, *svc.patches[0].Total)
}

func TestCartNotesTravelWithSubmittedLines(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{Service: svc})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p1", 20_000, 0), 1, ""))
	require.NoError(t, sess.SetCartNotes("p1", "no onions"))
	require.Equal(t, "no onions", sess.CartLines()[0].Notes)

	_, err = sess.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.createdLines, 1)
	require.Equal(t, "no onions", svc.createdLines[0][0].Notes)
}

func TestEventHandlerFailureIsLoggedNotReturned(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bus := &events.Bus{}
	bus.Subscribe(events.TopicOrderCreated, func(context.Context, events.Event) error {
		return errors.New("cache unavailable")
	})
	svc := newMockService()
	sess, err := checkout.NewCreate(checkout.Config{
		Service: svc,
		Bus:     bus,
		Logger:  zerolog.New(&buf),
	})
	require.NoError(t, err)
	require.NoError(t, sess.AddProduct(testProduct("p1", 10_000, 0), 1, ""))

	_, err = sess.Submit(context.Background())
	require.NoError(t, err)
	require.Contains(t, buf.String(), "event handlers failed")
	require.Contains(t, buf.String(), "cache unavailable")
}

package cart_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huyngo-dev/pos-terminal/internal/cart"
	"github.com/huyngo-dev/pos-terminal/internal/catalog"
)

func product(id string, stock int) catalog.Product {
	return catalog.Product{ID: id, Name: "item " + id, UnitPrice: 25_000, TaxBps: 1000, Stock: stock}
}

func TestAddMergesSameProduct(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	p := product("p1", 10)
	require.NoError(t, c.Add(p, 2, ""))
	require.NoError(t, c.Add(p, 3, "no ice"))

	lines := c.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 5, lines[0].Qty)
	require.Equal(t, "no ice", lines[0].Notes)
}

func TestAddRejectsOutOfStock(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	require.ErrorIs(t, c.Add(product("p1", 0), 1, ""), cart.ErrOutOfStock)
	require.True(t, c.IsEmpty())
}

func TestAddRejectsQuantityAboveStock(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	p := product("p1", 3)
	require.NoError(t, c.Add(p, 3, ""))
	require.ErrorIs(t, c.Add(p, 1, ""), cart.ErrExceedsStock)
	require.Equal(t, 3, c.Lines()[0].Qty, "rejected add must not mutate the cart")
}

func TestSetQtyZeroRemovesLine(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	require.NoError(t, c.Add(product("p1", 5), 2, ""))
	require.NoError(t, c.SetQty("p1", 0))
	require.True(t, c.IsEmpty())
}

func TestSetQtyCappedByStock(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	require.NoError(t, c.Add(product("p1", 4), 2, ""))
	require.ErrorIs(t, c.SetQty("p1", 5), cart.ErrExceedsStock)
	require.Equal(t, 2, c.Lines()[0].Qty)
	require.NoError(t, c.SetQty("p1", 4))
	require.Equal(t, 4, c.Lines()[0].Qty)
}

func TestSetQtyUnknownProduct(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	require.ErrorIs(t, c.SetQty("missing", 1), cart.ErrNotFound)
}

func TestPricingLinesKeepAddOrder(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	require.NoError(t, c.Add(catalog.Product{ID: "a", UnitPrice: 10_000, Stock: 9}, 1, ""))
	require.NoError(t, c.Add(catalog.Product{ID: "b", UnitPrice: 20_000, Stock: 9}, 2, ""))

	pl := c.PricingLines()
	require.Len(t, pl, 2)
	require.Equal(t, int64(10_000), pl[0].UnitPrice)
	require.Equal(t, int64(20_000), pl[1].UnitPrice)
	require.Equal(t, 2, pl[1].Qty)
}

func TestRemoveAndClear(t *testing.T) {
	t.Parallel()

	c := &cart.Cart{}
	require.NoError(t, c.Add(product("p1", 5), 1, ""))
	require.NoError(t, c.Add(product("p2", 5), 1, ""))
	c.Remove("p1")
	require.Equal(t, 1, c.Len())
	c.Clear()
	require.True(t, c.IsEmpty())
}

package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/pkg/models"
)

func TestComputeStandardShipping(t *testing.T) {
	items := []models.CartItem{{ProductID: "p1", Price: 100000, Quantity: 2}}

	totals, err := Compute(items, ShippingStandard)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), totals.Subtotal)
	assert.Equal(t, int64(30000), totals.ShippingFee)
	assert.Equal(t, int64(230000), totals.Total)

	_, err = Compute(items, "drone")
	assert.Error(t, err)
}

func TestCartMutations(t *testing.T) {
	c := New(models.CartItem{ProductID: "p1", Price: 10, Quantity: 1})

	c.Add(models.CartItem{ProductID: "p1", Price: 10, Quantity: 2})
	c.Add(models.CartItem{ProductID: "p2", Price: 5, Quantity: 1})
	assert.Equal(t, 4, c.Count())

	assert.True(t, c.SetQuantity("p2", 4))
	assert.False(t, c.SetQuantity("p9", 4))
	assert.Equal(t, int64(50), Subtotal(c.Snapshot()))

	assert.True(t, c.SetQuantity("p1", 0))
	require.Len(t, c.Snapshot(), 1)

	snap := c.Snapshot()
	snap[0].Quantity = 100
	assert.Equal(t, 4, c.Count())

	c.Clear()
	assert.True(t, c.Empty())
	assert.Empty(t, c.Snapshot())
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotals(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p1", Quantity: 2, Price: 10},
		{ProductID: "p2", Quantity: 3, Price: 0.1},
	}

	subtotal, tax, total := Totals(items, 0.2)
	assert.Equal(t, 20.3, subtotal)
	assert.Equal(t, 4.06, tax)
	assert.Equal(t, 24.36, total)
}

func TestTotals_NoTax(t *testing.T) {
	subtotal, tax, total := Totals([]OrderItem{{ProductID: "p1", Quantity: 2, Price: 10}}, 0)
	assert.Equal(t, 20.0, subtotal)
	assert.Equal(t, 0.0, tax)
	assert.Equal(t, 20.0, total)
}

func TestOrderRemoteID(t *testing.T) {
	o := Order{OrderID: "offline_abc"}
	assert.Equal(t, "offline_abc", o.RemoteID())
	assert.True(t, IsOfflineID(o.OrderID))

	o.ServerOrderID = "ord-42"
	assert.Equal(t, "ord-42", o.RemoteID())
}

func TestOrderItemsScan(t *testing.T) {
	var items OrderItems
	assert.NoError(t, items.Scan(`[{"productId":"p1","qty":2,"price":10}]`))
	assert.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	assert.NoError(t, items.Scan([]byte(`[]`)))
	assert.Empty(t, items)

	assert.Error(t, items.Scan(42))
}

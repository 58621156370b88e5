package cart

import (
	"fmt"
	"sync"

	"storefront-checkout/pkg/models"
)

const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
)

var shippingFees = map[string]int64{
	ShippingStandard: 30000,
	ShippingExpress:  50000,
}

// ShippingFee returns the fee for a known method.
func ShippingFee(method string) (int64, error) {
	fee, ok := shippingFees[method]
	if !ok {
		return 0, fmt.Errorf("unknown shipping method %q", method)
	}
	return fee, nil
}

type Totals struct {
	Subtotal    int64
	ShippingFee int64
	Total       int64
}

// Cart is the local cart state. It is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	items []models.CartItem
}

func New(items ...models.CartItem) *Cart {
	c := &Cart{}
	c.Replace(items)
	return c
}

func (c *Cart) Add(item models.CartItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ProductID == item.ProductID {
			c.items[i].Quantity += item.Quantity
			return
		}
	}
	c.items = append(c.items, item)
}

// SetQuantity updates a line; a quantity below 1 removes it.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	if quantity < 1 {
		return c.Remove(productID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ProductID == productID {
			c.items[i].Quantity = quantity
			return true
		}
	}
	return false
}

func (c *Cart) Remove(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ProductID == productID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

func (c *Cart) Replace(items []models.CartItem) {
	c.mu.Lock()
	c.items = append([]models.CartItem(nil), items...)
	c.mu.Unlock()
}

// Snapshot returns a copy of the lines.
func (c *Cart) Snapshot() []models.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.CartItem{}, c.items...)
}

func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

func Subtotal(items []models.CartItem) int64 {
	var sum int64
	for _, it := range items {
		sum += it.Price * int64(it.Quantity)
	}
	return sum
}

// Compute prices a snapshot for the given shipping method.
func Compute(items []models.CartItem, shippingMethod string) (Totals, error) {
	fee, err := ShippingFee(shippingMethod)
	if err != nil {
		return Totals{}, err
	}
	sub := Subtotal(items)
	return Totals{Subtotal: sub, ShippingFee: fee, Total: sub + fee}, nil
}

package domain

import (
	"sort"
)

// Cart maps product id to requested quantity. It belongs to a single session
// and is never shared, so it carries no locking of its own.
type Cart struct {
	Items map[int64]int `json:"items"`
}

func NewCart() *Cart {
	return &Cart{Items: make(map[int64]int)}
}

// Add merges qty into the existing entry or creates one.
func (c *Cart) Add(productID int64, qty int) error {
	if err := checkProductID(productID); err != nil {
		return err
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c.ensure()
	c.Items[productID] += qty
	return nil
}

// SetQuantity replaces the quantity of an entry, creating it if needed.
func (c *Cart) SetQuantity(productID int64, qty int) error {
	if err := checkProductID(productID); err != nil {
		return err
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c.ensure()
	c.Items[productID] = qty
	return nil
}

func (c *Cart) Remove(productID int64) error {
	if _, ok := c.Items[productID]; !ok {
		return ErrItemNotInCart
	}
	delete(c.Items, productID)
	return nil
}

func (c *Cart) Increment(productID int64) error {
	if _, ok := c.Items[productID]; !ok {
		return ErrItemNotInCart
	}
	c.Items[productID]++
	return nil
}

// Decrement lowers the quantity by one and drops the entry when it reaches
// zero. It reports whether the entry was removed.
func (c *Cart) Decrement(productID int64) (bool, error) {
	qty, ok := c.Items[productID]
	if !ok {
		return false, ErrItemNotInCart
	}
	if qty <= 1 {
		delete(c.Items, productID)
		return true, nil
	}
	c.Items[productID] = qty - 1
	return false, nil
}

func (c *Cart) Quantity(productID int64) int {
	return c.Items[productID]
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Count is the total number of units across all entries.
func (c *Cart) Count() int {
	n := 0
	for _, qty := range c.Items {
		if qty > 0 {
			n += qty
		}
	}
	return n
}

// ProductIDs returns the distinct product ids in ascending order. This is the
// lock order used by checkout.
func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for id := range c.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Cart) Clone() *Cart {
	out := NewCart()
	for id, qty := range c.Items {
		out.Items[id] = qty
	}
	return out
}

func (c *Cart) ensure() {
	if c.Items == nil {
		c.Items = make(map[int64]int)
	}
}

func checkProductID(id int64) error {
	if id <= 0 {
		return ErrMalformedProductID
	}
	return nil
}

// Package order owns the Order entity: it computes the financial snapshot once
// when an order is placed and afterwards only moves the order through the
// status state machine.
//
// Key rules:
//   - total = subtotal + tax - discount, fixed at creation
//   - item prices are snapshots and never follow later catalog edits
//   - orders are never deleted, only marked Completed or Cancelled
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the buyer as captured when the order was placed.
type Customer struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

type OrderItem struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductName     string          `json:"product_name"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID        int64           `json:"id"`
	Customer  Customer        `json:"customer"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	Items     []OrderItem     `json:"items"`
	PlacedAt  time.Time       `json:"placed_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TotalConsistent reports whether Total equals Subtotal + Tax - Discount.
func (o *Order) TotalConsistent() bool {
	return o.Total.Equal(o.Subtotal.Add(o.Tax).Sub(o.Discount))
}

// NewOrder is a purchase as submitted by the storefront. Aggregates are
// computed by the service; callers only provide the line items and discount.
type NewOrder struct {
	Customer Customer
	Items    []OrderItem
	Discount decimal.Decimal
}

// ListFilter selects orders placed in [From, To), optionally in one status.
type ListFilter struct {
	From   time.Time
	To     time.Time
	Status *Status
}

// DailySummary aggregates the orders placed on one calendar day.
type DailySummary struct {
	Date     string
	Orders   int
	ByStatus map[Status]int
	// Revenue sums the totals of orders that were not cancelled.
	Revenue decimal.Decimal
}

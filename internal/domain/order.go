package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderConfirmation is returned by the order API once a checkout has been accepted.
type OrderConfirmation struct {
	OrderID   string
	Status    string
	Country   string
	Currency  string
	Subtotal  decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
	CreatedAt time.Time
}

// Customer holds the delivery contact of an order.
type Customer struct {
	Name       string
	Phone      string
	Address    string
	PostalCode string
}

// OrderLine is one submitted cart line.
type OrderLine struct {
	PizzaID    string
	Name       string
	SizeID     string
	ToppingIDs []string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Order is the payload submitted to the remote order API.
type Order struct {
	CartID         string
	Country        string
	Currency       string
	Lines          []OrderLine
	Customer       Customer
	PaymentMethod  string
	Notes          string
	Subtotal       decimal.Decimal
	IdempotencyKey string
}

package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is the shipping snapshot stored on the order, detached from the
// customer's address book.
type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
}

// LineItem snapshots a purchased line: name and price are copied at
// purchase time so later catalog edits never rewrite order history.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Order struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"` // human-readable, ORD-<ms>
	TrackingCode  string          `json:"trackingCode"`
	UserID        string          `json:"userId"`
	Items         []LineItem      `json:"productSelected"`
	EstDelivery   time.Time       `json:"estDelivery"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	DeliveryPrice decimal.Decimal `json:"deliveryPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Payment       string          `json:"payment"`
	Shipping      Address         `json:"shippingAddress"`
	LastLocation  string          `json:"lastLocation"`
	Carrier       string          `json:"carrier"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Discount       int             `json:"discount"` // percent off, 0-100
	StockRemaining int             `json:"stock_remaining"`
	StockReserved  int             `json:"stock_reserved"`
	ImageSrc       string          `json:"image_src"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SalePrice is the authoritative unit price: list price with the current
// discount applied. Client-submitted prices are never trusted.
func (p *Product) SalePrice() decimal.Decimal {
	if p.Discount <= 0 {
		return p.Price
	}
	off := decimal.NewFromInt(int64(100 - p.Discount)).Div(decimal.NewFromInt(100))
	return p.Price.Mul(off).Round(2)
}

// Available is what a new checkout may still claim: stock on hand minus
// units already held by active checkouts, floored at zero.
func (p *Product) Available() int {
	if a := p.StockRemaining - p.StockReserved; a > 0 {
		return a
	}
	return 0
}

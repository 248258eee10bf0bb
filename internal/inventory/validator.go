package inventory

import (
	"fmt"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
)

// CheckLines is the loose availability check run at checkout entry. It is a
// pure read over the given products: an item fails when the product is
// missing, the quantity is non-positive, nothing remains on hand, or active
// reservations leave less available than requested.
func CheckLines(products map[string]catalog.Product, items []LineRequest) []Shortfall {
	var out []Shortfall
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			out = append(out, Shortfall{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: 0,
				Reason:    "Product not found",
			})
			continue
		}
		if it.Quantity <= 0 {
			out = append(out, Shortfall{
				ProductID:   it.ProductID,
				ProductName: p.Name,
				Requested:   it.Quantity,
				Available:   p.StockRemaining,
				Reason:      "Invalid quantity",
			})
			continue
		}
		if p.StockRemaining <= 0 || p.Available() < it.Quantity {
			out = append(out, Shortfall{
				ProductID:   it.ProductID,
				ProductName: p.Name,
				Requested:   it.Quantity,
				Available:   p.Available(),
				Reason:      fmt.Sprintf("Insufficient stock for %s. Available: %d units", p.Name, p.Available()),
			})
		}
	}
	return out
}

// CheckDeductible is the tight pre-deduction check: stock_remaining alone
// must cover each line, reservations are ignored. The authoritative version
// of this check runs again under row locks inside DeductForOrder; this one
// exists to fail cheaply before an order row is ever written.
func CheckDeductible(products map[string]catalog.Product, items []LineRequest) []Shortfall {
	var out []Shortfall
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			out = append(out, Shortfall{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Reason:    "Product no longer available",
			})
			continue
		}
		if sf := tightShortfall(p.Name, p.StockRemaining, it); sf != nil {
			out = append(out, *sf)
		}
	}
	return out
}

// tightShortfall is the second line of defense immediately before
// deduction: stock_remaining alone must cover the request, reservations
// are ignored.
func tightShortfall(name string, remaining int, it LineRequest) *Shortfall {
	if remaining >= it.Quantity {
		return nil
	}
	return &Shortfall{
		ProductID:   it.ProductID,
		ProductName: name,
		Requested:   it.Quantity,
		Available:   remaining,
		Reason:      fmt.Sprintf("Stock depleted. Only %d remaining.", remaining),
	}
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
	"github.com/ariefcatur/go-storefront.git/internal/inventory"
)

var (
	ErrInvalidInput = errors.New("missing required order details")

	// ErrInsufficientStock accompanies a non-empty shortfall list.
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrNotCancellable = errors.New("order can no longer be cancelled")
)

type ProductStore interface {
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, orderID string, s Status) error
	Delete(ctx context.Context, orderID string) error
}

type StockLedger interface {
	CheckAvailability(ctx context.Context, holdID string, items []inventory.LineRequest) ([]inventory.Shortfall, error)
	DeductForOrder(ctx context.Context, orderID, holdID string, items []inventory.LineRequest) ([]inventory.Shortfall, error)
	Refund(ctx context.Context, orderID string, items []inventory.LineRequest, reason string) error
}

// Service drives the order lifecycle: place, cancel, delete. It is the only
// caller of the deduct/refund ledger operations, which keeps the
// once-per-order-per-event contract in one place.
type Service struct {
	Products ProductStore
	Orders   OrderStore
	Stock    StockLedger

	// now is swapped out in tests to pin order id generation
	now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

type PlaceOrderInput struct {
	UserID        string                  `json:"userId"`
	Items         []inventory.LineRequest `json:"productSelected"`
	Shipping      Address                 `json:"shippingAddress"`
	Payment       string                  `json:"payment"`
	DeliveryPrice decimal.Decimal         `json:"deliveryPrice"`

	// HoldID names the checkout hold these lines were reserved under, if
	// any. The availability check nets that hold out so the customer's own
	// reservation cannot block their checkout, and deduction consumes it.
	HoldID string `json:"holdId"`
}

type PlacedOrder struct {
	OrderID      string
	TrackingCode string
	TotalPrice   decimal.Decimal
}

func (in PlaceOrderInput) validate() error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: userId", ErrInvalidInput)
	case in.Payment == "":
		return fmt.Errorf("%w: payment", ErrInvalidInput)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: productSelected", ErrInvalidInput)
	case in.Shipping.Address == "" || in.Shipping.Country == "":
		return fmt.Errorf("%w: shippingAddress", ErrInvalidInput)
	}
	return nil
}

// PlaceOrder runs the checkout state machine. Availability is checked three
// times on the way in: the loose check here, the tight read-only check
// before the order row is written, and the authoritative locked check
// inside DeductForOrder. If deduction fails after the order row was
// committed, the row is deleted again (compensating delete).
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlacedOrder, []inventory.Shortfall, error) {
	if err := in.validate(); err != nil {
		return PlacedOrder{}, nil, err
	}

	short, err := s.Stock.CheckAvailability(ctx, in.HoldID, in.Items)
	if err != nil {
		return PlacedOrder{}, nil, err
	}
	if len(short) > 0 {
		return PlacedOrder{}, short, ErrInsufficientStock
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Products.GetMany(ctx, ids)
	if err != nil {
		return PlacedOrder{}, nil, err
	}

	// Authoritative pricing: snapshot the discounted catalog price per line.
	total := in.DeliveryPrice
	items := make([]LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return PlacedOrder{}, nil, fmt.Errorf("product %s: %w", it.ProductID, catalog.ErrNotFound)
		}
		price := p.SalePrice()
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		items = append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			Price:     price,
		})
	}

	if short := inventory.CheckDeductible(products, in.Items); len(short) > 0 {
		return PlacedOrder{}, short, ErrInsufficientStock
	}

	now := s.clock()
	orderID := fmt.Sprintf("ORD-%d", now.UnixMilli())
	order := &Order{
		OrderID:       orderID,
		TrackingCode:  fmt.Sprintf("TRK%d", now.UnixMilli()),
		UserID:        in.UserID,
		Items:         items,
		EstDelivery:   now.Add(72 * time.Hour).UTC(),
		From:          "Warehouse A",
		To:            in.Shipping.Country,
		DeliveryPrice: in.DeliveryPrice,
		TotalPrice:    total,
		Payment:       in.Payment,
		Shipping:      in.Shipping,
		LastLocation:  "Warehouse A",
		Carrier:       "FedEx",
		Status:        StatusInTransit,
	}

	if err := s.Orders.Insert(ctx, order); err != nil {
		return PlacedOrder{}, nil, err
	}

	short, err = s.Stock.DeductForOrder(ctx, orderID, in.HoldID, in.Items)
	if err != nil {
		s.compensate(ctx, orderID)
		return PlacedOrder{}, nil, fmt.Errorf("deduct stock: %w", err)
	}
	if len(short) > 0 {
		s.compensate(ctx, orderID)
		return PlacedOrder{}, short, ErrInsufficientStock
	}

	return PlacedOrder{OrderID: orderID, TrackingCode: order.TrackingCode, TotalPrice: total}, nil, nil
}

// compensate undoes an order row whose stock deduction never happened. A
// failed delete leaves an orphaned order; that is logged loudly because it
// needs manual cleanup.
func (s *Service) compensate(ctx context.Context, orderID string) {
	if err := s.Orders.Delete(ctx, orderID); err != nil {
		log.Printf("compensating delete failed, orphaned order %s: %v", orderID, err)
	}
}

// Cancel is the customer path: refund first, flip status second. A failed
// refund aborts with the order left in its prior state.
func (s *Service) Cancel(ctx context.Context, orderID string) (Order, error) {
	o, err := s.Orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.Status.Cancellable() {
		return o, fmt.Errorf("%w: status %s", ErrNotCancellable, o.Status)
	}

	if err := s.Stock.Refund(ctx, orderID, lineRequests(o.Items), inventory.ReasonCancelled); err != nil {
		return o, fmt.Errorf("refund stock: %w", err)
	}
	if err := s.Orders.UpdateStatus(ctx, orderID, StatusCancelled); err != nil {
		return o, err
	}
	o.Status = StatusCancelled
	return o, nil
}

// Delete is the admin path: the refund is best effort, the removal is not.
// Already-cancelled orders had their stock refunded at cancel time and are
// not refunded again.
func (s *Service) Delete(ctx context.Context, orderID string) (Order, bool, error) {
	o, err := s.Orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return Order{}, false, err
	}

	refundFailed := false
	if o.Status != StatusCancelled {
		if err := s.Stock.Refund(ctx, orderID, lineRequests(o.Items), inventory.ReasonDeleted); err != nil {
			log.Printf("refund stock during deletion of %s: %v", orderID, err)
			refundFailed = true
		}
	}
	if err := s.Orders.Delete(ctx, orderID); err != nil {
		return o, refundFailed, err
	}
	return o, refundFailed, nil
}

func lineRequests(items []LineItem) []inventory.LineRequest {
	out := make([]inventory.LineRequest, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront.git/internal/kafka"
	"github.com/ariefcatur/go-storefront.git/internal/orders"
	"github.com/ariefcatur/go-storefront.git/internal/redisx"
)

type OrdersHandler struct {
	Service *orders.Service
	Repo    *orders.Repo
	Redis   *redis.Client

	ProducerPlaced    *kafkax.Producer
	ProducerCancelled *kafkax.Producer
	ProducerDeleted   *kafkax.Producer
	ServiceName       string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders/save", h.placeOrder)
	r.Get("/orders/user/{userId}", h.listUserOrders)
	r.Get("/orders/{orderId}/status", h.orderStatus)
	r.Post("/orders/{orderId}/cancel", h.cancelOrder)
	r.Get("/admin/orders", h.adminListOrders)
	r.Put("/admin/orders/{orderId}", h.adminEditOrder)
	r.Delete("/admin/orders/{orderId}", h.adminDeleteOrder)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	placed, short, err := h.Service.PlaceOrder(ctx, in)
	switch {
	case errors.Is(err, orders.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Missing required order details")
		return
	case errors.Is(err, orders.ErrInsufficientStock):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Insufficient stock for one or more items",
			"errors":  short,
		})
		return
	case errors.Is(err, orders.ErrOrderIDTaken):
		writeError(w, http.StatusConflict, "Order ID collision. Please try again.")
		return
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "Product not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Error processing inventory. Order cancelled.")
		return
	}

	h.cacheStatus(ctx, placed.OrderID, orders.StatusInTransit)
	h.publish(h.ProducerPlaced, orders.EventOrderPlaced, placed.OrderID, r.Header.Get("X-Request-Id"),
		orders.OrderPlacedPayload{
			OrderID:      placed.OrderID,
			TrackingCode: placed.TrackingCode,
			UserID:       in.UserID,
			Items:        itemQtys(in),
			TotalPrice:   placed.TotalPrice.String(),
		})

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"message":      "Order saved successfully and stock deducted",
		"orderId":      placed.OrderID,
		"trackingCode": placed.TrackingCode,
	})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.Cancel(ctx, orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
		return
	case errors.Is(err, orders.ErrNotCancellable):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Cannot cancel order with status: %s", o.Status))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Error processing stock refund")
		return
	}

	h.cacheStatus(ctx, orderID, orders.StatusCancelled)
	h.publish(h.ProducerCancelled, orders.EventOrderCancelled, orderID, r.Header.Get("X-Request-Id"),
		orders.OrderCancelledPayload{OrderID: orderID, UserID: o.UserID, Items: lineQtys(o.Items)})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order cancelled successfully and stock restored",
	})
}

func (h *OrdersHandler) adminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, refundFailed, err := h.Service.Delete(ctx, orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to delete order")
		return
	}

	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
	h.publish(h.ProducerDeleted, orders.EventOrderDeleted, orderID, r.Header.Get("X-Request-Id"),
		orders.OrderDeletedPayload{OrderID: orderID, Items: lineQtys(o.Items), RefundFailed: refundFailed})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order deleted successfully and stock restored",
	})
}

type adminEditReq struct {
	Status       orders.Status `json:"status"`
	Carrier      string        `json:"carrier"`
	LastLocation string        `json:"lastLocation"`
	EstDelivery  *time.Time    `json:"estDelivery"`
}

func (h *OrdersHandler) adminEditOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req adminEditReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.GetByOrderID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update order")
		return
	}

	status := o.Status
	if req.Status != "" && req.Status != o.Status {
		if !req.Status.Valid() || !orders.CanTransition(o.Status, req.Status) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid status transition: %s -> %s", o.Status, req.Status))
			return
		}
		status = req.Status
	}
	carrier := o.Carrier
	if req.Carrier != "" {
		carrier = req.Carrier
	}
	lastLocation := o.LastLocation
	if req.LastLocation != "" {
		lastLocation = req.LastLocation
	}
	estDelivery := o.EstDelivery
	if req.EstDelivery != nil {
		estDelivery = *req.EstDelivery
	}

	if err := h.Repo.UpdateShipping(ctx, orderID, status, carrier, lastLocation, estDelivery); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update order")
		return
	}
	h.cacheStatus(ctx, orderID, status)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order updated successfully"})
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Repo.ListByUser(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching orders")
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Repo.ListAll(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching orders")
		return
	}
	writeJSON(w, http.StatusOK, os)
}

// orderStatus reads the Redis cache first and falls back to Postgres.
func (h *OrdersHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Repo.GetByOrderID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching order")
		return
	}
	h.cacheStatus(ctx, orderID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, s orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": s})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publish(p *kafkax.Producer, eventType, orderID, traceID string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func itemQtys(in orders.PlaceOrderInput) []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(in.Items))
	for _, it := range in.Items {
		out = append(out, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}

func lineQtys(items []orders.LineItem) []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}

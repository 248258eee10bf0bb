package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
	"github.com/ariefcatur/go-storefront.git/internal/inventory"
)

type StockHandler struct {
	Ledger *inventory.Ledger
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Post("/api/validate-stock", h.validateStock)
	r.Post("/api/checkout/reserve", h.reserve)
	r.Post("/api/checkout/release", h.release)
	r.Get("/api/products/{id}/stock-history", h.history)
}

type stockItemsReq struct {
	OrderID string                  `json:"orderId"`
	Items   []inventory.LineRequest `json:"productSelected"`
	Reason  string                  `json:"reason"`
}

func (h *StockHandler) validateStock(w http.ResponseWriter, r *http.Request) {
	var req stockItemsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "No products selected")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// a client mid-checkout sends its hold id so its own reservation does
	// not count against availability
	short, err := h.Ledger.CheckAvailability(ctx, req.OrderID, req.Items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error validating stock")
		return
	}
	if len(short) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Insufficient stock for some items",
			"errors":  short,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All items are in stock"})
}

// reserve places a checkout hold. When the client has no order id yet a
// hold id is minted for it; the same id must be sent back on release.
func (h *StockHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req stockItemsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "No products selected")
		return
	}
	if req.OrderID == "" {
		req.OrderID = fmt.Sprintf("HOLD-%d", time.Now().UnixMilli())
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	short, err := h.Ledger.Reserve(ctx, req.OrderID, req.Items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reserving stock")
		return
	}
	if len(short) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Insufficient stock for some items",
			"errors":  short,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orderId": req.OrderID})
}

func (h *StockHandler) release(w http.ResponseWriter, r *http.Request) {
	var req stockItemsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "Missing order id or products")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Ledger.Release(ctx, req.OrderID, req.Items, req.Reason)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error releasing stock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Reservation released"})
}

func (h *StockHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	hist, err := h.Ledger.History(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching stock history")
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
	"github.com/ariefcatur/go-storefront.git/internal/redisx"
)

type ProductsHandler struct {
	Repo  *catalog.Repo
	Redis *redis.Client
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/api/products", h.list)
	r.Post("/api/products", h.create)
	r.Get("/api/products/{id}", h.get)
	r.Put("/api/products/{id}", h.update)
	r.Delete("/api/products/{id}", h.delete)
	r.Put("/api/products/{id}/discount", h.setDiscount)
	r.Put("/api/products/{id}/remove-discount", h.removeDiscount)
	r.Post("/api/products/stock", h.stockLevels)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching products")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Repo.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if p.Name == "" || p.Price.IsNegative() || p.StockRemaining < 0 {
		writeError(w, http.StatusBadRequest, "Failed to create product")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Repo.Create(ctx, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true, "message": "Product created successfully", "product": p,
	})
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p.ID = chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := h.Repo.Update(ctx, &p)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "message": "Product updated successfully", "product": p,
	})
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := h.Repo.Delete(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Product deleted successfully"})
}

func (h *ProductsHandler) setDiscount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Discount int `json:"discount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Discount < 0 || body.Discount > 100 {
		writeError(w, http.StatusBadRequest, "invalid discount")
		return
	}
	h.applyDiscount(w, r, body.Discount, "Discount added successfully")
}

func (h *ProductsHandler) removeDiscount(w http.ResponseWriter, r *http.Request) {
	h.applyDiscount(w, r, 0, "Discount removed successfully")
}

func (h *ProductsHandler) applyDiscount(w http.ResponseWriter, r *http.Request, discount int, okMsg string) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := h.Repo.SetDiscount(ctx, chi.URLParam(r, "id"), discount)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error updating discount")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": okMsg})
}

type stockLevelsReq struct {
	ProductIDs []string `json:"productIds"`
}

// stockLevels serves the storefront cart page. Levels are cached per
// product in Redis; only cache misses hit Postgres.
func (h *ProductsHandler) stockLevels(w http.ResponseWriter, r *http.Request) {
	var req stockLevelsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.ProductIDs) == 0 {
		writeError(w, http.StatusBadRequest, "No product IDs provided")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	levels := make(map[string]int, len(req.ProductIDs))
	var misses []string
	for _, id := range req.ProductIDs {
		key := fmt.Sprintf(redisx.KeyStockLevel, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil {
			if n, err := strconv.Atoi(s); err == nil {
				levels[id] = n
				continue
			}
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		fresh, err := h.Repo.StockLevels(ctx, misses)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Error fetching stock levels")
			return
		}
		for id, n := range fresh {
			levels[id] = n
			key := fmt.Sprintf(redisx.KeyStockLevel, id)
			_ = h.Redis.Set(ctx, key, strconv.Itoa(n), redisx.TTLStockCache).Err()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stockLevels": levels})
}

package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront.git/internal/catalog"
)

// Ledger owns every write to the stock counters. Each operation runs as one
// transaction over the whole item list: product rows are locked first, so
// two concurrent checkouts for the same units serialize and the loser gets
// an itemized shortfall instead of driving stock negative. A failed line
// rolls back the entire call.
type Ledger struct{ DB *pgxpool.Pool }

// CheckAvailability runs the loose validator against current counters.
// Read-only; safe to call any number of times. A non-empty holdID nets the
// caller's own checkout hold out of stock_reserved first, so a customer is
// never blocked by the very units they are holding.
func (l *Ledger) CheckAvailability(ctx context.Context, holdID string, items []LineRequest) ([]Shortfall, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	rows, err := l.DB.Query(ctx, `
		SELECT id, name, stock_remaining, stock_reserved
		FROM products WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]catalog.Product, len(items))
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.StockRemaining, &p.StockReserved); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if holdID != "" {
		held, err := l.heldQuantities(ctx, holdID)
		if err != nil {
			return nil, err
		}
		for id, q := range held {
			p, ok := products[id]
			if !ok {
				continue
			}
			if p.StockReserved -= q; p.StockReserved < 0 {
				p.StockReserved = 0
			}
			products[id] = p
		}
	}
	return CheckLines(products, items), nil
}

// heldQuantities sums the outstanding reservation balance of one hold per
// product from the ledger.
func (l *Ledger) heldQuantities(ctx context.Context, holdID string) (map[string]int, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT product_id,
		       SUM(CASE action WHEN 'reserved' THEN quantity ELSE -quantity END)
		FROM stock_ledger
		WHERE order_id = $1 AND action IN ('reserved','unreserved')
		GROUP BY product_id`, holdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	held := make(map[string]int)
	for rows.Next() {
		var id string
		var q int
		if err := rows.Scan(&id, &q); err != nil {
			return nil, err
		}
		if q > 0 {
			held[id] = q
		}
	}
	return held, rows.Err()
}

// Reserve places a provisional hold for an active checkout:
// stock_reserved += qty per line, with a 'reserved' audit row.
func (l *Ledger) Reserve(ctx context.Context, orderID string, items []LineRequest) ([]Shortfall, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var rejects []Shortfall
	for _, it := range items {
		name, remaining, reserved, err := lockProduct(ctx, tx, it.ProductID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				rejects = append(rejects, Shortfall{ProductID: it.ProductID, Requested: it.Quantity, Reason: "Product not found"})
				continue
			}
			return nil, err
		}
		if sf := CheckLines(map[string]catalog.Product{it.ProductID: {
			ID: it.ProductID, Name: name, StockRemaining: remaining, StockReserved: reserved,
		}}, []LineRequest{it}); len(sf) > 0 {
			rejects = append(rejects, sf...)
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock_reserved = stock_reserved + $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
		if err := appendEntry(ctx, tx, it.ProductID, ActionReserved, it.Quantity, orderID, ReasonCheckoutHold); err != nil {
			return nil, err
		}
	}
	if len(rejects) > 0 {
		return rejects, nil // rollback via defer
	}
	return nil, tx.Commit(ctx)
}

// Release drops a hold that was never deducted (checkout abandoned):
// stock_reserved -= qty, floored at zero, with an 'unreserved' audit row.
func (l *Ledger) Release(ctx context.Context, orderID string, items []LineRequest, reason string) error {
	if reason == "" {
		reason = ReasonAbandoned
	}
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		ct, err := tx.Exec(ctx,
			`UPDATE products SET stock_reserved = GREATEST(stock_reserved - $2, 0), updated_at = now() WHERE id=$1`,
			it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return catalog.ErrNotFound
		}
		if err := appendEntry(ctx, tx, it.ProductID, ActionUnreserved, it.Quantity, orderID, reason); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DeductForOrder removes inventory for a confirmed order. The tight check
// and the decrement happen under the same row lock, which is what closes
// the oversell window between checkout start and payment confirmation:
// no order commits unless stock_remaining still covers every line.
// Deduction also consumes any checkout hold covering the line; the consumed
// portion gets its own 'unreserved' audit row (under holdID when given) so
// that reserved minus unreserved keeps reconstructing stock_reserved.
func (l *Ledger) DeductForOrder(ctx context.Context, orderID, holdID string, items []LineRequest) ([]Shortfall, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var rejects []Shortfall
	for _, it := range items {
		name, remaining, reserved, err := lockProduct(ctx, tx, it.ProductID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				rejects = append(rejects, Shortfall{ProductID: it.ProductID, Requested: it.Quantity, Reason: "Product no longer available"})
				continue
			}
			return nil, err
		}
		if sf := tightShortfall(name, remaining, it); sf != nil {
			rejects = append(rejects, *sf)
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE products
			SET stock_remaining = stock_remaining - $2,
			    stock_reserved  = GREATEST(stock_reserved - $2, 0),
			    updated_at      = now()
			WHERE id=$1`,
			it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
		if err := appendEntry(ctx, tx, it.ProductID, ActionDeducted, it.Quantity, orderID, ReasonOrderConfirmed); err != nil {
			return nil, err
		}
		if consumed := min(it.Quantity, reserved); consumed > 0 {
			id := holdID
			if id == "" {
				id = orderID
			}
			if err := appendEntry(ctx, tx, it.ProductID, ActionUnreserved, consumed, id, ReasonHoldConsumed); err != nil {
				return nil, err
			}
		}
	}
	if len(rejects) > 0 {
		return rejects, nil
	}
	return nil, tx.Commit(ctx)
}

// Refund fully reverses a deduction when an order is cancelled or deleted:
// stock_remaining += qty with a 'refunded' audit row.
func (l *Ledger) Refund(ctx context.Context, orderID string, items []LineRequest, reason string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		ct, err := tx.Exec(ctx,
			`UPDATE products SET stock_remaining = stock_remaining + $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return catalog.ErrNotFound
		}
		if err := appendEntry(ctx, tx, it.ProductID, ActionRefunded, it.Quantity, orderID, reason); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// History returns current counters plus the full ledger, newest first.
func (l *Ledger) History(ctx context.Context, productID string) (History, error) {
	var h History
	h.ProductID = productID
	err := l.DB.QueryRow(ctx,
		`SELECT name, stock_remaining, stock_reserved FROM products WHERE id=$1`, productID).
		Scan(&h.ProductName, &h.CurrentStock, &h.ReservedStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return History{}, catalog.ErrNotFound
	}
	if err != nil {
		return History{}, err
	}
	if a := h.CurrentStock - h.ReservedStock; a > 0 {
		h.AvailableStock = a
	}

	rows, err := l.DB.Query(ctx, `
		SELECT id, action, quantity, order_id, reason, created_at
		FROM stock_ledger WHERE product_id=$1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return History{}, err
	}
	defer rows.Close()

	for rows.Next() {
		e := Entry{ProductID: productID}
		if err := rows.Scan(&e.ID, &e.Action, &e.Quantity, &e.OrderID, &e.Reason, &e.CreatedAt); err != nil {
			return History{}, err
		}
		h.Entries = append(h.Entries, e)
	}
	return h, rows.Err()
}

func lockProduct(ctx context.Context, tx pgx.Tx, id string) (name string, remaining, reserved int, err error) {
	err = tx.QueryRow(ctx,
		`SELECT name, stock_remaining, stock_reserved FROM products WHERE id=$1 FOR UPDATE`, id).
		Scan(&name, &remaining, &reserved)
	return
}

func appendEntry(ctx context.Context, tx pgx.Tx, productID string, action Action, qty int, orderID, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_ledger (id, product_id, action, quantity, order_id, reason)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), productID, action, qty, orderID, reason)
	return err
}

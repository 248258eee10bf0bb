package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrOrderIDTaken means the timestamp-derived order id collided with an
	// existing one. Retryable: a resubmission gets a fresh timestamp.
	ErrOrderIDTaken = errors.New("order id already taken")
)

type Repo struct{ DB *pgxpool.Pool }

// Insert writes the order and its line snapshots in one transaction. The
// unique constraint on order_id is the collision check; there is no
// pre-insert existence probe.
func (r *Repo) Insert(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_id, tracking_code, user_id, status, delivery_price, total_price,
		                    payment, shipping_address, est_delivery, ship_from, ship_to, carrier,
		                    last_location, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.OrderID, o.TrackingCode, o.UserID, o.Status, o.DeliveryPrice, o.TotalPrice,
		o.Payment, o.Shipping, o.EstDelivery, o.From, o.To, o.Carrier,
		o.LastLocation, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOrderIDTaken
		}
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.NewString(), o.ID, it.ProductID, it.Name, it.Quantity, it.Price,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const orderCols = `id, order_id, tracking_code, user_id, status, delivery_price, total_price,
	payment, shipping_address, est_delivery, ship_from, ship_to, carrier, last_location, created_at, updated_at`

func (r *Repo) scanOrder(ctx context.Context, row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderID, &o.TrackingCode, &o.UserID, &o.Status, &o.DeliveryPrice,
		&o.TotalPrice, &o.Payment, &o.Shipping, &o.EstDelivery, &o.From, &o.To, &o.Carrier,
		&o.LastLocation, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.loadItems(ctx, o.ID)
	return o, err
}

func (r *Repo) loadItems(ctx context.Context, id string) ([]LineItem, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT product_id, name, quantity, price FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetByOrderID looks up by the human-readable id, not the row id.
func (r *Repo) GetByOrderID(ctx context.Context, orderID string) (Order, error) {
	return r.scanOrder(ctx, r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE order_id=$1`, orderID))
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC`)
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderID, &o.TrackingCode, &o.UserID, &o.Status, &o.DeliveryPrice,
			&o.TotalPrice, &o.Payment, &o.Shipping, &o.EstDelivery, &o.From, &o.To, &o.Carrier,
			&o.LastLocation, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := r.loadItems(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, orderID string, s Status) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE order_id=$1`, orderID, s)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateShipping is the admin edit surface: tracking fields only, status
// transitions are validated by the caller against the state machine.
func (r *Repo) UpdateShipping(ctx context.Context, orderID string, s Status, carrier, lastLocation string, estDelivery time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, carrier=$3, last_location=$4, est_delivery=$5, updated_at=now()
		WHERE order_id=$1`,
		orderID, s, carrier, lastLocation, estDelivery)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, orderID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

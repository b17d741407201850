package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrLineNotFound   = errors.New("product is not in the cart")
	ErrNoPendingOrder = errors.New("no pending order")
)

// Ledger owns every mutation of orders, order_lines and product stock.
// All methods take the per-user lock, so the chat loop, the checkout HTTP
// path and the webhook cannot interleave on one user's pending order.
type Ledger struct {
	DB    *pgxpool.Pool
	Locks *UserLocks
	Log   *logrus.Logger
}

const selectItems = `
	SELECT p.id, p.title, p.price_cents, l.quantity
	FROM order_lines l
	JOIN products p ON p.id = l.product_id
	WHERE l.order_id = $1
	ORDER BY p.id`

// AddItem puts one unit of the product into the user's cart, creating the
// pending order lazily, and returns the resulting line list.
func (g *Ledger) AddItem(ctx context.Context, userID string, productID int64) ([]Item, error) {
	unlock := g.Locks.Lock(userID)
	defer unlock()

	tx, err := g.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID, err := findOrCreatePending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	ct, err := tx.Exec(ctx, `UPDATE order_lines SET quantity = quantity + 1
	                         WHERE order_id = $1 AND product_id = $2`, orderID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "bump line")
	}
	if ct.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `INSERT INTO order_lines (order_id, product_id, quantity)
		                           VALUES ($1, $2, 1)`, orderID, productID); err != nil {
			return nil, pkgerrors.Wrap(err, "insert line")
		}
	}

	items, err := finishMutation(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pkgerrors.Wrap(err, "commit")
	}
	return items, nil
}

// RemoveItem takes one unit out of the cart, deleting the line when the
// last unit goes. The returned list is empty when the cart emptied.
func (g *Ledger) RemoveItem(ctx context.Context, userID string, productID int64) ([]Item, error) {
	unlock := g.Locks.Lock(userID)
	defer unlock()

	tx, err := g.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID, err := findPending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, ErrEmptyCart
	}

	ct, err := tx.Exec(ctx, `UPDATE order_lines SET quantity = quantity - 1
	                         WHERE order_id = $1 AND product_id = $2 AND quantity > 1`, orderID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "decrement line")
	}
	if ct.RowsAffected() == 0 {
		ct, err = tx.Exec(ctx, `DELETE FROM order_lines
		                        WHERE order_id = $1 AND product_id = $2`, orderID, productID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "delete line")
		}
		if ct.RowsAffected() == 0 {
			return nil, ErrLineNotFound
		}
	}

	items, err := finishMutation(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pkgerrors.Wrap(err, "commit")
	}
	return items, nil
}

// GetCart returns the pending order's lines, or an empty list when the user
// has no pending order.
func (g *Ledger) GetCart(ctx context.Context, userID string) ([]Item, error) {
	var orderID string
	err := g.DB.QueryRow(ctx, `SELECT id FROM orders
	                           WHERE user_id = $1 AND status = 'Pending'
	                           ORDER BY created_at DESC LIMIT 1`, userID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []Item{}, nil
		}
		return nil, pkgerrors.Wrap(err, "find pending order")
	}

	rows, err := g.DB.Query(ctx, selectItems, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list lines")
	}
	defer rows.Close()
	return scanItems(rows)
}

// FinalizeInfo carries the verified payment facts written at finalize time.
type FinalizeInfo struct {
	PayerID         string
	PayerEmail      string
	AmountCents     int // gateway-reported; used only when the cart is empty
	ShippingAddress string
}

// Finalize flips the user's pending order to Paid, writes payer metadata and
// decrements stock. A missing pending order means the payment was already
// reconciled, so the caller treats ErrNoPendingOrder as a no-op. Stock is
// never driven negative: a line whose decrement would overdraw is skipped
// with the order still finalizing (historical behavior, kept on purpose).
func (g *Ledger) Finalize(ctx context.Context, userID string, info FinalizeInfo) (*FinalizedOrder, error) {
	unlock := g.Locks.Lock(userID)
	defer unlock()

	tx, err := g.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID, err := findPending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, ErrNoPendingOrder
	}

	rows, err := tx.Query(ctx, selectItems, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list lines")
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	total := Total(items)
	if len(items) == 0 {
		total = info.AmountCents
		g.Log.WithFields(logrus.Fields{"order_id": orderID, "user_id": userID}).
			Warn("finalizing order with empty cart, trusting gateway amount")
	}

	ct, err := tx.Exec(ctx, `UPDATE orders
	                         SET status = 'Paid', amount_cents = $2, shipping_address = $3,
	                             payer_id = $4, payer_email = $5, updated_at = now()
	                         WHERE id = $1 AND status = 'Pending'`,
		orderID, total, info.ShippingAddress, info.PayerID, info.PayerEmail)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mark paid")
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNoPendingOrder
	}

	for _, it := range items {
		var stock int
		if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, it.ProductID).Scan(&stock); err != nil {
			return nil, pkgerrors.Wrap(err, "lock stock")
		}
		if stock < it.Quantity {
			g.Log.WithFields(logrus.Fields{
				"order_id":   orderID,
				"product_id": it.ProductID,
				"stock":      stock,
				"required":   it.Quantity,
			}).Warn("insufficient stock at finalize, decrement skipped")
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now()
		                           WHERE id = $1 AND stock >= $2`, it.ProductID, it.Quantity); err != nil {
			return nil, pkgerrors.Wrap(err, "decrement stock")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, pkgerrors.Wrap(err, "commit")
	}

	return &FinalizedOrder{
		OrderID:         orderID,
		UserID:          userID,
		Items:           items,
		TotalCents:      total,
		ShippingAddress: info.ShippingAddress,
		PayerEmail:      info.PayerEmail,
	}, nil
}

func findPending(ctx context.Context, tx pgx.Tx, userID string) (string, error) {
	var orderID string
	err := tx.QueryRow(ctx, `SELECT id FROM orders
	                         WHERE user_id = $1 AND status = 'Pending'
	                         ORDER BY created_at DESC LIMIT 1`, userID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", pkgerrors.Wrap(err, "find pending order")
	}
	return orderID, nil
}

func findOrCreatePending(ctx context.Context, tx pgx.Tx, userID string) (string, error) {
	orderID, err := findPending(ctx, tx, userID)
	if err != nil || orderID != "" {
		return orderID, err
	}
	orderID = uuid.NewString()
	if _, err := tx.Exec(ctx, `INSERT INTO orders (id, user_id, status, amount_cents)
	                           VALUES ($1, $2, 'Pending', 0)`, orderID, userID); err != nil {
		return "", pkgerrors.Wrap(err, "create pending order")
	}
	return orderID, nil
}

// finishMutation recomputes the order amount from its lines and re-reads
// the line list, inside the caller's transaction.
func finishMutation(ctx context.Context, tx pgx.Tx, orderID string) ([]Item, error) {
	if _, err := tx.Exec(ctx, `UPDATE orders
	                           SET amount_cents = (
	                               SELECT COALESCE(SUM(p.price_cents * l.quantity), 0)
	                               FROM order_lines l
	                               JOIN products p ON p.id = l.product_id
	                               WHERE l.order_id = $1
	                           ), updated_at = now()
	                           WHERE id = $1`, orderID); err != nil {
		return nil, pkgerrors.Wrap(err, "recompute amount")
	}

	rows, err := tx.Query(ctx, selectItems, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list lines")
	}
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Title, &it.PriceCents, &it.Quantity); err != nil {
			return nil, pkgerrors.Wrap(err, "scan line")
		}
		items = append(items, it)
	}
	return items, pkgerrors.Wrap(rows.Err(), "iterate lines")
}

package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Conf is the Postgres backed order store.
type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	return &Conf{db: db}, nil
}

const orderColumns = `o.id, COALESCE(o.order_number, ''), o.user_id, o.first_name, o.last_name, o.email,
	o.phone, o.district, o.sector, o.cell, o.ip, o.order_total, o.tax, o.status, o.is_ordered,
	o.created_at, o.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.FirstName, &o.LastName, &o.Email,
		&o.Phone, &o.District, &o.Sector, &o.Cell, &o.IP, &o.OrderTotal, &o.Tax, &o.Status, &o.IsOrdered,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// WithTx runs fn inside a database transaction.
func (c *Conf) WithTx(ctx context.Context, fn func(Tx) error) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", errors.Join(mapStoreError(err), er))
		}
		return fmt.Errorf("failed to execute withTx: %w", mapStoreError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", mapStoreError(err))
	}
	return nil
}

// mapStoreError turns lock contention reported by Postgres into ErrConflict.
func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error) {
	query := `
		SELECT id, name, seller_id, price, stock, is_available
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE
	`
	rows, err := t.tx.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]ProductSnapshot, len(ids))
	for rows.Next() {
		var p ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.SellerID, &p.Price, &p.Stock, &p.IsAvailable); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) (int64, error) {
	query := `
		INSERT INTO orders (user_id, first_name, last_name, email, phone, district, sector, cell,
			ip, order_total, tax, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	var id int64
	err := t.tx.QueryRowContext(ctx, query, o.UserID, o.FirstName, o.LastName, o.Email, o.Phone,
		o.District, o.Sector, o.Cell, o.IP, o.OrderTotal, o.Tax, string(o.Status)).
		Scan(&id, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	return id, nil
}

func (t *pgTx) SetOrderNumber(ctx context.Context, orderID int64, number string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE orders SET order_number = $1 WHERE id = $2`, number, orderID)
	if err != nil {
		return fmt.Errorf("failed to set order number: %w", err)
	}
	return nil
}

func (t *pgTx) InsertLineItem(ctx context.Context, item *LineItem) (int64, error) {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, product_price, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`
	var id int64
	err := t.tx.QueryRowContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.Price).
		Scan(&id, &item.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order item: %w", err)
	}
	return id, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	query := `
		UPDATE products
		SET stock = stock - $1,
			is_available = is_available AND stock - $1 > 0,
			updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`
	res, err := t.tx.ExecContext(ctx, query, qty, productID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListByUser returns the user's orders newest first. An empty status matches all.
func (c *Conf) ListByUser(ctx context.Context, userID int64, status Status, orderedOnly bool) ([]Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.user_id = $1
		  AND ($2 = '' OR o.status = $2)
		  AND (NOT $3 OR o.is_ordered)
		ORDER BY o.created_at DESC, o.id DESC
	`
	return c.queryOrders(ctx, query, userID, string(status), orderedOnly)
}

// ListForSeller returns paid orders that contain at least one of the seller's products.
func (c *Conf) ListForSeller(ctx context.Context, sellerID int64) ([]Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.is_ordered
		  AND EXISTS (
			SELECT 1 FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = o.id AND p.seller_id = $1
		  )
		ORDER BY o.created_at DESC, o.id DESC
	`
	return c.queryOrders(ctx, query, sellerID)
}

func (c *Conf) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var list []Order
	index := map[int64]int{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		index[o.ID] = len(list)
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return []Order{}, nil
	}

	ids := make([]int64, 0, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
	}
	items, err := c.loadItems(ctx, c.db, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		o := &list[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return list, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Conf) loadItems(ctx context.Context, q querier, orderIDs []int64) ([]LineItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.product_price, oi.created_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`
	rows, err := q.QueryContext(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get returns one of the user's orders with its line items and payment.
func (c *Conf) Get(ctx context.Context, userID, orderID int64) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1 AND o.user_id = $2`
	o, err := scanOrder(c.db.QueryRowContext(ctx, query, orderID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	if o.Items, err = c.loadItems(ctx, c.db, []int64{o.ID}); err != nil {
		return Order{}, err
	}
	if o.Payment, err = c.payment(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (c *Conf) payment(ctx context.Context, orderID int64) (*Payment, error) {
	query := `
		SELECT payment_id, method, amount_paid, status, created_at
		FROM payments WHERE order_id = $1
		ORDER BY id DESC LIMIT 1
	`
	var p Payment
	err := c.db.QueryRowContext(ctx, query, orderID).Scan(&p.PaymentID, &p.Method, &p.AmountPaid, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	return &p, nil
}

// Stats aggregates the user's orders. Seller figures are added when forSeller is set.
func (c *Conf) Stats(ctx context.Context, userID int64, forSeller bool) (Stats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(order_total) FILTER (WHERE status = 'completed'), 0)
		FROM orders WHERE user_id = $1
	`
	var s Stats
	err := c.db.QueryRowContext(ctx, query, userID).Scan(&s.TotalOrders, &s.CompletedOrders, &s.PendingOrders, &s.TotalSpent)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query order stats: %w", err)
	}
	s.AverageOrder = decimal.Zero
	if s.CompletedOrders > 0 {
		s.AverageOrder = s.TotalSpent.Div(decimal.NewFromInt(int64(s.CompletedOrders)))
	}
	if !forSeller {
		return s, nil
	}

	sellerQuery := `
		SELECT COUNT(DISTINCT oi.order_id), COALESCE(SUM(oi.quantity * oi.product_price), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE p.seller_id = $1 AND o.is_ordered
	`
	var seller SellerStats
	if err := c.db.QueryRowContext(ctx, sellerQuery, userID).Scan(&seller.OrdersWithMyProducts, &seller.TotalRevenue); err != nil {
		return Stats{}, fmt.Errorf("failed to query seller stats: %w", err)
	}
	s.Seller = &seller
	return s, nil
}

// UpdateStatus sets the status of an order containing one of the seller's products.
func (c *Conf) UpdateStatus(ctx context.Context, sellerID, orderID int64, status Status) (Order, error) {
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	var o Order
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var owns bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM order_items oi
				JOIN products p ON p.id = oi.product_id
				WHERE oi.order_id = o.id AND p.seller_id = $2
			)
			FROM orders o WHERE o.id = $1
			FOR UPDATE OF o`, orderID, sellerID).Scan(&owns)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("failed to check order ownership: %w", err)
		}
		if !owns {
			return fmt.Errorf("%w: order %d has none of your products", ErrForbidden, orderID)
		}

		query := `UPDATE orders o SET status = $1, updated_at = NOW() WHERE o.id = $2 RETURNING ` + orderColumns
		o, err = scanOrder(tx.QueryRowContext(ctx, query, string(status), orderID))
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		o.Items, err = c.loadItems(ctx, tx, []int64{orderID})
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// MarkPaid records a payment for a pending order and moves it to processed.
// A payment id seen before is a no-op and reports recorded=false. The paid
// amount must equal the order total in minor units.
func (c *Conf) MarkPaid(ctx context.Context, orderID int64, p Payment) (o Order, recorded bool, err error) {
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		o, err = scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, orderID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		var seen bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE payment_id = $1 AND order_id = $2)`,
			p.PaymentID, orderID).Scan(&seen)
		if err != nil {
			return fmt.Errorf("failed to look up payment: %w", err)
		}
		if !seen {
			if o.Status != StatusPending {
				return fmt.Errorf("%w: order %d is %s", ErrConflict, orderID, o.Status)
			}
			if !SameMinorUnits(p.AmountPaid, o.OrderTotal) {
				return fmt.Errorf("%w: paid %s but order %d totals %s", ErrInvalidRequest,
					p.AmountPaid.StringFixed(2), orderID, o.OrderTotal.StringFixed(2))
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO payments (payment_id, order_id, method, amount_paid, status, created_at)
				VALUES ($1, $2, $3, $4, $5, NOW())`,
				p.PaymentID, orderID, p.Method, p.AmountPaid, p.Status)
			if err != nil {
				return fmt.Errorf("failed to insert payment: %w", err)
			}
			query := `
				UPDATE orders o
				SET status = 'processed', is_ordered = TRUE, updated_at = NOW()
				WHERE o.id = $1
				RETURNING ` + orderColumns
			o, err = scanOrder(tx.QueryRowContext(ctx, query, orderID))
			if err != nil {
				return fmt.Errorf("failed to mark order paid: %w", err)
			}
			recorded = true
		}

		o.Items, err = c.loadItems(ctx, tx, []int64{orderID})
		return err
	})
	if err != nil {
		return Order{}, false, err
	}
	return o, recorded, nil
}

// SameMinorUnits reports whether two amounts round to the same number of cents.
func SameMinorUnits(a, b decimal.Decimal) bool {
	return a.Shift(2).Round(0).Equal(b.Shift(2).Round(0))
}

// Delete removes a pending order owned by the user. Line items are deleted
// first and their quantities are returned to stock.
func (c *Conf) Delete(ctx context.Context, userID, orderID int64) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			orderID, userID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if status != StatusPending {
			return fmt.Errorf("%w: order %d is %s", ErrConflict, orderID, status)
		}

		rows, err := tx.QueryContext(ctx, `DELETE FROM order_items WHERE order_id = $1 RETURNING product_id, quantity`, orderID)
		if err != nil {
			return fmt.Errorf("failed to delete order items: %w", err)
		}
		restock := map[int64]int{}
		for rows.Next() {
			var productID int64
			var qty int
			if err := rows.Scan(&productID, &qty); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan deleted item: %w", err)
			}
			restock[productID] += qty
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for productID, qty := range restock {
			_, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock + $1, is_available = is_available OR (stock = 0 AND deleted_at IS NULL), updated_at = NOW()
				WHERE id = $2`, qty, productID)
			if err != nil {
				return fmt.Errorf("failed to restock product %d: %w", productID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		return nil
	})
}

// HasPurchased reports whether the user has a paid order containing the product.
func (c *Conf) HasPurchased(ctx context.Context, userID, productID int64) (bool, error) {
	var ok bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.user_id = $1 AND oi.product_id = $2 AND o.is_ordered
		)`, userID, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return ok, nil
}

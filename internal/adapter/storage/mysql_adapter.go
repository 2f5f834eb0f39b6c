package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213

	// Largest value InnoDB accepts; used when no lock timeout is configured.
	mysqlMaxLockWaitSeconds = 1073741824
)

type MySQLAdapter struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewMySQLAdapter wraps a pool opened with parseTime=true. A zero lockTimeout
// lets checkouts wait on row locks without bound.
func NewMySQLAdapter(db *sql.DB, lockTimeout time.Duration) *MySQLAdapter {
	return &MySQLAdapter{db: db, lockTimeout: lockTimeout}
}

// SaveProduct inserts or replaces a catalog row. Used for seeding.
func (m *MySQLAdapter) SaveProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == 0 {
		res, err := m.db.ExecContext(ctx, `
			INSERT INTO products (name, price, stock, is_active) VALUES (?, ?, ?, ?)`,
			p.Name, p.Price, p.Stock, p.Active,
		)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		p.ID = id
		return nil
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, is_active) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), price = VALUES(price),
			stock = VALUES(stock), is_active = VALUES(is_active)`,
		p.ID, p.Name, p.Price, p.Stock, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", p.ID, err)
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, is_active, created_at, updated_at
		FROM products WHERE id = ? AND is_active`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, price, stock, is_active, created_at, updated_at
		FROM products WHERE is_active AND id IN (`+placeholders(len(ids))+`)
		ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.CheckoutTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrCommitFailure, err)
	}
	defer tx.Rollback()

	// Session scoped, so it is reapplied on every checkout that borrows the connection.
	if _, err := tx.ExecContext(ctx, `SET SESSION innodb_lock_wait_timeout = ?`, m.lockWaitSeconds()); err != nil {
		return fmt.Errorf("set lock wait timeout: %w", err)
	}

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}
	return nil
}

func (m *MySQLAdapter) lockWaitSeconds() int64 {
	if m.lockTimeout <= 0 {
		return mysqlMaxLockWaitSeconds
	}
	return int64(math.Max(1, math.Ceil(m.lockTimeout.Seconds())))
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, total, created_at
		FROM orders WHERE id = ? AND user_id = ?`, orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, line_total, status
		FROM order_items WHERE order_id = ? ORDER BY product_id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.UnitPrice, &it.Quantity, &it.LineTotal, &it.Status); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return &o, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, status, total, created_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0, limit)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type mysqlTx struct {
	tx *sql.Tx
}

// LockProducts takes one row lock per statement in the order given, so two
// checkouts sharing products always queue on the lowest id first.
func (t *mysqlTx) LockProducts(ctx context.Context, ids []int64) (domain.Catalog, error) {
	locked := make(domain.Catalog, len(ids))
	for _, id := range ids {
		var p domain.Product
		err := t.tx.QueryRowContext(ctx, `
			SELECT id, name, price, stock, is_active, created_at, updated_at
			FROM products WHERE id = ? FOR UPDATE`, id,
		).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %d: %w", id, mapMySQLError(err))
		}
		if p.Active {
			locked[id] = p
		}
	}
	return locked, nil
}

func (t *mysqlTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?
		WHERE id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", mapMySQLError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrStockUnderflow
	}
	return nil
}

func (t *mysqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Status, order.Total, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapMySQLError(err))
	}

	for i := range order.Items {
		it := &order.Items[i]
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, line_total, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.LineTotal, it.Status,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", mapMySQLError(err))
		}
		if id, err := res.LastInsertId(); err == nil {
			it.ID = id
		}
	}
	return nil
}

func mapMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case mysqlErrLockWaitTimeout:
		return fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
	case mysqlErrDeadlock:
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

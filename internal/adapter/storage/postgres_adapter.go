package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
)

// PostgresAdapter is the pgx backed catalog, checkout and order store.
// Money columns travel as text so decimal values never pass through floats.
type PostgresAdapter struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPostgresAdapter(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresAdapter {
	return &PostgresAdapter{pool: pool, lockTimeout: lockTimeout}
}

const pgProductColumns = `id, name, price::text, stock, is_active, created_at, updated_at`

type pgRow interface {
	Scan(dest ...any) error
}

func scanPgProduct(row pgRow) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return p, fmt.Errorf("parse price of product %d: %w", p.ID, err)
	}
	p.Price = d
	return p, nil
}

// SaveProduct inserts or replaces a catalog row. Used for seeding.
func (a *PostgresAdapter) SaveProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == 0 {
		err := a.pool.QueryRow(ctx, `
			INSERT INTO products (name, price, stock, is_active) VALUES ($1, $2, $3, $4)
			RETURNING id`,
			p.Name, p.Price.String(), p.Stock, p.Active,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO products (id, name, price, stock, is_active) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			stock = EXCLUDED.stock, is_active = EXCLUDED.is_active, updated_at = now()`,
		p.ID, p.Name, p.Price.String(), p.Stock, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", p.ID, err)
	}
	return nil
}

func (a *PostgresAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := a.pool.QueryRow(ctx, `SELECT `+pgProductColumns+` FROM products WHERE id = $1 AND is_active`, id)
	p, err := scanPgProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (a *PostgresAdapter) ListProducts(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := a.pool.Query(ctx, `
		SELECT `+pgProductColumns+` FROM products
		WHERE is_active AND id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanPgProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (a *PostgresAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.CheckoutTx) error) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrCommitFailure, err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	// Zero disables the timeout, matching an unbounded wait.
	timeout := fmt.Sprintf("%dms", a.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}
	return nil
}

func (a *PostgresAdapter) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	// The uuid cast would reject anything else with a syntax error.
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.ErrOrderNotFound
	}

	var (
		o     domain.Order
		total string
	)
	err := a.pool.QueryRow(ctx, `
		SELECT id::text, user_id, status, total::text, created_at
		FROM orders WHERE id = $1::uuid AND user_id = $2`, orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.Status, &total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT id, order_id::text, product_id, product_name, unit_price::text, quantity, line_total::text, status
		FROM order_items WHERE order_id = $1::uuid ORDER BY product_id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it              domain.OrderItem
			unit, lineTotal string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&unit, &it.Quantity, &lineTotal, &it.Status); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		if it.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
			return nil, fmt.Errorf("parse line total: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return &o, nil
}

func (a *PostgresAdapter) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id::text, user_id, status, total::text, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0, limit)
	for rows.Next() {
		var (
			o     domain.Order
			total string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse order total: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (domain.Catalog, error) {
	locked := make(domain.Catalog, len(ids))
	for _, id := range ids {
		row := t.tx.QueryRow(ctx, `SELECT `+pgProductColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
		p, err := scanPgProduct(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %d: %w", id, mapPgError(err))
		}
		if p.Active {
			locked[id] = p
		}
	}
	return locked, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1`, quantity, productID)
	if err != nil {
		return fmt.Errorf("update stock: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrStockUnderflow
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		order.ID, order.UserID, string(order.Status), order.Total.String(), order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapPgError(err))
	}

	for i := range order.Items {
		it := &order.Items[i]
		err := t.tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, line_total, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			order.ID, it.ProductID, it.ProductName, it.UnitPrice.String(), it.Quantity, it.LineTotal.String(), string(it.Status),
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", mapPgError(err))
		}
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgLockNotAvailable:
		return fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
	case pgDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}
	return err
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := MigrateMySQL(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMySQLProduct(t *testing.T, adapter *MySQLAdapter, price string, stock int) int64 {
	t.Helper()
	p := &domain.Product{Name: "test-product", Price: decimal.RequireFromString(price), Stock: stock, Active: true}
	if err := adapter.SaveProduct(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p.ID
}

func TestMySQL_CheckoutTxCommits(t *testing.T) {
	db := getMySQLDB(t)
	ctx := context.Background()
	adapter := NewMySQLAdapter(db, time.Second)

	productID := seedMySQLProduct(t, adapter, "9.99", 10)
	userID := "mysql-test-" + uuid.NewString()
	order := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.OrderStatusCompleted,
		Total:     decimal.RequireFromString("19.98"),
		CreatedAt: time.Now().UTC(),
		Items: []domain.OrderItem{{
			ProductID:   productID,
			ProductName: "test-product",
			UnitPrice:   decimal.RequireFromString("9.99"),
			Quantity:    2,
			LineTotal:   decimal.RequireFromString("19.98"),
			Status:      domain.ItemStatusPending,
		}},
	}

	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		locked, err := tx.LockProducts(ctx, []int64{productID})
		if err != nil {
			return err
		}
		if locked[productID].Stock != 10 {
			t.Errorf("expected locked stock 10, got %d", locked[productID].Stock)
		}
		if err := tx.DecrementStock(ctx, productID, 2); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	p, err := adapter.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p.Stock != 8 {
		t.Errorf("expected stock 8, got %d", p.Stock)
	}

	got, err := adapter.GetOrder(ctx, userID, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if len(got.Items) != 1 || !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("unexpected items: %+v", got.Items)
	}
	if !got.Total.Equal(order.Total) {
		t.Errorf("expected total %s, got %s", order.Total, got.Total)
	}

	list, err := adapter.ListOrders(ctx, userID, 10, 0)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 order, got %d", len(list))
	}
}

func TestMySQL_RollbackOnError(t *testing.T) {
	db := getMySQLDB(t)
	ctx := context.Background()
	adapter := NewMySQLAdapter(db, time.Second)

	productID := seedMySQLProduct(t, adapter, "1.00", 5)
	boom := errors.New("boom")

	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		if _, err := tx.LockProducts(ctx, []int64{productID}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, productID, 3); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	p, _ := adapter.GetProduct(ctx, productID)
	if p.Stock != 5 {
		t.Errorf("expected stock 5 after rollback, got %d", p.Stock)
	}
}

func TestMySQL_DecrementUnderflow(t *testing.T) {
	db := getMySQLDB(t)
	ctx := context.Background()
	adapter := NewMySQLAdapter(db, time.Second)

	productID := seedMySQLProduct(t, adapter, "1.00", 1)

	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		if _, err := tx.LockProducts(ctx, []int64{productID}); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, productID, 2)
	})
	if !errors.Is(err, ErrStockUnderflow) {
		t.Errorf("expected ErrStockUnderflow, got: %v", err)
	}
}

func TestMySQL_LockWaitTimeout(t *testing.T) {
	db := getMySQLDB(t)
	ctx := context.Background()
	adapter := NewMySQLAdapter(db, time.Second)

	productID := seedMySQLProduct(t, adapter, "1.00", 1)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = adapter.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
			if _, err := tx.LockProducts(ctx, []int64{productID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		_, err := tx.LockProducts(ctx, []int64{productID})
		return err
	})
	close(release)
	<-done

	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got: %v", err)
	}
}

func TestMySQL_GetProduct_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db, 0)

	_, err := adapter.GetProduct(context.Background(), -1)
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got: %v", err)
	}
}

func TestMySQL_LockWaitSeconds(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    int64
	}{
		{0, mysqlMaxLockWaitSeconds},
		{100 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Second, 5},
	}
	for _, c := range cases {
		m := NewMySQLAdapter(nil, c.timeout)
		if got := m.lockWaitSeconds(); got != c.want {
			t.Errorf("lockWaitSeconds(%v) = %d, want %d", c.timeout, got, c.want)
		}
	}
}

func TestMapMySQLError(t *testing.T) {
	err := mapMySQLError(&mysql.MySQLError{Number: mysqlErrLockWaitTimeout})
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Errorf("expected lock timeout, got %v", err)
	}
	err = mapMySQLError(&mysql.MySQLError{Number: mysqlErrDeadlock})
	if !errors.Is(err, domain.ErrCommitFailure) {
		t.Errorf("expected commit failure, got %v", err)
	}
	plain := errors.New("plain")
	if mapMySQLError(plain) != plain {
		t.Error("expected non-mysql errors to pass through")
	}
}

package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

func seedStore(t *testing.T, s *MemoryStore, products ...domain.Product) {
	t.Helper()
	for _, p := range products {
		require.NoError(t, s.PutProduct(context.Background(), p))
	}
}

func product(id int64, price string, stock int) domain.Product {
	return domain.Product{
		ID:     id,
		Name:   "product",
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}

// holdLocks locks ids in a background transaction until the returned func is called.
func holdLocks(t *testing.T, s *MemoryStore, ids ...int64) func() {
	t.Helper()
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx port.CheckoutTx) error {
			if _, err := tx.LockProducts(ctx, ids); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked
	return func() {
		close(release)
		<-done
	}
}

func TestMemoryStore_CatalogHidesInactiveProducts(t *testing.T) {
	s := NewMemoryStore(0)
	inactive := product(2, "5.00", 3)
	inactive.Active = false
	seedStore(t, s, product(1, "9.99", 10), inactive)
	ctx := context.Background()

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "9.99", p.Price.StringFixed(2))

	_, err = s.GetProduct(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	list, err := s.ListProducts(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)
}

func TestMemoryStore_LockProductsSkipsMissingRows(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "1.00", 5), product(3, "2.00", 5))

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.CheckoutTx) error {
		locked, err := tx.LockProducts(ctx, []int64{1, 2, 3})
		require.NoError(t, err)
		assert.Len(t, locked, 2)
		assert.NotContains(t, locked, int64(2))
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_CommitAppliesDecrementsAndOrder(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "9.99", 10))
	ctx := context.Background()

	order := &domain.Order{
		ID:        "o-1",
		UserID:    "u1",
		Status:    domain.OrderStatusCompleted,
		Total:     decimal.RequireFromString("19.98"),
		CreatedAt: time.Now(),
		Items: []domain.OrderItem{
			{OrderID: "o-1", ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}
	err := s.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		if _, err := tx.LockProducts(ctx, []int64{1}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, 1, 2); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	require.NoError(t, err)

	stock, _ := s.Stock(1)
	assert.Equal(t, 8, stock)

	got, err := s.GetOrder(ctx, "u1", "o-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.NotZero(t, got.Items[0].ID)

	_, err = s.GetOrder(ctx, "someone-else", "o-1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryStore_RollbackLeavesNoTrace(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "1.00", 10))
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.CheckoutTx) error {
		if _, err := tx.LockProducts(ctx, []int64{1}); err != nil {
			return err
		}
		require.NoError(t, tx.DecrementStock(ctx, 1, 4))
		require.NoError(t, tx.InsertOrder(ctx, &domain.Order{ID: "o-1", UserID: "u1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stock, _ := s.Stock(1)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, s.OrderCount())

	// Locks were released.
	release := holdLocks(t, s, 1)
	release()
}

func TestMemoryStore_DecrementGuards(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "1.00", 3), product(2, "1.00", 3))

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.CheckoutTx) error {
		if _, err := tx.LockProducts(ctx, []int64{1}); err != nil {
			return err
		}
		assert.ErrorIs(t, tx.DecrementStock(ctx, 2, 1), ErrRowNotLocked)
		assert.ErrorIs(t, tx.DecrementStock(ctx, 1, 4), ErrStockUnderflow)
		require.NoError(t, tx.DecrementStock(ctx, 1, 2))
		assert.ErrorIs(t, tx.DecrementStock(ctx, 1, 2), ErrStockUnderflow)
		return nil
	})
	require.NoError(t, err)

	stock, _ := s.Stock(1)
	assert.Equal(t, 1, stock)
}

func TestMemoryStore_LockTimeout(t *testing.T) {
	s := NewMemoryStore(50 * time.Millisecond)
	seedStore(t, s, product(1, "1.00", 3))

	release := holdLocks(t, s, 1)
	defer release()

	start := time.Now()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.CheckoutTx) error {
		_, err := tx.LockProducts(ctx, []int64{1})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryStore_LockWaitHonoursContext(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "1.00", 3))

	release := holdLocks(t, s, 1)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		_, err := tx.LockProducts(ctx, []int64{1})
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryStore_WriterWaitsForLockHolder(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "1.00", 3))

	release := holdLocks(t, s, 1)

	deleted := make(chan error, 1)
	go func() { deleted <- s.DeleteProduct(context.Background(), 1) }()

	select {
	case <-deleted:
		t.Fatal("delete completed while the row was locked")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	require.NoError(t, <-deleted)
	_, ok := s.Stock(1)
	assert.False(t, ok)
}

func TestMemoryStore_ConcurrentDecrementsNeverOversell(t *testing.T) {
	s := NewMemoryStore(0)
	seedStore(t, s, product(1, "1.00", 10))

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx port.CheckoutTx) error {
				locked, err := tx.LockProducts(ctx, []int64{1})
				if err != nil {
					return err
				}
				if locked[1].Stock < 1 {
					return domain.ErrCartConflict
				}
				return tx.DecrementStock(ctx, 1, 1)
			})
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	stock, _ := s.Stock(1)
	assert.Equal(t, 0, stock)
}

func TestMemoryStore_ListOrdersNewestFirst(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		o := &domain.Order{ID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
			return tx.InsertOrder(ctx, o)
		}))
	}
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx port.CheckoutTx) error {
		return tx.InsertOrder(ctx, &domain.Order{ID: "x", UserID: "u2", CreatedAt: base})
	}))

	page, err := s.ListOrders(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, err = s.ListOrders(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
}

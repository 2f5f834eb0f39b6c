package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

// MemoryStore is an in-process catalog and order store. Each product row has
// its own lock, held for the life of a checkout transaction, so concurrent
// checkouts behave like SELECT ... FOR UPDATE against a database.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[int64]*domain.Product
	orders     map[string]*domain.Order
	rowLocks   map[int64]chan struct{}
	nextItemID int64

	lockTimeout time.Duration
}

// NewMemoryStore creates a store. A zero lockTimeout waits for row locks
// indefinitely.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		products:    make(map[int64]*domain.Product),
		orders:      make(map[string]*domain.Order),
		rowLocks:    make(map[int64]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

// PutProduct creates or replaces a product, waiting for any checkout holding
// its row.
func (s *MemoryStore) PutProduct(ctx context.Context, p domain.Product) error {
	if p.Stock < 0 {
		return ErrStockUnderflow
	}
	lock := s.rowLock(p.ID)
	if err := s.acquire(ctx, lock); err != nil {
		return err
	}
	defer func() { <-lock }()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.products[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = &p
	return nil
}

func (s *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	lock := s.rowLock(id)
	if err := s.acquire(ctx, lock); err != nil {
		return err
	}
	defer func() { <-lock }()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	return nil
}

// Stock returns the current stock of a product, active or not.
func (s *MemoryStore) Stock(id int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return 0, false
	}
	return p.Stock, true
}

func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok || !p.Active {
		return nil, domain.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, ids []int64) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.CheckoutTx) error) error {
	tx := &memoryTx{
		store:      s,
		held:       make(map[int64]chan struct{}),
		decrements: make(map[int64]int),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o, true), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, error) {
	s.mu.RLock()
	var mine []*domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			mine = append(mine, o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(mine, func(i, j int) bool {
		if mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].ID > mine[j].ID
		}
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	out := make([]domain.Order, 0, limit)
	for i := offset; i < len(mine) && len(out) < limit; i++ {
		out = append(out, *cloneOrder(mine[i], false))
	}
	return out, nil
}

func (s *MemoryStore) rowLock(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.rowLocks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		s.rowLocks[id] = lock
	}
	return lock
}

func (s *MemoryStore) acquire(ctx context.Context, lock chan struct{}) error {
	select {
	case lock <- struct{}{}:
		return nil
	default:
	}

	var expired <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return domain.ErrLockTimeout
	}
}

type memoryTx struct {
	store      *MemoryStore
	held       map[int64]chan struct{}
	decrements map[int64]int
	orders     []*domain.Order
}

func (tx *memoryTx) LockProducts(ctx context.Context, ids []int64) (domain.Catalog, error) {
	s := tx.store
	locked := make(domain.Catalog, len(ids))
	for _, id := range ids {
		if _, ok := tx.held[id]; ok {
			continue
		}
		if _, exists := s.Stock(id); !exists {
			continue
		}

		lock := s.rowLock(id)
		if err := s.acquire(ctx, lock); err != nil {
			return nil, fmt.Errorf("lock product %d: %w", id, err)
		}
		tx.held[id] = lock
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range tx.held {
		if p, ok := s.products[id]; ok && p.Active {
			locked[id] = *p
		}
	}
	return locked, nil
}

func (tx *memoryTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if _, ok := tx.held[productID]; !ok {
		return ErrRowNotLocked
	}
	stock, ok := tx.store.Stock(productID)
	if !ok || stock-tx.decrements[productID]-quantity < 0 {
		return ErrStockUnderflow
	}
	tx.decrements[productID] += quantity
	return nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	tx.orders = append(tx.orders, cloneOrder(order, true))
	return nil
}

func (tx *memoryTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, qty := range tx.decrements {
		p, ok := s.products[id]
		if !ok || p.Stock < qty {
			return fmt.Errorf("%w: product %d: %w", domain.ErrCommitFailure, id, ErrStockUnderflow)
		}
	}
	for id, qty := range tx.decrements {
		s.products[id].Stock -= qty
		s.products[id].UpdatedAt = time.Now().UTC()
	}
	for _, o := range tx.orders {
		for i := range o.Items {
			s.nextItemID++
			o.Items[i].ID = s.nextItemID
		}
		s.orders[o.ID] = o
	}
	return nil
}

func (tx *memoryTx) release() {
	for id, lock := range tx.held {
		<-lock
		delete(tx.held, id)
	}
}

func cloneOrder(o *domain.Order, withItems bool) *domain.Order {
	out := *o
	out.Items = nil
	if withItems {
		out.Items = append([]domain.OrderItem(nil), o.Items...)
	}
	return &out
}

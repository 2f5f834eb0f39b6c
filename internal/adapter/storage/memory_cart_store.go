package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
)

// CartCleanupInterval is how often expired session carts are swept.
const CartCleanupInterval = 30 * time.Second

type memoryCart struct {
	cart      *domain.Cart
	expiresAt time.Time
}

// MemoryCartStore keeps session carts in process, for single-node
// deployments and tests.
type MemoryCartStore struct {
	mu     sync.Mutex
	carts  map[string]memoryCart
	policy domain.ExpiryPolicy
	now    func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryCartStore(policy domain.ExpiryPolicy) *MemoryCartStore {
	s := &MemoryCartStore{
		carts:       make(map[string]memoryCart),
		policy:      policy,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryCartStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CartCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryCartStore) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, c := range s.carts {
		if now.After(c.expiresAt) {
			delete(s.carts, id)
		}
	}
}

func (s *MemoryCartStore) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[sessionID]
	if !ok {
		return domain.NewCart(), nil
	}
	if s.now().After(c.expiresAt) {
		delete(s.carts, sessionID)
		return domain.NewCart(), nil
	}
	return c.cart.Clone(), nil
}

func (s *MemoryCartStore) Save(ctx context.Context, sessionID string, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart.IsEmpty() {
		delete(s.carts, sessionID)
		return nil
	}
	s.carts[sessionID] = memoryCart{
		cart:      cart.Clone(),
		expiresAt: s.policy.ExpiresAt(s.now()),
	}
	return nil
}

func (s *MemoryCartStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}

// Close stops the background sweep and waits for it to finish.
func (s *MemoryCartStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

// MemoryIdempotency is the in-process counterpart of RedisIdempotency.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time), ttl: ttl}
}

func (m *MemoryIdempotency) Acquire(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.keys[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.keys[key] = time.Now().Add(m.ttl)
	return true, nil
}

func (m *MemoryIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

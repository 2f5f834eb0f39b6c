package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/port"
)

var (
	ErrQueueFull        = errors.New("event queue is full")
	ErrDispatcherClosed = errors.New("event dispatcher is closed")
)

// Dispatcher hands completed orders to a pool of workers that publish them,
// so a slow broker never holds up the checkout response.
type Dispatcher struct {
	next    port.OrderEventPublisher
	queue   chan *domain.Order
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(next port.OrderEventPublisher, workerCount, queueSize int, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		next:    next,
		queue:   make(chan *domain.Order, queueSize),
		logger:  logger,
		timeout: DefaultWriteTimeout,
	}
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

// PublishOrderCompleted enqueues the order without blocking.
func (d *Dispatcher) PublishOrderCompleted(ctx context.Context, order *domain.Order) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- order:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) workerLoop(id int) {
	for order := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)

		if err := d.next.PublishOrderCompleted(ctx, order); err != nil {
			d.logger.Error("failed to publish order event", "worker", id, "order_id", order.ID, "error", err)
		} else {
			d.logger.Debug("published order event", "worker", id, "order_id", order.ID)
		}

		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

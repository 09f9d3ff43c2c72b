package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tiendapos/backend/internal/domain"
)

// Notifier fans out new public orders to open admin sessions. Delivery is
// best-effort: slow subscribers drop notifications.
type Notifier interface {
	Publish(ctx context.Context, n domain.OrderNotification) error
	Subscribe(ctx context.Context) (<-chan domain.OrderNotification, func(), error)
}

const subscriberBuffer = 16

// Broker is the in-process Notifier used when Redis is not configured.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.OrderNotification
	logger *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{subs: map[int]chan domain.OrderNotification{}, logger: logger.Named("notify")}
}

func (b *Broker) Publish(_ context.Context, n domain.OrderNotification) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.logger.Warn("dropping order notification for slow subscriber", zap.Int("subscriber", id), zap.String("sale_id", n.SaleID))
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context) (<-chan domain.OrderNotification, func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan domain.OrderNotification, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
			close(stop)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ch, cancel, nil
}

// Subscribers reports the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

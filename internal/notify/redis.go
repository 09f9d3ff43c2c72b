package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tiendapos/backend/internal/domain"
)

// RedisBroker publishes notifications on a Redis Pub/Sub channel so every API
// instance sees orders created by any other.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, channel: channel, logger: logger.Named("notify")}
}

func (b *RedisBroker) Publish(ctx context.Context, n domain.OrderNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan domain.OrderNotification, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Receive waits for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.OrderNotification, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				b.logger.Warn("close order subscription", zap.Error(err))
			}
		})
	}

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var n domain.OrderNotification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.Warn("discarding malformed order notification", zap.Error(err))
					continue
				}
				select {
				case out <- n:
				default:
					b.logger.Warn("dropping order notification for slow subscriber", zap.String("sale_id", n.SaleID))
				}
			}
		}
	}()
	return out, cancel, nil
}

package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
)

// OutboxWakeChannel carries a pub/sub nudge whenever a notification is
// enqueued, so idle outbox workers can skip the rest of their poll sleep.
// Delivery is best-effort; the poll interval remains the correctness
// mechanism.
const OutboxWakeChannel = "outbox:wake"

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// NotifyOutbox publishes a wake-up nudge for outbox workers. Failures are
// swallowed: a missed nudge only delays delivery until the next poll.
func (r *Redis) NotifyOutbox(ctx context.Context) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Publish(ctx, OutboxWakeChannel, "1").Err()
}

// SubscribeOutbox returns a channel that receives a value whenever someone
// enqueues a notification. Callers must call the returned cancel func.
func (r *Redis) SubscribeOutbox(ctx context.Context) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)
	if r == nil || r.Client == nil {
		return wake, func() {}
	}

	sub := r.Client.Subscribe(ctx, OutboxWakeChannel)
	go func() {
		for range sub.Channel() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()
	return wake, func() { _ = sub.Close() }
}

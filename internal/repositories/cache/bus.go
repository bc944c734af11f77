package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InvalidationBus keeps per-process caches coherent across instances: every
// local invalidation is published and every instance applies what it receives.
type InvalidationBus struct {
	local   BalanceCache
	client  *redis.Client
	channel string
}

func NewInvalidationBus(local BalanceCache, client *redis.Client, channel string) *InvalidationBus {
	return &InvalidationBus{local: local, client: client, channel: channel}
}

func (b *InvalidationBus) Get(ctx context.Context, userID uint) (*Snapshot, bool, error) {
	return b.local.Get(ctx, userID)
}

func (b *InvalidationBus) Set(ctx context.Context, snap *Snapshot) error {
	return b.local.Set(ctx, snap)
}

// Invalidate applies locally first; a failed publish is logged and left to the TTL.
func (b *InvalidationBus) Invalidate(ctx context.Context, userID uint) error {
	if err := b.local.Invalidate(ctx, userID); err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, strconv.FormatUint(uint64(userID), 10)).Err(); err != nil {
		zap.L().Warn("failed to publish cache invalidation",
			zap.Uint("user_id", userID), zap.Error(err))
	}
	return nil
}

// Run applies remote invalidations until ctx is done.
func (b *InvalidationBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := strconv.ParseUint(msg.Payload, 10, 64)
			if err != nil {
				zap.L().Warn("ignoring malformed invalidation", zap.String("payload", msg.Payload))
				continue
			}
			_ = b.local.Invalidate(ctx, uint(id))
		}
	}
}

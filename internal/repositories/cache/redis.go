package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func NewRedisClient(cfg *RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// setUnlessInvalidated stores KEYS[1] only if the tombstone in KEYS[2] is
// older than the snapshot read time (ARGV[2], unix micros).
var setUnlessInvalidated = redis.NewScript(`
local inv = redis.call('GET', KEYS[2])
if inv and tonumber(inv) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// RedisBalanceCache shares snapshots between instances.
type RedisBalanceCache struct {
	svc *CacheService
	now func() time.Time
}

func NewRedisBalanceCache(svc *CacheService) *RedisBalanceCache {
	return &RedisBalanceCache{svc: svc, now: time.Now}
}

func (c *RedisBalanceCache) Get(ctx context.Context, userID uint) (*Snapshot, bool, error) {
	var snap Snapshot
	found, err := c.svc.Get(ctx, walletKey(userID), &snap)
	if err != nil || !found {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	remaining := snap.ReadAt.Add(c.svc.TTL()).Sub(c.now())
	if remaining <= 0 {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	keys := []string{walletKey(snap.UserID), tombstoneKey(snap.UserID)}
	return setUnlessInvalidated.Run(ctx, c.svc.Client(), keys,
		data, snap.ReadAt.UnixMicro(), remaining.Milliseconds()).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID uint) error {
	_, err := c.svc.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, walletKey(userID))
		pipe.Set(ctx, tombstoneKey(userID), c.now().UnixMicro(), c.svc.TTL())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate wallet cache: %w", err)
	}
	return nil
}

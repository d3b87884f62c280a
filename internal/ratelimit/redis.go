package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "arcade:ratelimit"

// RedisWindow keeps each key's window in a sorted set scored by unix millis.
// The check and the record are separate round trips, so two concurrent calls
// for the same key can both pass at max-1: the cap is best-effort.
type RedisWindow struct {
	client *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedisWindow dials url and verifies the connection.
func NewRedisWindow(url string, max int, window time.Duration) (*RedisWindow, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisWindowWithClient(client, max, window), nil
}

func NewRedisWindowWithClient(client *redis.Client, max int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, max: max, window: window, now: time.Now}
}

func (rw *RedisWindow) WithClock(now func() time.Time) *RedisWindow {
	rw.now = now
	return rw
}

func (rw *RedisWindow) Close() error { return rw.client.Close() }

func windowKey(key string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, key)
}

func (rw *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := rw.now()
	k := windowKey(key)
	cutoff := now.Add(-rw.window).UnixMilli()

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := rw.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
		card = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate window %s: %w", key, err)
	}

	count := int(card.Val())
	if count >= rw.max {
		retry := rw.window
		if zs := oldest.Val(); len(zs) > 0 {
			retry = time.UnixMilli(int64(zs[0].Score)).Add(rw.window).Sub(now)
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	_, err = rw.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
		p.PExpire(ctx, k, rw.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate window %s: %w", key, err)
	}
	return Decision{Allowed: true, Remaining: rw.max - count - 1}, nil
}

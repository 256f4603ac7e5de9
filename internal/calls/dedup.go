package calls

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 24 * time.Hour

// RedisDeduper implements recording deduplication with a SET NX keyed by the
// carrier's recording identifier. Errors surface to the caller, which treats
// them as fail-open; a dropped dedup is a rerun detection, not a lost call.
type RedisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper creates a redis-backed recording deduper.
func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Acquire(ctx context.Context, recordingID string) (bool, error) {
	return d.client.SetNX(ctx, "calls:recording:"+recordingID, 1, dedupTTL).Result()
}

// NoopDeduper reports every delivery as first. Used when redis is not
// configured and in tests that exercise other concerns.
type NoopDeduper struct{}

func (NoopDeduper) Acquire(context.Context, string) (bool, error) {
	return true, nil
}

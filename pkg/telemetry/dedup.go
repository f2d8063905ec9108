package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// Deduper enforces per-source signal_id idempotency (spec §6, P8:
// "submitting the same telemetry signal_id twice yields exactly one
// detection path"). CheckAndMark atomically reports whether signalID is
// being seen for the first time within ttl, marking it seen either way.
type Deduper interface {
	CheckAndMark(ctx context.Context, signalID string, ttl time.Duration) (firstSeen bool, err error)
}

// RedisDeduper is the durable Deduper, backed by SETNX so the check and the
// mark are one atomic round trip across process restarts and replicas.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

func NewRedisDeduper(client *redis.Client, prefix string) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix}
}

func (d *RedisDeduper) CheckAndMark(ctx context.Context, signalID string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+signalID, 1, ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "redis dedup check failed")
	}
	return ok, nil
}

// MemoryDeduper is an in-process Deduper for tests and single-instance
// deployments that haven't wired a redis.Client.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) CheckAndMark(ctx context.Context, signalID string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if expiresAt, ok := d.seen[signalID]; ok && now.Before(expiresAt) {
		return false, nil
	}
	d.seen[signalID] = now.Add(ttl)
	return true, nil
}

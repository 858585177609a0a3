package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper reports whether a provider message id is seen for the first time.
// Release drops a claim whose processing could not be handed off.
type Deduper interface {
	FirstSeen(ctx context.Context, provider, id string) (bool, error)
	Release(ctx context.Context, provider, id string) error
}

// RedisDeduper claims ids with SET NX and a TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, provider, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, dedupeKey(provider, id), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: dedupe %s/%s: %w", provider, id, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, provider, id string) error {
	if err := d.client.Del(ctx, dedupeKey(provider, strings.TrimSpace(id))).Err(); err != nil {
		return fmt.Errorf("events: release %s/%s: %w", provider, id, err)
	}
	return nil
}

func dedupeKey(provider, id string) string {
	return fmt.Sprintf("dedupe:%s:%s", provider, id)
}

// MemoryDeduper is the single-process variant used in development.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, provider, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return true, nil
	}
	key := dedupeKey(provider, id)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, provider, id string) error {
	d.mu.Lock()
	delete(d.seen, dedupeKey(provider, strings.TrimSpace(id)))
	d.mu.Unlock()
	return nil
}

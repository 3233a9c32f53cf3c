package flagstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/flagkit/pkg/feature"
)

// snapshotKeyPrefix namespaces cache entries so the client can share a Redis
// database with other workloads.
const snapshotKeyPrefix = "flagkit:snapshot:"

// defaultSnapshotTTL bounds staleness after an administrative change when the
// mutating process fails to invalidate.
const defaultSnapshotTTL = 30 * time.Second

// CachedStore decorates a feature.Store with a Redis snapshot cache. Cache
// misses and Redis failures fall through to the wrapped store, so a cache
// outage degrades to direct reads instead of failing evaluation.
//
// Snapshots round-trip through JSON, which converts numeric flag payloads to
// float64. Evaluation is unaffected; callers comparing payload types should
// account for it.
type CachedStore struct {
	inner feature.Store
	rdb   *redis.Client
	ttl   time.Duration
}

// CachedStoreOption configures a CachedStore.
type CachedStoreOption func(*CachedStore)

// WithTTL overrides the snapshot cache TTL.
func WithTTL(ttl time.Duration) CachedStoreOption {
	return func(s *CachedStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewCachedStore wraps inner with a Redis snapshot cache.
func NewCachedStore(inner feature.Store, rdb *redis.Client, opts ...CachedStoreOption) *CachedStore {
	if inner == nil {
		panic("flagstore: inner store cannot be nil")
	}
	if rdb == nil {
		panic("flagstore: redis client cannot be nil")
	}
	s := &CachedStore{inner: inner, rdb: rdb, ttl: defaultSnapshotTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the cached snapshot for key, falling through to the
// wrapped store on miss and repopulating the cache best-effort.
func (s *CachedStore) Snapshot(ctx context.Context, key string) (*feature.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, snapshotKeyPrefix+key).Bytes()
	if err == nil {
		var snap feature.Snapshot
		if jsonErr := json.Unmarshal(raw, &snap); jsonErr == nil {
			return &snap, nil
		}
		// Corrupt entry: drop it and fall through to the source of truth.
		_ = s.rdb.Del(ctx, snapshotKeyPrefix+key).Err()
	}
	// redis.Nil and transport errors both fall through here: a cache outage
	// degrades to direct reads rather than failing evaluation.

	snap, err := s.inner.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(snap); err == nil {
		_ = s.rdb.Set(ctx, snapshotKeyPrefix+key, raw, s.ttl).Err()
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for key. Administrative mutations
// call it so evaluation picks up changes before the TTL expires.
func (s *CachedStore) Invalidate(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, snapshotKeyPrefix+key).Err()
}

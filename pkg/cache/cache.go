// Package cache memoizes deterministic calculations by input fingerprint.
//
// Entries live in a capacity-bound LRU with a TTL. Concurrent requests for
// the same fingerprint share one computation, and an optional remote store
// lets several processes share results. The remote tier is an optimization:
// its failures are logged and otherwise ignored.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a computed result stays valid.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxEntries bounds the in-process entry count.
	DefaultMaxEntries = 1024
)

// RemoteStore is a shared second-level store keyed by fingerprint.
type RemoteStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	Remote     RemoteStore
	Now        func() time.Time
	Logger     *zap.Logger
}

// Entry is a stored calculation result.
type Entry[T any] struct {
	Fingerprint string    `json:"fingerprint"`
	Result      T         `json:"result"`
	ComputedAt  time.Time `json:"computedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
}

// Cache memoizes results of type T.
type Cache[T any] struct {
	entries *expirable.LRU[string, Entry[T]]
	group   singleflight.Group
	ttl     time.Duration
	remote  RemoteStore
	now     func() time.Time
	logger  *zap.Logger

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
}

// New creates a cache.
func New[T any](opts Options) *Cache[T] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache[T]{
		entries: expirable.NewLRU[string, Entry[T]](opts.MaxEntries, nil, opts.TTL),
		ttl:     opts.TTL,
		remote:  opts.Remote,
		now:     opts.Now,
		logger:  opts.Logger,
	}
}

// GetOrCompute returns the stored result for fingerprint when it is still
// valid, otherwise runs compute once for all concurrent callers. Results are
// stored only when compute succeeds. The boolean reports a cache hit.
func (c *Cache[T]) GetOrCompute(ctx context.Context, fingerprint string, compute func(context.Context) (T, error)) (T, bool, error) {
	if entry, ok := c.lookup(fingerprint); ok {
		c.hits.Add(1)
		return entry.Result, true, nil
	}
	c.misses.Add(1)

	type outcome struct {
		entry Entry[T]
		hit   bool
	}
	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		if entry, ok := c.lookup(fingerprint); ok {
			return outcome{entry: entry, hit: true}, nil
		}
		if entry, ok := c.fetchRemote(ctx, fingerprint); ok {
			c.entries.Add(fingerprint, entry)
			return outcome{entry: entry, hit: true}, nil
		}

		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.computations.Add(1)
		now := c.now()
		entry := Entry[T]{
			Fingerprint: fingerprint,
			Result:      result,
			ComputedAt:  now,
			ExpiresAt:   now.Add(c.ttl),
		}
		c.entries.Add(fingerprint, entry)
		c.storeRemote(ctx, entry)
		return outcome{entry: entry}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	out := v.(outcome)
	return out.entry.Result, out.hit, nil
}

// Lookup returns a still-valid entry without computing.
func (c *Cache[T]) Lookup(fingerprint string) (Entry[T], bool) {
	return c.lookup(fingerprint)
}

// Len reports the number of in-process entries.
func (c *Cache[T]) Len() int {
	return c.entries.Len()
}

// Purge drops every in-process entry.
func (c *Cache[T]) Purge() {
	c.entries.Purge()
}

// Stats returns the activity counters.
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
	}
}

func (c *Cache[T]) lookup(fingerprint string) (Entry[T], bool) {
	entry, ok := c.entries.Get(fingerprint)
	if !ok {
		return Entry[T]{}, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		c.entries.Remove(fingerprint)
		return Entry[T]{}, false
	}
	return entry, true
}

func (c *Cache[T]) fetchRemote(ctx context.Context, fingerprint string) (Entry[T], bool) {
	if c.remote == nil {
		return Entry[T]{}, false
	}
	raw, found, err := c.remote.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("remote cache read failed",
			zap.String("op", "cache.GetOrCompute"),
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return Entry[T]{}, false
	}
	if !found {
		return Entry[T]{}, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("discarding undecodable remote cache entry",
			zap.String("op", "cache.GetOrCompute"),
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return Entry[T]{}, false
	}
	if entry.Fingerprint != fingerprint || !c.now().Before(entry.ExpiresAt) {
		return Entry[T]{}, false
	}
	return entry, true
}

func (c *Cache[T]) storeRemote(ctx context.Context, entry Entry[T]) {
	if c.remote == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err == nil {
		err = c.remote.Set(ctx, entry.Fingerprint, raw, c.ttl)
	}
	if err != nil {
		c.logger.Warn("remote cache write failed",
			zap.String("op", "cache.GetOrCompute"),
			zap.String("fingerprint", entry.Fingerprint),
			zap.Error(fmt.Errorf("store entry: %w", err)),
		)
	}
}

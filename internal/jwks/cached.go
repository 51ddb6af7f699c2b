package jwks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jamestelfer/casting-gate/internal/failure"
	"github.com/maypok86/otter"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache holds key sets for any number of issuers, keyed by the key set URL.
// Reads do not lock. A refresh happens only when an entry is missing (expired
// or invalidated) and concurrent refreshes for the same key share a single
// fetch.
type Cache struct {
	entries    otter.Cache[string, KeySet]
	fetches    singleflight.Group
	minRefresh time.Duration
}

// NewCache creates a cache whose entries live for ttl. A forced refresh via
// Invalidate is refused if the entry was fetched less than minRefresh ago, so
// a stream of tokens with unknown key IDs cannot turn into a stream of
// fetches.
func NewCache(ttl, minRefresh time.Duration) (*Cache, error) {
	entries, err := otter.
		MustBuilder[string, KeySet](1_000).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	return &Cache{
		entries:    entries,
		minRefresh: minRefresh,
	}, nil
}

// Stats reports lookups across all entries. A low hit ratio means key sets
// are being refetched often: the TTL is short or tokens carry unknown key IDs.
func (c *Cache) Stats() otter.Stats {
	return c.entries.Stats()
}

// Source wraps source so its key set is cached under key.
func (c *Cache) Source(key string, source Source) *CachedSource {
	return &CachedSource{
		cache:  c,
		key:    key,
		source: source,
		now:    time.Now,
	}
}

// CachedSource is a Source backed by a Cache entry.
type CachedSource struct {
	cache  *Cache
	key    string
	source Source

	// unix nanoseconds of the last successful fetch
	lastFetch atomic.Int64
	now       func() time.Time
}

var (
	_ Source      = (*CachedSource)(nil)
	_ Invalidator = (*CachedSource)(nil)
)

func (s *CachedSource) KeySet(ctx context.Context) (KeySet, error) {
	if ks, ok := s.cache.entries.Get(s.key); ok {
		return ks, nil
	}

	return s.refresh(ctx)
}

// refresh fetches the key set once for all concurrent callers. The shared
// fetch is detached from the caller's cancellation so that one abandoned
// request does not fail the others waiting on it; the wrapped source is
// expected to bound the fetch with its own timeout. A caller whose context
// ends first stops waiting and gets a failure.
func (s *CachedSource) refresh(ctx context.Context) (KeySet, error) {
	fetchCtx := context.WithoutCancel(ctx)

	ch := s.cache.fetches.DoChan(s.key, func() (any, error) {
		ks, err := s.source.KeySet(fetchCtx)
		if err != nil {
			return KeySet{}, err
		}

		s.cache.entries.Set(s.key, ks)
		s.lastFetch.Store(s.now().UnixNano())

		zerolog.Ctx(fetchCtx).Debug().
			Str("key", s.key).
			Int("keys", len(ks.Keys)).
			Float64("hitRatio", s.cache.Stats().Ratio()).
			Msg("miss: key set cached")

		return ks, nil
	})

	select {
	case <-ctx.Done():
		return KeySet{}, failure.Wrap(failure.KeySourceUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return KeySet{}, res.Err
		}
		return res.Val.(KeySet), nil
	}
}

// Invalidate drops the cached key set so that the next call fetches again,
// unless the current entry is younger than the minimum refresh interval.
// Invalidation is passed on to the wrapped source if it also holds keys.
func (s *CachedSource) Invalidate(ctx context.Context) bool {
	last := time.Unix(0, s.lastFetch.Load())
	if age := s.now().Sub(last); age < s.cache.minRefresh {
		zerolog.Ctx(ctx).Debug().Str("key", s.key).Dur("age", age).Msg("invalidate refused: key set recently fetched")
		return false
	}

	s.cache.entries.Delete(s.key)

	if inv, ok := s.source.(Invalidator); ok {
		inv.Invalidate(ctx)
	}

	zerolog.Ctx(ctx).Info().Str("key", s.key).Msg("invalidated: key set will be fetched on next use")

	return true
}

package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"agent-pricing-engine/internal/observability"
)

// ErrUnavailable means no snapshot exists at all: the initial fetch failed
// and no persisted fallback could be loaded. Every other failure mode keeps
// serving the previous snapshot.
var ErrUnavailable = errors.New("catalog unavailable")

// SnapshotStore persists the last good snapshot so a cold start can serve
// data even when the upstream is down.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

// Status describes cache freshness for health reporting.
type Status struct {
	AsOf        time.Time `json:"as_of"`
	Degraded    bool      `json:"degraded"`
	LastError   string    `json:"last_error,omitempty"`
	LastRefresh time.Time `json:"last_refresh"`
}

// Cache holds the current catalog snapshot. Reads are lock-free; a refresh
// builds the replacement off to the side and swaps it in atomically, so a
// failed refresh never degrades an in-flight read.
type Cache struct {
	src   Source
	store SnapshotStore // optional
	ttl   time.Duration

	snap  atomic.Value // Snapshot
	group singleflight.Group

	mu          sync.Mutex
	degraded    bool
	lastErr     error
	lastRefresh time.Time
}

func NewCache(src Source, store SnapshotStore, ttl time.Duration) *Cache {
	return &Cache{src: src, store: store, ttl: ttl}
}

// Get returns the current snapshot and cache status. ErrUnavailable is
// returned only when no snapshot has ever been installed.
func (c *Cache) Get() (Snapshot, Status, error) {
	st := c.status()
	v := c.snap.Load()
	if v == nil {
		return Snapshot{}, st, ErrUnavailable
	}
	return v.(Snapshot), st, nil
}

// Refresh fetches a new snapshot and installs it. Concurrent callers
// collapse into a single upstream fetch. On failure the prior snapshot
// stays in place and the cache is marked degraded.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Cache) refresh(ctx context.Context) error {
	started := time.Now()

	products, err := c.src.FetchProducts(ctx)
	if err == nil {
		var discounts []Discount
		discounts, err = c.src.FetchDiscounts(ctx)
		if err == nil {
			snap := NewSnapshot(products, discounts, time.Now())
			c.install(snap)
			c.setHealthy()
			observability.CatalogRefreshes.WithLabelValues("ok").Inc()
			log.Info().
				Int("products", len(products)).
				Int("discounts", len(discounts)).
				Dur("took", time.Since(started)).
				Msg("catalog snapshot refreshed")

			if c.store != nil {
				if saveErr := c.store.Save(ctx, snap); saveErr != nil {
					log.Warn().Err(saveErr).Msg("persist catalog snapshot")
				}
			}
			return nil
		}
	}

	c.setDegraded(err)
	observability.CatalogRefreshes.WithLabelValues("error").Inc()
	log.Error().Err(err).Msg("catalog refresh failed, serving stale snapshot")
	return err
}

// Warm performs the initial load. If the upstream fetch fails it falls back
// to the persisted snapshot; only when both are absent does the cache start
// empty (and Get reports ErrUnavailable until a refresh succeeds).
func (c *Cache) Warm(ctx context.Context) error {
	if err := c.Refresh(ctx); err == nil {
		return nil
	}
	if c.store == nil {
		return ErrUnavailable
	}
	snap, err := c.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load persisted catalog snapshot")
		return ErrUnavailable
	}
	if snap.Empty() {
		return ErrUnavailable
	}
	c.install(snap)
	c.setDegraded(errors.New("serving persisted snapshot, upstream fetch failed"))
	log.Warn().Time("as_of", snap.AsOf).Msg("cold start from persisted catalog snapshot")
	return nil
}

// Run refreshes on a TTL until the context is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("catalog refresher stopped")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled catalog refresh")
			}
		}
	}
}

func (c *Cache) install(snap Snapshot) {
	c.snap.Store(snap)
	observability.CatalogAsOf.Set(float64(snap.AsOf.Unix()))
}

func (c *Cache) setHealthy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degraded = false
	c.lastErr = nil
	c.lastRefresh = time.Now()
}

func (c *Cache) setDegraded(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degraded = true
	c.lastErr = err
	c.lastRefresh = time.Now()
}

func (c *Cache) status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Degraded: c.degraded, LastRefresh: c.lastRefresh}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if v := c.snap.Load(); v != nil {
		st.AsOf = v.(Snapshot).AsOf
	}
	return st
}

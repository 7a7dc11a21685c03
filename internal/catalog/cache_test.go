package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	products  []Product
	discounts []Discount
	err       error
	calls     int32
	delay     time.Duration
}

func (f *fakeSource) FetchProducts(ctx context.Context) ([]Product, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *fakeSource) FetchDiscounts(ctx context.Context) ([]Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.discounts, nil
}

func (f *fakeSource) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestCache_ColdStartUnavailable(t *testing.T) {
	c := NewCache(&fakeSource{err: errors.New("upstream down")}, nil, time.Minute)

	_, _, err := c.Get()
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Error(t, c.Refresh(context.Background()))
	_, st, err := c.Get()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, st.Degraded)
}

func TestCache_RefreshInstallsSnapshot(t *testing.T) {
	src := &fakeSource{
		products:  []Product{{ID: 1, Title: "Widget", Price: 9.99}},
		discounts: []Discount{{ID: 10, Code: "SAVE", ValueType: ValueTypePercentage, Value: 10}},
	}
	c := NewCache(src, nil, time.Minute)

	require.NoError(t, c.Refresh(context.Background()))

	snap, st, err := c.Get()
	require.NoError(t, err)
	assert.False(t, st.Degraded)
	assert.Len(t, snap.Products, 1)
	assert.Len(t, snap.Discounts, 1)
	assert.False(t, snap.AsOf.IsZero())

	p, ok := snap.Product(1)
	require.True(t, ok)
	assert.Equal(t, "Widget", p.Title)
}

func TestCache_FailedRefreshServesStaleWithDegradedFlag(t *testing.T) {
	src := &fakeSource{products: []Product{{ID: 1, Price: 5}}}
	c := NewCache(src, nil, time.Minute)
	require.NoError(t, c.Refresh(context.Background()))

	before, _, err := c.Get()
	require.NoError(t, err)

	src.setError(errors.New("rate limited"))
	assert.Error(t, c.Refresh(context.Background()))

	after, st, err := c.Get()
	require.NoError(t, err)
	assert.Equal(t, before.AsOf, after.AsOf, "prior snapshot must survive unchanged")
	assert.Equal(t, before.Products, after.Products)
	assert.True(t, st.Degraded)
	assert.Contains(t, st.LastError, "rate limited")

	// recovery clears the flag
	src.setError(nil)
	require.NoError(t, c.Refresh(context.Background()))
	_, st, _ = c.Get()
	assert.False(t, st.Degraded)
}

func TestCache_ConcurrentRefreshesCollapse(t *testing.T) {
	src := &fakeSource{products: []Product{{ID: 1}}, delay: 50 * time.Millisecond}
	c := NewCache(src, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Refresh(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "concurrent refreshes must share one upstream fetch")
}

type fakeSnapshotStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saved bool
	err   error
}

func (f *fakeSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snap = snap
	f.saved = true
	return nil
}

func (f *fakeSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.saved {
		return Snapshot{}, errors.New("no snapshot")
	}
	return f.snap, f.err
}

func TestCache_WarmFallsBackToPersistedSnapshot(t *testing.T) {
	persisted := NewSnapshot([]Product{{ID: 7, Title: "Saved", Price: 1}}, nil, time.Now().Add(-time.Hour))
	store := &fakeSnapshotStore{snap: persisted, saved: true}

	c := NewCache(&fakeSource{err: errors.New("upstream down")}, store, time.Minute)
	require.NoError(t, c.Warm(context.Background()))

	snap, st, err := c.Get()
	require.NoError(t, err)
	assert.True(t, st.Degraded)
	_, ok := snap.Product(7)
	assert.True(t, ok)
}

func TestCache_WarmPersistsSuccessfulFetch(t *testing.T) {
	store := &fakeSnapshotStore{}
	src := &fakeSource{products: []Product{{ID: 1}}}

	c := NewCache(src, store, time.Minute)
	require.NoError(t, c.Warm(context.Background()))
	assert.True(t, store.saved)
}

func TestCache_WarmColdStartWithNothing(t *testing.T) {
	c := NewCache(&fakeSource{err: errors.New("down")}, &fakeSnapshotStore{}, time.Minute)
	assert.ErrorIs(t, c.Warm(context.Background()), ErrUnavailable)
}

package ingv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingSource struct {
	calls  int
	result []domain.Feature
	err    error
}

func (m *countingSource) Query(_ context.Context, _ Query) ([]domain.Feature, error) {
	m.calls++
	return m.result, m.err
}

func quake(id string) domain.Feature {
	return domain.Feature{
		Type:       "Feature",
		Geometry:   &domain.Geometry{Type: "Point", Coordinates: []any{14.1, 40.8, 2.0}},
		Properties: map[string]any{"eventId": id, "mag": 2.5},
	}
}

var testQuery = Query{
	Start:  time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
	End:    time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC),
	MinMag: 2,
}

// --- CachedSource tests ---

func TestCachedSource_CacheHit(t *testing.T) {
	inner := &countingSource{result: []domain.Feature{quake("a")}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSource(inner, 10, time.Minute, clockwork.NewFakeClock(), metrics)

	r1, err := cached.Query(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Len(t, r1, 1)

	r2, err := cached.Query(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Len(t, r2, 1)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedCache.WithLabelValues("hit")))
}

func TestCachedSource_EntryExpires(t *testing.T) {
	inner := &countingSource{result: []domain.Feature{quake("a")}}
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSource(inner, 10, time.Minute, clock, metrics)

	_, err := cached.Query(context.Background(), testQuery)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = cached.Query(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	clock.Advance(time.Second)
	_, err = cached.Query(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedCache.WithLabelValues("expired")))
}

func TestCachedSource_EmptyResultNotCached(t *testing.T) {
	inner := &countingSource{result: []domain.Feature{}}
	cached := NewCachedSource(inner, 10, time.Minute, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, _ = cached.Query(context.Background(), testQuery)
	_, _ = cached.Query(context.Background(), testQuery)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedSource_ErrorNotCached(t *testing.T) {
	inner := &countingSource{err: errors.New("boom")}
	cached := NewCachedSource(inner, 10, time.Minute, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, err := cached.Query(context.Background(), testQuery)
	require.Error(t, err)
	_, err = cached.Query(context.Background(), testQuery)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedSource_DifferentQueriesMiss(t *testing.T) {
	inner := &countingSource{result: []domain.Feature{quake("a")}}
	cached := NewCachedSource(inner, 10, time.Minute, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, _ = cached.Query(context.Background(), testQuery)
	other := testQuery
	other.MinMag = 4
	_, _ = cached.Query(context.Background(), other)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedSource_SameMinuteSharesEntry(t *testing.T) {
	inner := &countingSource{result: []domain.Feature{quake("a")}}
	cached := NewCachedSource(inner, 10, time.Minute, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, _ = cached.Query(context.Background(), testQuery)
	later := testQuery
	later.End = later.End.Add(30 * time.Second)
	_, _ = cached.Query(context.Background(), later)

	assert.Equal(t, 1, inner.calls)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3, time.Minute, clockwork.NewFakeClock())

	c.put("a", []domain.Feature{quake("A")})
	c.put("b", []domain.Feature{quake("B")})

	result, status := c.get("a")
	assert.Equal(t, cacheHit, status)
	assert.Equal(t, "A", result[0].Properties["eventId"])

	_, status = c.get("missing")
	assert.Equal(t, cacheMiss, status)
	assert.Equal(t, 2, c.count())
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2, time.Minute, clockwork.NewFakeClock())

	c.put("a", []domain.Feature{quake("A")})
	c.put("b", []domain.Feature{quake("B")})
	c.put("c", []domain.Feature{quake("C")}) // evicts "a"

	_, status := c.get("a")
	assert.Equal(t, cacheMiss, status, "a should have been evicted")

	_, status = c.get("b")
	assert.Equal(t, cacheHit, status)
	_, status = c.get("c")
	assert.Equal(t, cacheHit, status)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2, time.Minute, clockwork.NewFakeClock())

	c.put("a", []domain.Feature{quake("A")})
	c.put("b", []domain.Feature{quake("B")})

	c.get("a")
	c.put("c", []domain.Feature{quake("C")})

	_, status := c.get("a")
	assert.Equal(t, cacheHit, status, "a was accessed recently, should not be evicted")
	_, status = c.get("b")
	assert.Equal(t, cacheMiss, status, "b should have been evicted")
}

func TestLRUCache_UpdateRefreshesTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newLRUCache(2, time.Minute, clock)

	c.put("a", []domain.Feature{quake("A1")})
	clock.Advance(50 * time.Second)
	c.put("a", []domain.Feature{quake("A2")})
	clock.Advance(50 * time.Second)

	result, status := c.get("a")
	assert.Equal(t, cacheHit, status)
	assert.Equal(t, "A2", result[0].Properties["eventId"])
}

func TestLRUCache_ExpiredEntryRemoved(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newLRUCache(2, time.Minute, clock)

	c.put("a", []domain.Feature{quake("A")})
	clock.Advance(time.Minute)

	_, status := c.get("a")
	assert.Equal(t, cacheExpired, status)
	assert.Equal(t, 0, c.count())

	_, status = c.get("a")
	assert.Equal(t, cacheMiss, status)
}

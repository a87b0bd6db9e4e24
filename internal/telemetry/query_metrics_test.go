package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
	zero   []string
	fail   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counts: make(map[string]int64)}
}

func (s *memoryStore) AddQueryCounts(_ context.Context, _ string, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for k, v := range counts {
		s.counts[k] += v
	}
	return nil
}

func (s *memoryStore) AddZeroResultQueries(_ context.Context, events []QueryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, e := range events {
		s.zero = append(s.zero, e.Query)
	}
	return nil
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{120 * time.Millisecond, BucketP250},
		{800 * time.Millisecond, BucketP1000},
		{3 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"miso", "soup", "recipe"}, ExtractTerms(`"Miso soup" recipe, ok`))
	assert.Nil(t, ExtractTerms("  "))
}

func TestQueryMetrics_RecordAndSnapshot(t *testing.T) {
	// Given: a memory-only collector
	m := New(nil, Config{FlushInterval: 0})
	defer m.Close()

	// When: recording a mix of queries
	m.Record(QueryEvent{Query: "tokyo flights", Type: QueryTypeSemantic, ResultCount: 3, Latency: 40 * time.Millisecond})
	m.Record(QueryEvent{Query: "Tokyo Flights", Type: QueryTypeSemantic, ResultCount: 2, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "nothing", Type: QueryTypeExact, ResultCount: 0, Latency: time.Millisecond})

	// Then: counts, terms, repeats and zero results are tracked
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.QueryTypeCounts[QueryTypeSemantic])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[QueryTypeExact])
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.RepeatCount)
	assert.Equal(t, []string{"nothing"}, snap.ZeroResultQueries)
	assert.InDelta(t, 33.3, snap.ZeroResultPercentage(), 0.1)

	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "flights", Count: 2}, snap.TopTerms[0])
	assert.Equal(t, TermCount{Term: "tokyo", Count: 2}, snap.TopTerms[1])
}

func TestQueryMetrics_ZeroResultsKeepNewest(t *testing.T) {
	m := New(nil, Config{ZeroResultsCapacity: 2})
	defer m.Close()

	for _, q := range []string{"a1", "b2", "c3"} {
		m.Record(QueryEvent{Query: q, Type: QueryTypeExact})
	}

	assert.Equal(t, []string{"b2", "c3"}, m.Snapshot().ZeroResultQueries)
}

func TestQueryMetrics_FlushWritesDeltasOnce(t *testing.T) {
	store := newMemoryStore()
	m := New(store, Config{FlushInterval: 0})

	m.Record(QueryEvent{Query: "soup", Type: QueryTypeSemantic, ResultCount: 0, Latency: time.Millisecond})
	require.NoError(t, m.Flush(context.Background()))
	require.NoError(t, m.Flush(context.Background()))

	assert.Equal(t, int64(1), store.counts["type:semantic"])
	assert.Equal(t, int64(1), store.counts["latency:p10"])
	assert.Equal(t, int64(1), store.counts["zero_results"])
	assert.Equal(t, []string{"soup"}, store.zero)

	m.Record(QueryEvent{Query: "soup", Type: QueryTypeSemantic, ResultCount: 1})
	require.NoError(t, m.Close())
	assert.Equal(t, int64(2), store.counts["type:semantic"])
}

func TestQueryMetrics_FailedFlushIsRetried(t *testing.T) {
	store := newMemoryStore()
	store.fail = errors.New("disk full")
	m := New(store, Config{FlushInterval: 0})

	m.Record(QueryEvent{Query: "trip", Type: QueryTypeExact, ResultCount: 1})
	assert.Error(t, m.Flush(context.Background()))

	store.fail = nil
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, int64(1), store.counts["type:exact"])
}

func TestQueryMetrics_RecordAfterCloseIsIgnored(t *testing.T) {
	m := New(nil, Config{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late", Type: QueryTypeExact})
	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_PeriodicFlush(t *testing.T) {
	store := newMemoryStore()
	m := New(store, Config{FlushInterval: 10 * time.Millisecond})
	defer m.Close()

	m.Record(QueryEvent{Query: "periodic", Type: QueryTypeSemantic, ResultCount: 1})

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.counts["type:semantic"] == 1
	}, time.Second, 10*time.Millisecond)
}

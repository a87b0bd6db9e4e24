// Package telemetry records local query statistics: how often each query
// kind is used, how long searches take, which terms come up, and which
// queries find nothing. Nothing leaves the machine.
package telemetry

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType is the kind of a recorded query.
type QueryType string

const (
	QueryTypeSemantic QueryType = "semantic"
	QueryTypeExact    QueryType = "exact"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

// Semantic queries include the provider round trip, so the upper buckets
// are wider than a pure in-memory search would need.
const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP250  LatencyBucket = "p250"  // 50-250ms
	BucketP1000 LatencyBucket = "p1000" // 250ms-1s
	BucketSlow  LatencyBucket = "slow"  // >=1s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 250:
		return BucketP250
	case ms < 1000:
		return BucketP1000
	default:
		return BucketSlow
	}
}

// QueryEvent is one answered search.
type QueryEvent struct {
	Query       string
	Type        QueryType
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ExtractTerms lowercases query and returns its words of three or more
// runes, with surrounding quotes and punctuation trimmed.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'.,;:!?()[]{}`)
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the in-process metrics.
type Snapshot struct {
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	RepeatCount         int64                   `json:"repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Store persists metric deltas. Counts are added to what is already
// stored for the day, so several processes can share one store.
type Store interface {
	AddQueryCounts(ctx context.Context, date string, counts map[string]int64) error
	AddZeroResultQueries(ctx context.Context, queries []QueryEvent) error
}

// Config configures a QueryMetrics collector.
type Config struct {
	TopTermsCapacity    int           // default 100
	ZeroResultsCapacity int           // default 50
	RecentQueries       int           // window for repeat detection, default 500
	FlushInterval       time.Duration // 0 disables periodic flushing
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 50,
		RecentQueries:       500,
		FlushInterval:       time.Minute,
	}
}

// QueryMetrics aggregates query events in memory and periodically flushes
// the counts accumulated since the last flush to a Store.
// It is safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	queryTypes      map[QueryType]int64
	latencies       map[LatencyBucket]int64
	topTerms        *lru.Cache[string, int64]
	recent          *lru.Cache[string, struct{}]
	zeroResults     *ring[string]
	totalQueries    int64
	zeroResultCount int64
	repeatCount     int64
	startTime       time.Time

	// pending holds deltas not yet flushed.
	pendingCounts map[string]int64
	pendingZero   []QueryEvent

	store  Store
	stopCh chan struct{}
	done   chan struct{}
	closed bool
}

// New creates a collector. If store is nil, metrics stay in memory.
func New(store Store, cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueries <= 0 {
		cfg.RecentQueries = def.RecentQueries
	}

	// lru.New only fails for non-positive sizes.
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueries)

	m := &QueryMetrics{
		queryTypes:    make(map[QueryType]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		recent:        recent,
		zeroResults:   newRing[string](cfg.ZeroResultsCapacity),
		startTime:     time.Now(),
		pendingCounts: make(map[string]int64),
		store:         store,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}

	if store != nil && cfg.FlushInterval > 0 {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Flush(context.Background()); err != nil {
				slog.Warn("query_metrics_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one answered query.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	normalized := strings.ToLower(strings.TrimSpace(event.Query))
	bucket := LatencyToBucket(event.Latency)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.totalQueries++
	m.queryTypes[event.Type]++
	m.latencies[bucket]++
	m.pendingCounts["type:"+string(event.Type)]++
	m.pendingCounts["latency:"+string(bucket)]++

	for _, term := range ExtractTerms(normalized) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if _, seen := m.recent.Get(normalized); seen {
		m.repeatCount++
	}
	m.recent.Add(normalized, struct{}{})

	if event.IsZeroResult() {
		m.zeroResultCount++
		m.pendingCounts["zero_results"]++
		m.zeroResults.add(event.Query)
		m.pendingZero = append(m.pendingZero, event)
	}
}

// Snapshot returns the metrics recorded by this process.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortStableFunc(terms, func(a, b TermCount) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		default:
			return strings.Compare(a.Term, b.Term)
		}
	})

	types := make(map[QueryType]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		types[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &Snapshot{
		QueryTypeCounts:     types,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.items(),
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		RepeatCount:         m.repeatCount,
		Since:               m.startTime,
	}
}

// Flush writes the deltas recorded since the previous flush. On failure the
// deltas are kept for the next attempt.
func (m *QueryMetrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	counts, zero := m.pendingCounts, m.pendingZero
	m.pendingCounts, m.pendingZero = make(map[string]int64), nil
	m.mu.Unlock()

	if len(counts) == 0 && len(zero) == 0 {
		return nil
	}

	today := time.Now().Format(time.DateOnly)
	err := m.store.AddQueryCounts(ctx, today, counts)
	if err == nil && len(zero) > 0 {
		err = m.store.AddZeroResultQueries(ctx, zero)
		if err != nil {
			counts = nil // already written
		}
	}
	if err != nil {
		m.restore(counts, zero)
		return err
	}
	return nil
}

func (m *QueryMetrics) restore(counts map[string]int64, zero []QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range counts {
		m.pendingCounts[k] += v
	}
	m.pendingZero = append(zero, m.pendingZero...)
}

// Close stops periodic flushing and flushes what is pending.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.done
	return m.Flush(context.Background())
}

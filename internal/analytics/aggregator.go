package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/kafka"
)

const (
	latencyWindow = 10000
	topQueryCount = 10
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalAsks         int64        `json:"total_asks"`
	OffTopicAsks      int64        `json:"off_topic_asks"`
	FailedRequests    int64        `json:"failed_requests"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	Rebuilds          int64        `json:"rebuilds"`
	LastGeneration    uint64       `json:"last_generation"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Since             time.Time    `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running totals. Query counts are keyed by the
// query text as typed; latencies keep the most recent window only.
type Aggregator struct {
	mu                sync.Mutex
	stats             AggregatedStats
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	now := time.Now()
	return &Aggregator{
		stats:             AggregatedStats{Since: now.UTC()},
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Publish records a batch directly, so the aggregator can serve as the
// collector's sink when Kafka is disabled.
func (a *Aggregator) Publish(_ context.Context, events []kafka.Event) error {
	for _, ev := range events {
		e, ok := ev.Value.(Event)
		if !ok {
			return fmt.Errorf("unexpected analytics value %T", ev.Value)
		}
		a.Record(e)
	}
	return nil
}

// HandleMessage is the Kafka consumer callback. Undecodable messages are
// logged and skipped so they do not block the partition.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	e, err := kafka.DecodeJSON[Event](value)
	if err != nil {
		a.logger.Error("skipping undecodable analytics event", "error", err)
		return nil
	}
	a.Record(e)
	return nil
}

func (a *Aggregator) Record(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e.Type {
	case EventRebuild:
		a.stats.Rebuilds++
		if e.Generation > a.stats.LastGeneration {
			a.stats.LastGeneration = e.Generation
		}
		return
	case EventSearch:
		a.stats.TotalSearches++
	case EventAsk:
		a.stats.TotalAsks++
	default:
		a.logger.Debug("ignoring analytics event", "type", e.Type)
		return
	}

	switch e.Outcome {
	case OutcomeOffTopic:
		a.stats.OffTopicAsks++
		return
	case OutcomeError, OutcomeInvalid:
		a.stats.FailedRequests++
		return
	}

	if e.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	a.recordLatency(e.LatencyMs)
	if e.Query != "" {
		a.queryCounts[e.Query]++
	}
	if e.ZeroResult() {
		a.stats.ZeroResultCount++
		a.zeroResultQueries[e.Query]++
	}
}

func (a *Aggregator) recordLatency(ms int64) {
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.next] = ms
	a.next = (a.next + 1) % latencyWindow
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	stats := a.stats
	sorted := make([]int64, len(a.latencies))
	copy(sorted, a.latencies)
	stats.TopQueries = topN(a.queryCounts, topQueryCount)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueryCount)
	a.mu.Unlock()

	if len(sorted) > 0 {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches+stats.TotalAsks) / elapsed
	}
	return stats
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Snapshot is a persisted copy of AggregatedStats.
type Snapshot struct {
	ID         int64           `json:"id"`
	CapturedAt time.Time       `json:"captured_at"`
	Stats      AggregatedStats `json:"stats"`
}

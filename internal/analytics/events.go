// Package analytics records what users ask the search service. Events flow
// from a non-blocking Collector to a Sink: Kafka when configured, otherwise
// the in-process Aggregator that serves /api/v1/analytics.
package analytics

import "time"

type EventType string

const (
	EventSearch  EventType = "search"
	EventAsk     EventType = "ask"
	EventRebuild EventType = "rebuild"
)

// Outcome of a search or ask request.
const (
	OutcomeOK       = "ok"
	OutcomeOffTopic = "off_topic"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Event is the single wire shape for every event type. Fields that do not
// apply to a type are left zero.
type Event struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query,omitempty"`
	Terms      []string  `json:"terms,omitempty"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Outcome    string    `json:"outcome,omitempty"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ZeroResult reports whether a successful search or ask matched nothing.
func (e Event) ZeroResult() bool {
	return (e.Type == EventSearch || e.Type == EventAsk) && e.Outcome == OutcomeOK && e.TotalHits == 0
}

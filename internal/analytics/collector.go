package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/kafka"
)

// Sink receives batches of events. *kafka.Producer and *Aggregator both
// implement it.
type Sink interface {
	Publish(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events from request handlers and hands them to a Sink in
// batches, flushing when a batch fills or the flush interval passes. Track
// never blocks: when the buffer is full the event is dropped and counted.
type Collector struct {
	sink          Sink
	events        chan Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped   atomic.Int64
	published atomic.Int64
}

func NewCollector(sink Sink, cfg config.AnalyticsConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Collector{
		sink:          sink,
		events:        make(chan Event, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the batching loop until ctx is cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.events),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	pending := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		pending = c.flush(ctx, pending)
	}
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				c.finalFlush(pending)
				return
			}
			pending = append(pending, kafka.Event{Key: string(e.Type), Value: e})
			if len(pending) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case e, ok := <-c.events:
					if !ok {
						break drain
					}
					pending = append(pending, kafka.Event{Key: string(e.Type), Value: e})
				default:
					break drain
				}
			}
			c.finalFlush(pending)
			return
		}
	}
}

func (c *Collector) finalFlush(pending []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, pending); len(rest) > 0 {
		c.logger.Warn("analytics events lost on shutdown", "count", len(rest))
	}
}

// flush publishes pending and returns what is left to retry. Failed batches
// are kept up to three batch sizes; older events beyond that are dropped.
func (c *Collector) flush(ctx context.Context, pending []kafka.Event) []kafka.Event {
	if len(pending) == 0 {
		return pending
	}
	if err := c.sink.Publish(ctx, pending); err != nil {
		c.logger.Error("analytics flush failed", "events", len(pending), "error", err)
		if limit := c.batchSize * 3; len(pending) > limit {
			c.dropped.Add(int64(len(pending) - limit))
			pending = append(pending[:0], pending[len(pending)-limit:]...)
		}
		return pending
	}
	c.published.Add(int64(len(pending)))
	return pending[:0]
}

// Track queues e for publishing, stamping it with the current time if unset.
func (c *Collector) Track(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.events <- e:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Close stops accepting events and waits for the last flush. Start must have
// been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) Published() int64 {
	return c.published.Load()
}

// Package publisher writes program batches to the SQL corpus and announces
// the change on Kafka so searchers rebuild their index.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/kafka"
)

// ProgramStore is satisfied by *corpus.SQLSource.
type ProgramStore interface {
	UpsertPrograms(ctx context.Context, programs []corpus.Program) error
	Name() string
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	store    ProgramStore
	producer EventPublisher
	logger   *slog.Logger
}

// New returns a Publisher. producer may be nil, in which case searchers pick
// the change up on their next periodic reload.
func New(store ProgramStore, producer EventPublisher) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest stores the batch and publishes a CorpusUpdatedEvent. A publish
// failure is logged, not returned: the rows are already committed.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if err := p.store.UpsertPrograms(ctx, req.Programs); err != nil {
		return nil, fmt.Errorf("storing programs: %w", err)
	}
	slugs := make([]string, len(req.Programs))
	for i, prog := range req.Programs {
		slugs[i] = prog.Slug
	}
	resp := &ingestion.IngestResponse{Upserted: len(req.Programs), Slugs: slugs}
	if p.producer == nil {
		return resp, nil
	}

	event := kafka.Event{
		Key: p.store.Name(),
		Value: ingestion.CorpusUpdatedEvent{
			Slugs:     slugs,
			Source:    p.store.Name(),
			UpdatedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, []kafka.Event{event}); err != nil {
		p.logger.Error("failed to publish corpus update, searchers will catch up on reload",
			"programs", len(slugs),
			"error", err,
		)
		return resp, nil
	}
	resp.Published = true
	return resp, nil
}

// Package consumer turns corpus-update events from Kafka into index reloads.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/kafka"
)

// Reloader is satisfied by *indexer.Engine.
type Reloader interface {
	Reload(ctx context.Context) (indexer.RebuildResult, error)
}

// HandleMessage returns a Kafka MessageHandler that reloads the index for
// every corpus update. A failed reload returns an error, which leaves the
// message uncommitted.
func HandleMessage(reloader Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CorpusUpdatedEvent](value)
		if err != nil {
			logger.Error("failed to decode corpus update",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Debug("processing corpus update",
			"source", event.Source,
			"slugs", event.Slugs,
		)
		res, err := reloader.Reload(ctx)
		if err != nil {
			return fmt.Errorf("reloading after update of %d programs: %w", len(event.Slugs), err)
		}
		logger.Info("index reloaded after corpus update",
			"slugs", event.Slugs,
			"generation", res.Generation,
			"documents", res.Documents,
		)
		return nil
	}
}

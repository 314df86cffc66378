// Package ingestion defines the request/response types and Kafka event schema
// used when program records are written to the SQL corpus.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
)

// IngestRequest is the JSON body accepted by POST /api/v1/programs and the
// layout of seed files.
type IngestRequest struct {
	Programs []corpus.Program `json:"programs"`
}

// IngestResponse is returned after the batch is stored.
type IngestResponse struct {
	Upserted  int      `json:"upserted"`
	Slugs     []string `json:"slugs"`
	Published bool     `json:"published"`
}

// CorpusUpdatedEvent tells searchers that the corpus changed and their index
// should be rebuilt.
type CorpusUpdatedEvent struct {
	Slugs     []string  `json:"slugs"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

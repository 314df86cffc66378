package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

type SearchResult struct {
	Query      string             `json:"query"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
	Terms      []string           `json:"terms"`
	Generation uint64             `json:"generation"`
}

// snapshot pairs a published index with its generation number. It is
// replaced as a whole, never modified.
type snapshot struct {
	idx        *index.Index
	generation uint64
	builtAt    time.Time
}

// Executor answers queries against the currently published index. Queries
// read the index without locks; Rebuild builds a replacement off to the side
// and publishes it with a single atomic store, so in-flight queries finish on
// the index they started with.
type Executor struct {
	current   atomic.Pointer[snapshot]
	params    ranker.Params
	rebuildMu sync.Mutex
	logger    *slog.Logger
}

func New(idx *index.Index, params ranker.Params) *Executor {
	e := &Executor{
		params: params,
		logger: slog.Default().With("component", "query-executor"),
	}
	e.current.Store(&snapshot{idx: idx, generation: 1, builtAt: time.Now()})
	return e
}

// NewFromDocuments builds the initial index from docs. A build error is
// returned as-is so the caller can refuse to start.
func NewFromDocuments(docs []index.Document, params ranker.Params) (*Executor, error) {
	idx, err := index.Build(docs)
	if err != nil {
		return nil, fmt.Errorf("building initial index: %w", err)
	}
	return New(idx, params), nil
}

// Search returns up to topK documents with a positive score, best first. A
// query matching nothing yields an empty slice and a nil error.
func (e *Executor) Search(ctx context.Context, query string, topK int) ([]ranker.ScoredDoc, error) {
	result, err := e.Execute(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return result.Results, nil
}

func (e *Executor) Execute(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, http.StatusBadRequest,
			"topK must be at least 1, got %d", limit)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search cancelled: %w", err)
	}
	snap := e.current.Load()
	plan := parser.Parse(query)
	if plan.Empty() {
		return &SearchResult{
			Query:      query,
			Results:    []ranker.ScoredDoc{},
			Terms:      plan.Terms,
			Generation: snap.generation,
		}, nil
	}

	ranked := ranker.Rank(ranker.ScoreTerms(plan.Terms, snap.idx, e.params), 0)
	totalHits := len(ranked)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	e.logger.Debug("query executed",
		"query", query,
		"terms", plan.Terms,
		"total_hits", totalHits,
		"results", len(ranked),
		"generation", snap.generation,
	)
	return &SearchResult{
		Query:      query,
		TotalHits:  totalHits,
		Results:    ranked,
		Terms:      plan.Terms,
		Generation: snap.generation,
	}, nil
}

// Rebuild derives a new index from docs and publishes it. If the build fails
// the previous index keeps serving and the error is returned.
func (e *Executor) Rebuild(docs []index.Document) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	start := time.Now()
	idx, err := index.Build(docs)
	if err != nil {
		e.logger.Error("index rebuild failed, keeping current index",
			"documents", len(docs),
			"error", err,
		)
		return fmt.Errorf("rebuilding index: %w", err)
	}
	prev := e.current.Load()
	next := &snapshot{idx: idx, generation: prev.generation + 1, builtAt: time.Now()}
	e.current.Store(next)
	e.logger.Info("index rebuilt",
		"documents", idx.DocumentCount(),
		"terms", idx.Stats().Terms,
		"generation", next.generation,
		"duration", time.Since(start),
	)
	return nil
}

// Index returns the currently published index.
func (e *Executor) Index() *index.Index {
	return e.current.Load().idx
}

func (e *Executor) Generation() uint64 {
	return e.current.Load().generation
}

// IndexInfo describes the published index for admin endpoints.
type IndexInfo struct {
	index.Stats
	Generation uint64    `json:"generation"`
	BuiltAt    time.Time `json:"built_at"`
	K1         float64   `json:"k1"`
	B          float64   `json:"b"`
}

func (e *Executor) Info() IndexInfo {
	snap := e.current.Load()
	return IndexInfo{
		Stats:      snap.idx.Stats(),
		Generation: snap.generation,
		BuiltAt:    snap.builtAt,
		K1:         e.params.K1,
		B:          e.params.B,
	}
}

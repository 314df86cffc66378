package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
)

type rebuildResponse struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	Generation uint64 `json:"generation"`
	Documents  int    `json:"documents"`
	Terms      int    `json:"terms"`
	Programs   int    `json:"programs"`
	DurationMs int64  `json:"duration_ms"`
}

// Rebuild reloads the corpus and publishes a new index. On failure the
// previous index keeps serving and the error is reported.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "rebuilding is not available")
		return
	}
	res, err := h.reloader.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("index rebuild failed", "error", err)
		h.writeAppError(w, err, "index rebuild failed")
		return
	}
	h.writeJSON(w, http.StatusOK, rebuildResponse{
		Status:     "rebuilt",
		Source:     res.Source,
		Generation: res.Generation,
		Documents:  res.Documents,
		Terms:      res.Terms,
		Programs:   res.Programs,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// AfterRebuild is registered with the indexer engine. After a successful
// rebuild it swaps the assistant's catalog and drops cached results of older
// generations; every attempt is counted in metrics and analytics.
func (h *Handler) AfterRebuild(ctx context.Context, res indexer.RebuildResult) {
	if h.metrics != nil {
		h.metrics.ObserveRebuild(res.Duration.Seconds(), res.Err)
	}
	if res.Err != nil {
		return
	}
	if res.Corpus != nil {
		h.assistant.SetCatalog(res.Corpus.Catalog)
	}
	if h.metrics != nil {
		h.metrics.SetIndex(res.Documents, res.Terms, res.Generation)
	}
	if h.cache != nil {
		if _, err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("dropping stale cache entries failed", "generation", res.Generation, "error", err)
		}
	}
	if h.collector != nil {
		h.collector.Track(analytics.Event{
			Type:       analytics.EventRebuild,
			Generation: res.Generation,
			Documents:  res.Documents,
			LatencyMs:  res.Duration.Milliseconds(),
			Outcome:    analytics.OutcomeOK,
			Timestamp:  time.Now().UTC(),
		})
	}
}

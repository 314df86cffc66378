// Package handler exposes the search engine and the applicant assistant over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/assistant"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/middleware"
)

const (
	endpointSearch = "search"
	endpointAsk    = "ask"
	outcomeZero    = "zero_result"
)

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit int) (*executor.SearchResult, error)
	Generation() uint64
	Info() executor.IndexInfo
}

// Reloader is satisfied by *indexer.Engine.
type Reloader interface {
	Reload(ctx context.Context) (indexer.RebuildResult, error)
}

// Tracker is satisfied by *analytics.Collector.
type Tracker interface {
	Track(e analytics.Event)
}

// Options carries the optional collaborators. A nil Cache, Collector or
// Metrics disables that feature. Admin, when set, wraps the rebuild and
// cache-invalidation routes.
type Options struct {
	Cache        *cache.QueryCache
	Collector    Tracker
	Metrics      *metrics.Metrics
	Admin        func(http.Handler) http.Handler
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	executor     SearchExecutor
	assistant    *assistant.Assistant
	reloader     Reloader
	cache        *cache.QueryCache
	collector    Tracker
	metrics      *metrics.Metrics
	admin        func(http.Handler) http.Handler
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(exec SearchExecutor, asst *assistant.Assistant, reloader Reloader, opts Options) *Handler {
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 5
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		executor:     exec,
		assistant:    asst,
		reloader:     reloader,
		cache:        opts.Cache,
		collector:    opts.Collector,
		metrics:      opts.Metrics,
		admin:        opts.Admin,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every search, assistant and admin route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/ask", h.Ask)
	mux.HandleFunc("GET /api/v1/compare", h.Compare)
	mux.HandleFunc("POST /api/v1/recommend", h.Recommend)
	mux.HandleFunc("GET /api/v1/plan", h.Plan)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.Handle("POST /api/v1/index/rebuild", h.guard(h.Rebuild))
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", h.guard(h.CacheInvalidate))
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) guard(fn http.HandlerFunc) http.Handler {
	if h.admin == nil {
		return fn
	}
	return h.admin(fn)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.observe(ctx, endpointSearch, analytics.OutcomeInvalid, query, nil, start)
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, ok := h.parseLimit(w, r)
	if !ok {
		h.observe(ctx, endpointSearch, analytics.OutcomeInvalid, query, nil, start)
		return
	}

	plan := parser.Parse(query)
	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil && !plan.Empty() {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, limit, h.executor.Generation(),
			func() (*executor.SearchResult, error) {
				return h.executor.Execute(ctx, query, limit)
			})
	} else {
		result, err = h.executor.Execute(ctx, query, limit)
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observe(ctx, endpointSearch, analytics.OutcomeError, query, nil, start)
		h.writeAppError(w, err, "search failed")
		return
	}

	// Cached and coalesced results are shared; answer with a copy carrying
	// this request's query text.
	out := *result
	out.Query = query

	latency := time.Since(start)
	log.Info("search completed",
		"query", query,
		"total_hits", out.TotalHits,
		"returned", len(out.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.metrics != nil {
		h.metrics.ObserveSearch(latency.Seconds(), len(out.Results), cacheHit)
	}
	h.observe(ctx, endpointSearch, analytics.OutcomeOK, query, &searchOutcome{
		terms:      out.Terms,
		totalHits:  out.TotalHits,
		returned:   len(out.Results),
		cacheHit:   cacheHit,
		generation: out.Generation,
	}, start)
	if h.cache != nil {
		w.Header().Set("X-Cache", cacheHeader(cacheHit))
	}
	h.writeJSON(w, http.StatusOK, &out)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// parseLimit reads ?limit=, capping it at maxResults. It writes the 400
// itself and reports false when the value is unusable.
func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return h.defaultLimit, true
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if parsed > h.maxResults {
		parsed = h.maxResults
	}
	return parsed, true
}

type searchOutcome struct {
	terms      []string
	totalHits  int
	returned   int
	cacheHit   bool
	generation uint64
}

// observe reports one search or ask to metrics and analytics. so is nil for
// requests that produced no result.
func (h *Handler) observe(ctx context.Context, endpoint, outcome, query string, so *searchOutcome, start time.Time) {
	if so == nil {
		so = &searchOutcome{generation: h.executor.Generation()}
	}
	if h.metrics != nil {
		label := outcome
		if outcome == analytics.OutcomeOK && so.totalHits == 0 {
			label = outcomeZero
		}
		h.metrics.ObserveQuery(endpoint, label)
	}
	if h.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	if endpoint == endpointAsk {
		eventType = analytics.EventAsk
	}
	h.collector.Track(analytics.Event{
		Type:       eventType,
		Query:      query,
		Terms:      so.terms,
		TotalHits:  so.totalHits,
		Returned:   so.returned,
		LatencyMs:  time.Since(start).Milliseconds(),
		CacheHit:   so.cacheHit,
		Outcome:    outcome,
		Generation: so.generation,
		RequestID:  middleware.GetRequestID(ctx),
		Timestamp:  time.Now().UTC(),
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.executor.Info())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	info := h.executor.Info()
	status := "ok"
	if info.Degenerate {
		status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"documents":  info.Documents,
		"generation": info.Generation,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to its status code. Application errors carry their
// own message; anything answered with a 500 is replaced by fallback.
func (h *Handler) writeAppError(w http.ResponseWriter, err error, fallback string) {
	status := apperrors.HTTPStatusCode(err)
	message := fallback
	var appErr *apperrors.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, status, message)
}

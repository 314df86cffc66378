package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/acquisition"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/assistant"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/redis"
)

var programs = []corpus.Program{
	{
		Slug:              "ai",
		Title:             "Искусственный интеллект",
		Format:            "очно",
		TuitionPerYearRub: 599000,
		CareerRoles:       []string{"ML Engineer"},
		Notes:             []string{"Очный формат обучения", "Проекты с индустриальными партнерами"},
	},
	{
		Slug:              "ai_product",
		Title:             "Управление ИИ-продуктами",
		Format:            "онлайн",
		TuitionPerYearRub: 599000,
		CareerRoles:       []string{"AI Product Manager"},
		Notes:             []string{"Онлайн формат обучения"},
		FAQ:               []string{"Общежитие не требуется"},
	},
}

type memSource struct {
	mu       sync.Mutex
	programs []corpus.Program
	err      error
}

func (s *memSource) Name() string { return "memory" }

func (s *memSource) Load(context.Context) (*corpus.Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c := &corpus.Corpus{Catalog: corpus.NewCatalog(s.programs)}
	for _, p := range s.programs {
		c.Documents = append(c.Documents, p.Document())
	}
	return c, nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value)
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = make(map[string]string)
	return n, nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Track(e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) last() analytics.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	handler *Handler
	mux     *http.ServeMux
	source  *memSource
	engine  *indexer.Engine
	events  *recorder
	metrics *metrics.Metrics
	cache   *cache.QueryCache
	dataDir string
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	src := &memSource{programs: programs}
	engine, c, err := indexer.Open(context.Background(), src, ranker.DefaultParams(), indexer.Options{LoadAttempts: 1})
	require.NoError(t, err)

	f := &fixture{
		source:  src,
		engine:  engine,
		events:  &recorder{},
		metrics: metrics.New(prometheus.NewRegistry()),
		dataDir: t.TempDir(),
	}
	if withCache {
		f.cache = cache.New(&memStore{data: make(map[string]string)}, time.Minute)
	}
	asst := assistant.New(engine.Executor(), c.Catalog, 3, f.dataDir)
	f.handler = New(engine.Executor(), asst, engine, Options{
		Cache:        f.cache,
		Collector:    f.events,
		Metrics:      f.metrics,
		DefaultLimit: 5,
		MaxResults:   10,
	})
	engine.OnRebuild(f.handler.AfterRebuild)
	f.mux = http.NewServeMux()
	f.handler.Register(f.mux)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/api/v1/search?q=онлайн+формат", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	res := decode[executor.SearchResult](t, rec)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "ai_product", res.Results[0].DocID)
	assert.Equal(t, "онлайн формат", res.Query)

	ev := f.events.last()
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, analytics.OutcomeOK, ev.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("search", "ok")))
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/search?q=%20%20", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/search?q=формат&limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/search?q=формат&limit=abc", "").Code)
	assert.Equal(t, analytics.OutcomeInvalid, f.events.last().Outcome)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("search", "invalid")))
}

func TestSearchLimitIsCapped(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/api/v1/search?q=формат+обучения&limit=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[executor.SearchResult](t, rec)
	assert.Len(t, res.Results, 2)
}

func TestSearchNoMatch(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/api/v1/search?q=квантовая+химия", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("search", "zero_result")))
}

func TestSearchUsesCache(t *testing.T) {
	f := newFixture(t, true)
	first := f.do(http.MethodGet, "/api/v1/search?q=онлайн+формат", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	rec := f.do(http.MethodGet, "/api/v1/search?q=Формат,+онлайн!", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	res := decode[executor.SearchResult](t, rec)
	assert.Equal(t, "Формат, онлайн!", res.Query)
	assert.True(t, f.events.last().CacheHit)
	assert.EqualValues(t, 1, f.cache.Stats().Hits)

	stats := decode[cache.Stats](t, f.do(http.MethodGet, "/api/v1/cache/stats", ""))
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	f := newFixture(t, false)
	assert.JSONEq(t, `{"status":"disabled"}`, f.do(http.MethodGet, "/api/v1/cache/stats", "").Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/v1/cache/invalidate", "").Code)
}

func TestCacheInvalidate(t *testing.T) {
	f := newFixture(t, true)
	f.do(http.MethodGet, "/api/v1/search?q=формат", "")
	rec := f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"invalidated","keys_deleted":1}`, rec.Body.String())
}

func TestAsk(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/api/v1/ask?q=Какой+формат+обучения+онлайн", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Question string           `json:"question"`
		Facts    []assistant.Fact `json:"facts"`
		Answer   string           `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Facts)
	assert.Equal(t, "ai_product", body.Facts[0].Slug)
	assert.Contains(t, body.Answer, "Управление ИИ-продуктами")
	assert.Equal(t, analytics.EventAsk, f.events.last().Type)
}

func TestAskErrors(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodGet, "/api/v1/ask?q=какая+погода+завтра", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, analytics.OutcomeOffTopic, f.events.last().Outcome)

	rec = f.do(http.MethodGet, "/api/v1/ask", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, analytics.OutcomeInvalid, f.events.last().Outcome)
	assert.Contains(t, rec.Body.String(), "question is empty")
}

func TestCompare(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/api/v1/compare", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Programs []assistant.ProgramSummary `json:"programs"`
		Text     string                     `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Programs, 2)
	assert.Equal(t, "ai", body.Programs[0].Slug)
	assert.Contains(t, body.Text, "599,000")

	rec = f.do(http.MethodGet, "/api/v1/compare?programs=ai_product", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/compare?programs=ai,physics", "").Code)
}

func TestRecommend(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodPost, "/api/v1/recommend", `{"line":"math=low, coding=senior, goals=ml_engineer, program=ai"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[assistant.Recommendation](t, rec)
	assert.Equal(t, "ai", got.Program)
	assert.Contains(t, got.Electives, "Линейная алгебра для ML (bridge)")
	assert.Contains(t, got.Electives, "MLOps и продакшен ML")
	assert.NotContains(t, got.Electives, "Python for Data/ML (интенсив)")

	rec = f.do(http.MethodPost, "/api/v1/recommend", `{"profile":{"product":"Senior","coding":"senior","goals":["data_analyst"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[assistant.Recommendation](t, rec)
	assert.Equal(t, "ai_product", got.Program)
	assert.Equal(t, []string{"Эксперименты и статистика", "BI-инструменты (Power BI / Tableau)", "Фреймворки принятия решений"}, got.Electives)
}

func TestRecommendErrors(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/recommend", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/recommend", `{"line":"just text"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/recommend", `{"program":"physics"}`).Code)
}

func TestPlan(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/plan", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/plan?program=ai", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/plan?program=../etc", "").Code)

	require.NoError(t, acquisition.WriteRawPage(f.dataDir, acquisition.RawPage{
		Slug:           "ai",
		URL:            "https://abit.example.org/program/master/ai",
		PlanCandidates: []string{"https://abit.example.org/files/plan.pdf", "https://abit.example.org/plan"},
	}))
	rec := f.do(http.MethodGet, "/api/v1/plan?program=ai", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[assistant.PlanInfo](t, rec)
	assert.Equal(t, []string{"https://abit.example.org/files/plan.pdf"}, info.PDFs)
	assert.Len(t, info.Candidates, 2)
}

func TestRebuild(t *testing.T) {
	f := newFixture(t, true)
	f.do(http.MethodGet, "/api/v1/search?q=формат", "")

	third := corpus.Program{Slug: "data_science", Title: "Науки о данных", Notes: []string{"Очно-заочный формат, общежитие предоставляется"}}
	f.source.mu.Lock()
	f.source.programs = append(append([]corpus.Program{}, programs...), third)
	f.source.mu.Unlock()

	rec := f.do(http.MethodPost, "/api/v1/index/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[rebuildResponse](t, rec)
	assert.Equal(t, "rebuilt", body.Status)
	assert.EqualValues(t, 2, body.Generation)
	assert.Equal(t, 3, body.Documents)
	assert.Equal(t, 3, body.Programs)

	assert.Equal(t, 3, f.handler.assistant.Catalog().Len())
	assert.EqualValues(t, 0, f.cache.Stats().Hits)
	assert.Equal(t, analytics.EventRebuild, f.events.last().Type)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.IndexGeneration))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexRebuildsTotal.WithLabelValues("success")))

	stats := decode[executor.IndexInfo](t, f.do(http.MethodGet, "/api/v1/index/stats", ""))
	assert.Equal(t, 3, stats.Documents)
	assert.EqualValues(t, 2, stats.Generation)

	rec = f.do(http.MethodGet, "/api/v1/compare?programs=data_science", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRebuildFailureKeepsIndex(t *testing.T) {
	f := newFixture(t, false)
	f.source.mu.Lock()
	f.source.err = errors.New("database is locked")
	f.source.mu.Unlock()

	rec := f.do(http.MethodPost, "/api/v1/index/rebuild", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IndexRebuildsTotal.WithLabelValues("failure")))

	rec = f.do(http.MethodGet, "/api/v1/search?q=онлайн", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[executor.SearchResult](t, rec)
	assert.EqualValues(t, 1, res.Generation)
	assert.NotEmpty(t, res.Results)
}

func TestRebuildDuplicateSlugsConflict(t *testing.T) {
	f := newFixture(t, false)
	f.source.mu.Lock()
	f.source.programs = []corpus.Program{programs[0], programs[0]}
	f.source.mu.Unlock()

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/index/rebuild", "").Code)
	assert.Equal(t, 2, f.handler.assistant.Catalog().Len())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","documents":2,"generation":1}`, rec.Body.String())
}

func TestAdminRoutesAreGuarded(t *testing.T) {
	f := newFixture(t, true)
	f.handler.admin = middleware.AdminToken("s3cret")
	f.mux = http.NewServeMux()
	f.handler.Register(f.mux)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/v1/index/rebuild", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/v1/cache/invalidate", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/cache/stats", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil)
	req.Header.Set(middleware.AdminTokenHeader, "s3cret")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

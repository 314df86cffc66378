package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

type fakeSource struct {
	mu       sync.Mutex
	programs []corpus.Program
	err      error
	block    chan struct{}
	loads    int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Load(ctx context.Context) (*corpus.Corpus, error) {
	s.mu.Lock()
	s.loads++
	programs, err, block := s.programs, s.err, s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	c := &corpus.Corpus{Catalog: corpus.NewCatalog(programs)}
	for _, p := range programs {
		c.Documents = append(c.Documents, p.Document())
	}
	return c, nil
}

func (s *fakeSource) set(programs []corpus.Program, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs, s.err = programs, err
}

var (
	aiProgram = corpus.Program{
		Slug:  "ai",
		Title: "Искусственный интеллект",
		Notes: []string{"Очный формат обучения", "Проекты с индустриальными партнерами"},
	}
	productProgram = corpus.Program{
		Slug:  "ai_product",
		Title: "Управление ИИ-продуктами/AI Product",
		Notes: []string{"Онлайн формат", "Карьера продакт-менеджера"},
	}
)

func openEngine(t *testing.T, src *fakeSource) *Engine {
	t.Helper()
	e, c, err := Open(context.Background(), src, ranker.DefaultParams(), Options{LoadAttempts: 1})
	require.NoError(t, err)
	require.NotNil(t, c)
	return e
}

func TestOpenBuildsInitialIndex(t *testing.T) {
	e := openEngine(t, &fakeSource{programs: []corpus.Program{aiProgram, productProgram}})

	info := e.Executor().Info()
	assert.Equal(t, 2, info.Documents)
	assert.EqualValues(t, 1, info.Generation)

	hits, err := e.Executor().Search(context.Background(), "онлайн формат", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "ai_product", hits[0].DocID)
}

func TestOpenFailsWithoutSource(t *testing.T) {
	_, _, err := Open(context.Background(), &fakeSource{err: errors.New("disk gone")},
		ranker.DefaultParams(), Options{LoadAttempts: 1})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIndexUnavailable))
}

func TestOpenRejectsDuplicateSlugs(t *testing.T) {
	_, _, err := Open(context.Background(), &fakeSource{programs: []corpus.Program{aiProgram, aiProgram}},
		ranker.DefaultParams(), Options{LoadAttempts: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateDocument))
}

func TestReloadPublishesNewGeneration(t *testing.T) {
	src := &fakeSource{programs: []corpus.Program{aiProgram}}
	e := openEngine(t, src)

	var got []RebuildResult
	e.OnRebuild(func(_ context.Context, res RebuildResult) { got = append(got, res) })

	src.set([]corpus.Program{aiProgram, productProgram}, nil)
	res, err := e.Reload(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Generation)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 2, res.Programs)
	require.NotNil(t, res.Corpus)
	assert.NoError(t, e.LastError())

	require.Len(t, got, 1)
	assert.EqualValues(t, 2, got[0].Generation)
}

func TestReloadFailureKeepsServingIndex(t *testing.T) {
	src := &fakeSource{programs: []corpus.Program{aiProgram, productProgram}}
	e := openEngine(t, src)

	var hookErr error
	e.OnRebuild(func(_ context.Context, res RebuildResult) { hookErr = res.Err })

	src.set(nil, errors.New("connection refused"))
	res, err := e.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIndexUnavailable))
	assert.EqualValues(t, 1, res.Generation)
	assert.Nil(t, res.Corpus)
	assert.Error(t, hookErr)
	assert.Error(t, e.LastError())

	hits, err := e.Executor().Search(context.Background(), "онлайн", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	src.set([]corpus.Program{aiProgram}, nil)
	_, err = e.Reload(context.Background())
	require.NoError(t, err)
	assert.NoError(t, e.LastError())
}

func TestReloadDuplicateKeepsPreviousGeneration(t *testing.T) {
	src := &fakeSource{programs: []corpus.Program{aiProgram}}
	e := openEngine(t, src)

	src.set([]corpus.Program{productProgram, productProgram}, nil)
	_, err := e.Reload(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateDocument))
	assert.EqualValues(t, 1, e.Executor().Generation())
}

func TestReloadTimesOut(t *testing.T) {
	src := &fakeSource{programs: []corpus.Program{aiProgram}}
	e := openEngine(t, src)
	e.opts.LoadTimeout = 20 * time.Millisecond

	src.mu.Lock()
	src.block = make(chan struct{})
	src.mu.Unlock()
	defer close(src.block)

	_, err := e.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTimeout))
}

func TestReloadRetriesTransientFailures(t *testing.T) {
	src := &fakeSource{programs: []corpus.Program{aiProgram}}
	e := openEngine(t, src)
	e.opts.LoadAttempts = 3

	src.set(nil, errors.New("flaky"))
	go func() {
		time.Sleep(50 * time.Millisecond)
		src.set([]corpus.Program{aiProgram, productProgram}, nil)
	}()
	res, err := e.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
}

func TestStartReloadLoop(t *testing.T) {
	src := &fakeSource{programs: []corpus.Program{aiProgram}}
	e := openEngine(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.StartReloadLoop(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return e.Executor().Generation() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

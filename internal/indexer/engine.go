// Package indexer keeps the served index in step with the corpus source. The
// Engine loads a full snapshot from the source, builds a fresh index and
// publishes it through the executor; a failed reload leaves the previous
// index serving.
package indexer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/resilience"
)

type Options struct {
	LoadTimeout  time.Duration
	LoadAttempts int
}

// RebuildResult describes one reload attempt. Corpus is nil when Err is set.
type RebuildResult struct {
	Source     string         `json:"source"`
	Generation uint64         `json:"generation"`
	Documents  int            `json:"documents"`
	Terms      int            `json:"terms"`
	Programs   int            `json:"programs"`
	Duration   time.Duration  `json:"duration"`
	Err        error          `json:"-"`
	Corpus     *corpus.Corpus `json:"-"`
}

// Hook observes every reload attempt, successful or not.
type Hook func(ctx context.Context, res RebuildResult)

type Engine struct {
	source   corpus.Source
	exec     *executor.Executor
	opts     Options
	reloadMu sync.Mutex
	hooksMu  sync.RWMutex
	hooks    []Hook
	lastErr  atomic.Pointer[error]
	logger   *slog.Logger
}

// Open loads the first snapshot from source and builds the initial index. It
// fails when the source cannot be read or the corpus cannot be indexed, so a
// service never starts without an index.
func Open(ctx context.Context, source corpus.Source, params ranker.Params, opts Options) (*Engine, *corpus.Corpus, error) {
	e := &Engine{
		source: source,
		opts:   opts,
		logger: slog.Default().With("component", "indexer", "source", source.Name()),
	}
	c, err := e.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	exec, err := executor.NewFromDocuments(c.Documents, params)
	if err != nil {
		return nil, nil, err
	}
	e.exec = exec
	info := exec.Info()
	e.logger.Info("initial index built",
		"documents", info.Documents,
		"terms", info.Terms,
		"programs", c.Catalog.Len(),
	)
	return e, c, nil
}

func (e *Engine) Executor() *executor.Executor {
	return e.exec
}

// OnRebuild registers h to run after every reload attempt.
func (e *Engine) OnRebuild(h Hook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, h)
}

// Reload reads the source again and publishes a new index generation.
// Concurrent calls are serialised.
func (e *Engine) Reload(ctx context.Context) (RebuildResult, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	start := time.Now()
	res := RebuildResult{Source: e.source.Name()}
	c, err := e.load(ctx)
	if err == nil {
		err = e.exec.Rebuild(c.Documents)
	}
	res.Duration = time.Since(start)
	info := e.exec.Info()
	res.Generation = info.Generation
	res.Documents = info.Documents
	res.Terms = info.Terms

	if err != nil {
		res.Err = err
		e.lastErr.Store(&err)
		e.logger.Error("reload failed, previous index keeps serving",
			"generation", info.Generation,
			"error", err,
		)
	} else {
		res.Corpus = c
		res.Programs = c.Catalog.Len()
		e.lastErr.Store(nil)
	}
	e.notify(ctx, res)
	return res, err
}

// LastError returns the error of the most recent reload, or nil if it
// succeeded or none has run.
func (e *Engine) LastError() error {
	if p := e.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// StartReloadLoop reloads every interval until ctx is done.
func (e *Engine) StartReloadLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		e.logger.Info("reload loop started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("reload loop stopping")
				return
			case <-ticker.C:
				e.Reload(ctx)
			}
		}
	}()
}

func (e *Engine) load(ctx context.Context) (*corpus.Corpus, error) {
	name := "loading corpus from " + e.source.Name()
	c, err := resilience.RetryValue(ctx, name,
		resilience.RetryConfig{MaxAttempts: e.opts.LoadAttempts},
		func(ctx context.Context) (*corpus.Corpus, error) {
			var c *corpus.Corpus
			err := resilience.WithTimeout(ctx, e.opts.LoadTimeout, name, func(ctx context.Context) error {
				var err error
				c, err = e.source.Load(ctx)
				return err
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrTimeout) || ctx.Err() != nil {
			return nil, err
		}
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable,
			"%s: %v", name, err)
	}
	return c, nil
}

func (e *Engine) notify(ctx context.Context, res RebuildResult) {
	e.hooksMu.RLock()
	hooks := make([]Hook, len(e.hooks))
	copy(hooks, e.hooks)
	e.hooksMu.RUnlock()
	for _, h := range hooks {
		h(ctx, res)
	}
}

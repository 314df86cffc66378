package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/assistant"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/redis"
)

const breakerPollInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"corpus_source", cfg.Corpus.Source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opened, err := corpus.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus source", "error", err)
		os.Exit(1)
	}
	defer opened.Close()

	engine, initial, err := indexer.Open(ctx, opened.Source,
		ranker.Params{K1: cfg.Search.K1, B: cfg.Search.B},
		indexer.Options{LoadTimeout: cfg.Corpus.LoadTimeout, LoadAttempts: cfg.Corpus.LoadAttempts},
	)
	if err != nil {
		slog.Error("failed to build index", "error", err)
		os.Exit(1)
	}
	exec := engine.Executor()
	info := exec.Info()
	slog.Info("index ready",
		"source", opened.Source.Name(),
		"documents", info.Documents,
		"terms", info.Terms,
		"programs", initial.Catalog.Len(),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	m.SetIndex(info.Documents, info.Terms, info.Generation)

	asst := assistant.New(exec, initial.Catalog, cfg.Search.AskLimit, cfg.Corpus.DataDir)

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	opts := handler.Options{
		Cache:        queryCache,
		Metrics:      m,
		Admin:        middleware.AdminToken(cfg.Server.AdminToken),
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	}

	var (
		aggregator        *analytics.Aggregator
		collector         *analytics.Collector
		analyticsProducer *kafka.Producer
		snapshots         *store.Store
		snapshotsDone     chan struct{}
	)
	if cfg.Analytics.Enabled {
		aggregator = analytics.NewAggregator()
		var sink analytics.Sink = aggregator
		if cfg.Kafka.Enabled {
			analyticsProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
			defer analyticsProducer.Close()
			sink = analyticsProducer
			analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleMessage)
			go func() {
				if err := analyticsConsumer.Run(ctx); err != nil {
					slog.Error("analytics consumer stopped", "error", err)
				}
			}()
			slog.Info("analytics routed through kafka", "topic", cfg.Kafka.Topics.AnalyticsEvents)
		}
		collector = analytics.NewCollector(sink, cfg.Analytics)
		collector.Start(ctx)
		opts.Collector = collector

		if opened.DB != nil {
			snapshots, err = store.New(opened.DB, opened.Driver)
			if err == nil {
				err = snapshots.EnsureSchema(ctx)
			}
			if err != nil {
				slog.Warn("analytics snapshots disabled", "error", err)
				snapshots = nil
			} else if cfg.Analytics.SnapshotInterval > 0 {
				snapshotsDone = make(chan struct{})
				go func() {
					defer close(snapshotsDone)
					snapshots.Run(ctx, aggregator, cfg.Analytics.SnapshotInterval)
				}()
			}
		}
	}

	h := handler.New(exec, asst, engine, opts)
	engine.OnRebuild(h.AfterRebuild)

	if cfg.Kafka.Enabled {
		// Every replica must see every update, so each gets its own group.
		kcfg := cfg.Kafka
		kcfg.ConsumerGroup = instanceGroup(cfg.Kafka.ConsumerGroup)
		updates := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.CorpusUpdates, consumer.HandleMessage(engine))
		go func() {
			if err := updates.Run(ctx); err != nil {
				slog.Error("corpus update consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for corpus updates",
			"topic", cfg.Kafka.Topics.CorpusUpdates,
			"group", kcfg.ConsumerGroup,
		)
	}

	if cfg.Corpus.ReloadInterval > 0 {
		engine.StartReloadLoop(ctx, cfg.Corpus.ReloadInterval)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		info := exec.Info()
		msg := fmt.Sprintf("%d documents, generation %d", info.Documents, info.Generation)
		if err := engine.LastError(); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "last reload failed: " + err.Error()}
		}
		if info.Degenerate {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	})
	if opened.DB != nil {
		checker.Register("database", health.PingCheck(opened.DB.PingContext))
	}
	if redisClient != nil {
		checker.Register("redis", health.OptionalPingCheck(redisClient.Ping))
	}
	if analyticsProducer != nil {
		checker.Register("kafka", health.OptionalPingCheck(analyticsProducer.Ping))
	}

	if queryCache != nil {
		go pollBreaker(ctx, queryCache, m)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	if aggregator != nil {
		var lister analytics.SnapshotLister
		if snapshots != nil {
			lister = snapshots
		}
		analyticsH := analytics.NewHandler(aggregator, lister)
		mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
		mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsH.Snapshots)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		clients, err := middleware.NewClientResolver(cfg.Server.TrustedProxies)
		if err != nil {
			slog.Error("invalid trusted proxy list", "error", err)
			os.Exit(1)
		}
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer limiter.Close()
		chain = middleware.RateLimit(limiter, clients)(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.AccessLog(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, registry)
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	// In-flight requests drain first so their analytics events are tracked,
	// then the collector flushes, then the closing snapshot is written while
	// the corpus database is still open.
	<-shutdownDone
	if collector != nil {
		collector.Close()
	}
	if snapshotsDone != nil {
		<-snapshotsDone
	}
	if snapshots != nil {
		if err := snapshots.SaveFinal(aggregator, cfg.Server.ShutdownTimeout); err != nil {
			slog.Error("final analytics snapshot failed", "error", err)
		}
	}

	slog.Info("search service stopped")
}

// instanceGroup derives a consumer group unique to this host.
func instanceGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid%d", os.Getpid())
	}
	return base + "-" + host
}

func pollBreaker(ctx context.Context, qc *cache.QueryCache, m *metrics.Metrics) {
	ticker := time.NewTicker(breakerPollInterval)
	defer ticker.Stop()
	for {
		m.SetBreakerState("redis-cache", int(qc.BreakerState()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

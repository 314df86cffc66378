// Command ingestion starts the program ingestion HTTP service.
//
// The service accepts program records via POST /api/v1/programs, validates
// them, upserts them into the SQL corpus, and announces the change on the
// corpus-updates Kafka topic so search replicas rebuild their index. It
// provides a health endpoint at GET /health.
//
// With -seed the service ingests one JSON batch from disk and exits instead of
// serving.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-seed data/programs_seed.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	seedPath := flag.String("seed", "", "ingest this JSON batch and exit")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opened, err := corpus.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus source", "error", err)
		os.Exit(1)
	}
	defer opened.Close()
	store, ok := opened.Source.(*corpus.SQLSource)
	if !ok {
		slog.Error("ingestion requires a SQL corpus source", "source", cfg.Corpus.Source)
		os.Exit(1)
	}
	slog.Info("connected to corpus database", "driver", opened.Driver)

	var pub *publisher.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdates)
		defer producer.Close()
		pub = publisher.New(store, producer)
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.CorpusUpdates)
	} else {
		pub = publisher.New(store, nil)
		slog.Warn("kafka disabled, searchers pick up changes on their next reload")
	}

	if *seedPath != "" {
		if err := seed(ctx, pub, *seedPath); err != nil {
			slog.Error("seeding failed", "path", *seedPath, "error", err)
			os.Exit(1)
		}
		return
	}

	h := handler.New(pub)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/programs", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.RequestID(middleware.AccessLog(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}

func seed(ctx context.Context, pub *publisher.Publisher, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var req ingestion.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		return err
	}
	resp, err := pub.Ingest(ctx, &req)
	if err != nil {
		return err
	}
	slog.Info("seed ingested",
		"upserted", resp.Upserted,
		"slugs", resp.Slugs,
		"published", resp.Published,
	)
	return nil
}

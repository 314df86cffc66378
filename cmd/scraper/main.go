// Command scraper downloads the configured program pages and saves their
// visible text and study-plan links as <slug>.raw.json files, which the file
// corpus source indexes alongside the seed data.
//
// Usage:
//
//	scraper [--config path] [--out dir] [slug...]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/acquisition"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		outputDir  string
		timeout    time.Duration
	)
	flagSet := pflag.NewFlagSet("scraper", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "configs/development.yaml", "path to config file")
	flagSet.StringVarP(&outputDir, "out", "o", "", "output directory (default: scraper.outputDir)")
	flagSet.DurationVar(&timeout, "timeout", 0, "per-request timeout (default: scraper.timeout)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	scfg := cfg.Scraper
	if outputDir != "" {
		scfg.OutputDir = outputDir
	}
	if timeout > 0 {
		scfg.Timeout = timeout
	}
	if slugs := flagSet.Args(); len(slugs) > 0 {
		selected := make(map[string]string, len(slugs))
		for _, slug := range slugs {
			u, ok := cfg.Scraper.Programs[slug]
			if !ok {
				return fmt.Errorf("program %q is not configured under scraper.programs", slug)
			}
			selected[slug] = u
		}
		scfg.Programs = selected
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pages, err := acquisition.NewScraper(scfg, nil).ScrapeAll(ctx)
	if err != nil {
		return err
	}
	for _, page := range pages {
		slog.Info("saved",
			"slug", page.Slug,
			"path", acquisition.RawPagePath(scfg.OutputDir, page.Slug),
			"plan_candidates", len(page.PlanCandidates),
		)
	}
	return nil
}

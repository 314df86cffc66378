// Command assistant answers applicant questions from the terminal using the
// same index and catalog as the search service.
//
// Usage:
//
//	assistant [--config path] [--limit n] ask <question...>
//	assistant compare [slug...]
//	assistant reco "math=mid, coding=junior, goals=product_manager, program=ai_product"
//	assistant plan <slug>
//	assistant search <query...>
//
// Answers go to stdout; logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/assistant"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/recommender"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/logger"
)

const usage = `usage: assistant [flags] <command> [args]

commands:
  ask <question...>     answer a question from the program pages
  compare [slug...]     compare programs side by side (default: ai ai_product)
  reco <profile>        recommend electives, e.g. "math=mid, coding=junior, program=ai"
  plan <slug>           list study-plan links found on a program page
  search <query...>     show raw ranked matches

flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		configPath string
		limit      int
		asJSON     bool
		logLevel   string
	)
	flagSet := pflag.NewFlagSet("assistant", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "configs/development.yaml", "path to config file")
	flagSet.IntVarP(&limit, "limit", "n", 0, "number of matches to use (default: search.askLimit)")
	flagSet.BoolVar(&asJSON, "json", false, "print results as JSON")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level for stderr output")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetupWriter(os.Stderr, logLevel, "text")
	if limit <= 0 {
		limit = cfg.Search.AskLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opened, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.Close()
	engine, initial, err := indexer.Open(ctx, opened.Source,
		ranker.Params{K1: cfg.Search.K1, B: cfg.Search.B},
		indexer.Options{LoadTimeout: cfg.Corpus.LoadTimeout, LoadAttempts: cfg.Corpus.LoadAttempts},
	)
	if err != nil {
		return err
	}
	exec := engine.Executor()
	asst := assistant.New(exec, initial.Catalog, limit, cfg.Corpus.DataDir)

	out := printer{w: stdout, json: asJSON}
	command, params := rest[0], rest[1:]
	switch command {
	case "ask":
		question := strings.Join(params, " ")
		answer, err := asst.Ask(ctx, question)
		if apperrors.Is(err, apperrors.ErrOffTopic) {
			return out.text("Only questions about admissions and study at the programs are answered.")
		}
		if err != nil {
			return err
		}
		return out.print(answer, answer.Text())
	case "compare":
		cmp, err := asst.Compare(params...)
		if err != nil {
			return err
		}
		return out.print(cmp, cmp.Text())
	case "reco":
		profile, program, err := recommender.ParseProfile(strings.Join(params, " "))
		if err != nil {
			return err
		}
		rec, err := asst.Recommend(profile, program)
		if err != nil {
			return err
		}
		return out.print(rec, formatRecommendation(rec))
	case "plan":
		if len(params) != 1 {
			return errors.New("plan takes exactly one program slug")
		}
		plan, err := asst.Plan(params[0])
		if err != nil {
			return err
		}
		return out.print(plan, formatPlan(plan))
	case "search":
		result, err := exec.Execute(ctx, strings.Join(params, " "), limit)
		if err != nil {
			return err
		}
		return out.print(result, formatSearch(result))
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

type printer struct {
	w    io.Writer
	json bool
}

func (p printer) print(v any, text string) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return p.text(text)
}

func (p printer) text(s string) error {
	_, err := fmt.Fprintln(p.w, s)
	return err
}

func formatRecommendation(rec *assistant.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recommended electives (%s):\n", rec.Program)
	for _, e := range rec.Electives {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPlan(plan *assistant.PlanInfo) string {
	if len(plan.Candidates) == 0 {
		return fmt.Sprintf("No study-plan links found for %s (%s).", plan.Slug, plan.PageURL)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Study plan links for %s:\n", plan.Slug)
	for _, link := range plan.Candidates {
		fmt.Fprintf(&b, "- %s\n", link)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSearch(result *executor.SearchResult) string {
	if len(result.Results) == 0 {
		return "No matches."
	}
	var b strings.Builder
	for i, hit := range result.Results {
		fmt.Fprintf(&b, "%d. %s  %.4f\n", i+1, hit.DocID, hit.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

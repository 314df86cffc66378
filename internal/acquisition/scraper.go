package acquisition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/resilience"
)

const (
	maxPageBytes   = 10 << 20
	maxConcurrency = 4
	rawSuffix      = ".raw.json"
)

// RawPage is what the scraper keeps of one program page.
type RawPage struct {
	Slug           string   `json:"slug"`
	URL            string   `json:"url"`
	Text           string   `json:"text"`
	PlanCandidates []string `json:"plan_candidates"`
}

// Scraper downloads the configured program pages into OutputDir.
type Scraper struct {
	client    *http.Client
	programs  map[string]string
	outputDir string
	userAgent string
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

// NewScraper builds a scraper from cfg. A nil client gets a default one with
// cfg.Timeout.
func NewScraper(cfg config.ScraperConfig, client *http.Client) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Scraper{
		client:    client,
		programs:  cfg.Programs,
		outputDir: cfg.OutputDir,
		userAgent: cfg.UserAgent,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: 500 * time.Millisecond,
		},
		logger: slog.Default().With("component", "scraper"),
	}
}

// ScrapeAll fetches every configured program concurrently and writes one
// <slug>.raw.json per page. The first failure cancels the rest.
func (s *Scraper) ScrapeAll(ctx context.Context) ([]RawPage, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", s.outputDir, err)
	}

	slugs := make([]string, 0, len(s.programs))
	for slug := range s.programs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	pages := make([]RawPage, len(slugs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, slug := range slugs {
		g.Go(func() error {
			page, err := s.Scrape(gctx, slug, s.programs[slug])
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Info("scrape complete", "pages", len(pages), "output_dir", s.outputDir)
	return pages, nil
}

// Scrape fetches one page, extracts its text and plan links, and saves it.
func (s *Scraper) Scrape(ctx context.Context, slug, pageURL string) (RawPage, error) {
	start := time.Now()
	body, err := resilience.RetryValue(ctx, "fetch "+slug, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.fetch(ctx, pageURL)
	})
	if err != nil {
		return RawPage{}, fmt.Errorf("fetching %s: %w", slug, err)
	}

	text, err := ExtractVisibleText(bytes.NewReader(body))
	if err != nil {
		return RawPage{}, fmt.Errorf("extracting text for %s: %w", slug, err)
	}
	links, err := FindPlanLinks(bytes.NewReader(body), pageURL)
	if err != nil {
		return RawPage{}, fmt.Errorf("finding plan links for %s: %w", slug, err)
	}

	page := RawPage{Slug: slug, URL: pageURL, Text: text, PlanCandidates: links}
	if err := WriteRawPage(s.outputDir, page); err != nil {
		return RawPage{}, err
	}
	s.logger.Info("program page scraped",
		"slug", slug,
		"bytes", len(body),
		"text_chars", len([]rune(text)),
		"plan_candidates", len(links),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return page, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// WriteRawPage stores page as <dir>/<slug>.raw.json, replacing any previous
// copy atomically.
func WriteRawPage(dir string, page RawPage) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(page); err != nil {
		return fmt.Errorf("encoding raw page %s: %w", page.Slug, err)
	}

	path := RawPagePath(dir, page.Slug)
	tmp, err := os.CreateTemp(dir, page.Slug+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", page.Slug, err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

func RawPagePath(dir, slug string) string {
	return filepath.Join(dir, slug+rawSuffix)
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadRawPage reads a page saved by WriteRawPage. A missing file is
// ErrNotFound; a slug that could escape dir is ErrInvalidInput.
func LoadRawPage(dir, slug string) (RawPage, error) {
	if !slugPattern.MatchString(slug) {
		return RawPage{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"invalid program slug %q", slug)
	}
	data, err := os.ReadFile(RawPagePath(dir, slug))
	if errors.Is(err, fs.ErrNotExist) {
		return RawPage{}, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound,
			"no scraped page for %q", slug)
	}
	if err != nil {
		return RawPage{}, fmt.Errorf("reading raw page %s: %w", slug, err)
	}
	var page RawPage
	if err := json.Unmarshal(data, &page); err != nil {
		return RawPage{}, fmt.Errorf("decoding raw page %s: %w", slug, err)
	}
	return page, nil
}

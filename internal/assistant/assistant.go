// Package assistant answers applicant questions about the master's programs
// on top of the search index and the program catalog.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/acquisition"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/recommender"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

// Searcher is the part of the query executor the assistant needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]ranker.ScoredDoc, error)
}

// topicKeywords are lowercase stems; a question must contain one of them to
// be answered.
var topicKeywords = []string{
	"вступ", "экзамен", "стоим", "оплат", "бюдж", "план", "учеб", "предмет",
	"курс", "семестр", "формат", "онлайн", "очно", "карьера", "роль", "роля",
	"проекты", "стипенд", "общежит", "компания", "партнер", "вкр", "магистр",
	"магистратур", "программа", "ai product", "искусствен",
}

// OnTopic reports whether question is about admissions or study.
func OnTopic(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range topicKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

type Assistant struct {
	searcher Searcher
	catalog  atomic.Pointer[corpus.Catalog]
	askLimit int
	dataDir  string
	logger   *slog.Logger
}

// New returns an assistant answering from searcher and catalog. Raw scraped
// pages for Plan are read from dataDir.
func New(searcher Searcher, catalog *corpus.Catalog, askLimit int, dataDir string) *Assistant {
	if askLimit <= 0 {
		askLimit = 3
	}
	if catalog == nil {
		catalog = corpus.NewCatalog(nil)
	}
	a := &Assistant{
		searcher: searcher,
		askLimit: askLimit,
		dataDir:  dataDir,
		logger:   slog.Default().With("component", "assistant"),
	}
	a.catalog.Store(catalog)
	return a
}

// SetCatalog publishes the catalog of a freshly rebuilt corpus.
func (a *Assistant) SetCatalog(c *corpus.Catalog) {
	a.catalog.Store(c)
}

func (a *Assistant) Catalog() *corpus.Catalog {
	return a.catalog.Load()
}

// Fact is what the assistant says about one matching program.
type Fact struct {
	Slug  string   `json:"slug"`
	Title string   `json:"title"`
	Notes []string `json:"notes"`
	Score float64  `json:"score"`
}

type Answer struct {
	Question string             `json:"question"`
	Facts    []Fact             `json:"facts"`
	Hits     []ranker.ScoredDoc `json:"hits"`
}

// Text renders the answer one program per line.
func (a *Answer) Text() string {
	if len(a.Facts) == 0 {
		return "Nothing in the program facts matches this question."
	}
	lines := make([]string, len(a.Facts))
	for i, f := range a.Facts {
		lines[i] = "* " + f.Title + ": " + strings.Join(f.Notes, "; ")
	}
	return strings.Join(lines, "\n")
}

// Ask searches the program facts for question. Empty questions are
// ErrInvalidInput and questions outside admissions and study are ErrOffTopic.
// Hits that are not catalog programs, such as scraped pages, are listed in
// Hits but produce no Fact.
func (a *Assistant) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"question is empty")
	}
	if !OnTopic(question) {
		return nil, apperrors.New(apperrors.ErrOffTopic, http.StatusUnprocessableEntity,
			"only questions about admissions and study at the two programs are answered")
	}

	start := time.Now()
	hits, err := a.searcher.Search(ctx, question, a.askLimit)
	if err != nil {
		return nil, fmt.Errorf("searching program facts: %w", err)
	}

	catalog := a.catalog.Load()
	facts := make([]Fact, 0, len(hits))
	for _, h := range hits {
		p, ok := catalog.Lookup(h.DocID)
		if !ok {
			continue
		}
		facts = append(facts, Fact{Slug: p.Slug, Title: p.Title, Notes: p.Notes, Score: h.Score})
	}
	a.logger.Debug("question answered",
		"hits", len(hits),
		"facts", len(facts),
		"duration", time.Since(start),
	)
	return &Answer{Question: question, Facts: facts, Hits: hits}, nil
}

// Recommendation is the elective list for one program.
type Recommendation struct {
	Program   string              `json:"program"`
	Profile   recommender.Profile `json:"profile"`
	Electives []string            `json:"electives"`
}

func (a *Assistant) Recommend(profile recommender.Profile, program string) (*Recommendation, error) {
	if err := recommender.Validate(program); err != nil {
		return nil, err
	}
	return &Recommendation{
		Program:   program,
		Profile:   profile,
		Electives: recommender.Recommend(profile, program),
	}, nil
}

// PlanInfo lists the study-plan links found on a program's scraped page.
type PlanInfo struct {
	Slug       string   `json:"slug"`
	PageURL    string   `json:"page_url"`
	Candidates []string `json:"candidates"`
	PDFs       []string `json:"pdfs"`
}

// Plan reports the study-plan links for slug. ErrNotFound means the page has
// not been scraped yet.
func (a *Assistant) Plan(slug string) (*PlanInfo, error) {
	page, err := acquisition.LoadRawPage(a.dataDir, slug)
	if err != nil {
		return nil, err
	}
	info := &PlanInfo{
		Slug:       slug,
		PageURL:    page.URL,
		Candidates: page.PlanCandidates,
		PDFs:       make([]string, 0),
	}
	if info.Candidates == nil {
		info.Candidates = make([]string, 0)
	}
	for _, link := range page.PlanCandidates {
		if strings.Contains(strings.ToLower(link), ".pdf") {
			info.PDFs = append(info.PDFs, link)
		}
	}
	return info, nil
}

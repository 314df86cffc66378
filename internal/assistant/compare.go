package assistant

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

// DefaultComparison is the program pair compared when none is named.
var DefaultComparison = []string{"ai", "ai_product"}

type ProgramSummary struct {
	Slug              string   `json:"slug"`
	Title             string   `json:"title"`
	Format            string   `json:"format"`
	TuitionPerYearRub int64    `json:"tuition_per_year_rub"`
	CareerRoles       []string `json:"career_roles"`
}

type Comparison struct {
	Programs []ProgramSummary `json:"programs"`
}

// Compare summarises the named programs side by side, defaulting to
// DefaultComparison. Every slug must be in the catalog.
func (a *Assistant) Compare(slugs ...string) (*Comparison, error) {
	if len(slugs) == 0 {
		slugs = DefaultComparison
	}
	catalog := a.catalog.Load()
	out := &Comparison{Programs: make([]ProgramSummary, 0, len(slugs))}
	for _, slug := range slugs {
		p, ok := catalog.Lookup(slug)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound,
				"program %q is not in the catalog", slug)
		}
		out.Programs = append(out.Programs, summarize(p))
	}
	return out, nil
}

func summarize(p corpus.Program) ProgramSummary {
	roles := p.CareerRoles
	if roles == nil {
		roles = []string{}
	}
	return ProgramSummary{
		Slug:              p.Slug,
		Title:             p.Title,
		Format:            p.Format,
		TuitionPerYearRub: p.TuitionPerYearRub,
		CareerRoles:       roles,
	}
}

// Text renders the comparison grouped by attribute.
func (c *Comparison) Text() string {
	var b strings.Builder
	section := func(name string, value func(ProgramSummary) string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name + "\n")
		for _, p := range c.Programs {
			b.WriteString("  " + p.Title + ": " + value(p) + "\n")
		}
	}
	section("Format", func(p ProgramSummary) string { return orDash(p.Format) })
	section("Tuition", func(p ProgramSummary) string {
		if p.TuitionPerYearRub == 0 {
			return "-"
		}
		return groupThousands(p.TuitionPerYearRub) + " RUB / year"
	})
	section("Career roles", func(p ProgramSummary) string { return orDash(strings.Join(p.CareerRoles, ", ")) })
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// groupThousands formats n with comma thousand separators.
func groupThousands(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

// Package corpus assembles the documents the search index is built from.
// Program records come from JSON files in a data directory or from a SQL
// table; other JSON blobs are indexed verbatim as fallback documents.
package corpus

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/index"
)

// Program is the structured description of one master's program.
type Program struct {
	Slug              string   `json:"slug"`
	Title             string   `json:"title"`
	Format            string   `json:"format,omitempty"`
	TuitionPerYearRub int64    `json:"tuition_per_year_rub,omitempty"`
	CareerRoles       []string `json:"career_roles,omitempty"`
	Notes             []string `json:"notes,omitempty"`
	FAQ               []string `json:"faq,omitempty"`
}

// Document renders the program as an index document: the title, then every
// note, then every FAQ entry.
func (p Program) Document() index.Document {
	return index.Document{
		ID: p.Slug,
		Text: strings.Join([]string{
			p.Title,
			strings.Join(p.Notes, " "),
			strings.Join(p.FAQ, " "),
		}, " "),
	}
}

// Catalog keeps programs in load order and by slug.
type Catalog struct {
	programs []Program
	bySlug   map[string]int
}

func NewCatalog(programs []Program) *Catalog {
	c := &Catalog{bySlug: make(map[string]int, len(programs))}
	for _, p := range programs {
		c.add(p)
	}
	return c
}

// add keeps the first record for a slug; the duplicate still reaches the
// index, which rejects it.
func (c *Catalog) add(p Program) {
	if _, ok := c.bySlug[p.Slug]; ok {
		return
	}
	c.bySlug[p.Slug] = len(c.programs)
	c.programs = append(c.programs, p)
}

func (c *Catalog) Lookup(slug string) (Program, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Program{}, false
	}
	return c.programs[i], true
}

func (c *Catalog) Programs() []Program {
	out := make([]Program, len(c.programs))
	copy(out, c.programs)
	return out
}

func (c *Catalog) Len() int {
	return len(c.programs)
}

// Corpus is one loaded snapshot: the documents to index, in order, and the
// program catalog they were derived from.
type Corpus struct {
	Documents []index.Document
	Catalog   *Catalog
}

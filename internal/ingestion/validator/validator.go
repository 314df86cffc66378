// Package validator checks program batches before they are written to the
// corpus and returns per-field error details.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion"
)

const (
	maxPrograms    = 100
	maxTitleLength = 512
	maxTextLength  = 65536
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidationError holds per-field validation failure messages, keyed like
// "programs[1].slug".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest rejects empty or oversized batches, malformed slugs,
// missing titles and slugs repeated within the batch.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)
	switch {
	case len(req.Programs) == 0:
		errs["programs"] = "at least one program is required"
	case len(req.Programs) > maxPrograms:
		errs["programs"] = fmt.Sprintf("at most %d programs per request", maxPrograms)
	}

	seen := make(map[string]int, len(req.Programs))
	for i, p := range req.Programs {
		field := fmt.Sprintf("programs[%d]", i)
		if !slugPattern.MatchString(p.Slug) {
			errs[field+".slug"] = "slug must be lowercase letters, digits, '_' or '-'"
		} else if first, dup := seen[p.Slug]; dup {
			errs[field+".slug"] = fmt.Sprintf("slug %q repeats programs[%d]", p.Slug, first)
		} else {
			seen[p.Slug] = i
		}

		title := strings.TrimSpace(p.Title)
		if title == "" {
			errs[field+".title"] = "title is required"
		} else if utf8.RuneCountInString(title) > maxTitleLength {
			errs[field+".title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
		}
		if p.TuitionPerYearRub < 0 {
			errs[field+".tuition_per_year_rub"] = "tuition must not be negative"
		}
		if textLength(p) > maxTextLength {
			errs[field] = fmt.Sprintf("notes and faq must total at most %d characters", maxTextLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func textLength(p corpus.Program) int {
	n := 0
	for _, s := range p.Notes {
		n += utf8.RuneCountInString(s)
	}
	for _, s := range p.FAQ {
		n += utf8.RuneCountInString(s)
	}
	return n
}

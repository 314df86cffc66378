package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/ingestion"
)

func TestValidateAcceptsWellFormedBatch(t *testing.T) {
	req := &ingestion.IngestRequest{Programs: []corpus.Program{
		{Slug: "ai", Title: "Искусственный интеллект"},
		{Slug: "ai_product", Title: "AI Product", TuitionPerYearRub: 599000},
	}}
	assert.NoError(t, ValidateIngestRequest(req))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		req   ingestion.IngestRequest
		field string
	}{
		{"empty batch", ingestion.IngestRequest{}, "programs"},
		{"bad slug", ingestion.IngestRequest{Programs: []corpus.Program{{Slug: "AI Product", Title: "x"}}}, "programs[0].slug"},
		{"missing title", ingestion.IngestRequest{Programs: []corpus.Program{{Slug: "ai", Title: "  "}}}, "programs[0].title"},
		{"negative tuition", ingestion.IngestRequest{Programs: []corpus.Program{{Slug: "ai", Title: "x", TuitionPerYearRub: -1}}}, "programs[0].tuition_per_year_rub"},
		{"duplicate slug", ingestion.IngestRequest{Programs: []corpus.Program{{Slug: "ai", Title: "x"}, {Slug: "ai", Title: "y"}}}, "programs[1].slug"},
		{"oversized text", ingestion.IngestRequest{Programs: []corpus.Program{{Slug: "ai", Title: "x", Notes: []string{strings.Repeat("я", maxTextLength+1)}}}}, "programs[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	assert.Equal(t, "a:first; b:second", err.Error())
}

// Package index builds the immutable inverted index the scorer ranks against.
// An Index is derived once from a complete corpus snapshot and never mutated;
// rebuilding means calling Build again and publishing the new value.
package index

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/errors"
)

// Index holds per-document term sequences, document frequencies, posting
// lists and corpus statistics. All methods are safe for concurrent use
// because nothing is written after Build returns.
type Index struct {
	docs         []Document
	tokenized    [][]string
	docFreq      map[string]int
	postings     map[string]PostingList
	totalTokens  int
	avgDocLength float64
}

// Stats summarises an Index for health and admin endpoints.
type Stats struct {
	Documents    int     `json:"documents"`
	Terms        int     `json:"terms"`
	TotalTokens  int     `json:"total_tokens"`
	AvgDocLength float64 `json:"avg_doc_length"`
	Degenerate   bool    `json:"degenerate"`
}

// Build tokenises every document once and derives the index. Two documents
// sharing an ID fail the build with ErrDuplicateDocument. An empty corpus is
// not an error: the result is a degenerate index that matches nothing.
func Build(docs []Document) (*Index, error) {
	idx := &Index{
		docs:      make([]Document, len(docs)),
		tokenized: make([][]string, len(docs)),
		docFreq:   make(map[string]int),
		postings:  make(map[string]PostingList),
	}
	copy(idx.docs, docs)

	seen := make(map[string]int, len(docs))
	for i, doc := range docs {
		if first, dup := seen[doc.ID]; dup {
			return nil, apperrors.Newf(apperrors.ErrDuplicateDocument, 409,
				"document id %q appears at positions %d and %d", doc.ID, first, i)
		}
		seen[doc.ID] = i

		terms := tokenizer.Tokenize(doc.Text)
		idx.tokenized[i] = terms
		idx.totalTokens += len(terms)

		freqs := make(map[string]int)
		order := make([]string, 0)
		for _, term := range terms {
			if _, ok := freqs[term]; !ok {
				order = append(order, term)
			}
			freqs[term]++
		}
		for _, term := range order {
			idx.docFreq[term]++
			idx.postings[term] = append(idx.postings[term], Posting{
				Doc:       i,
				Frequency: freqs[term],
			})
		}
	}
	if len(docs) > 0 {
		idx.avgDocLength = float64(idx.totalTokens) / float64(len(docs))
	}

	slog.Default().With("component", "index").Debug("index built",
		"documents", len(docs),
		"terms", len(idx.docFreq),
		"total_tokens", idx.totalTokens,
		"avg_doc_length", idx.avgDocLength,
	)
	return idx, nil
}

// MustBuild is Build for fixtures whose IDs are known to be unique.
func MustBuild(docs []Document) *Index {
	idx, err := Build(docs)
	if err != nil {
		panic(fmt.Sprintf("index.MustBuild: %v", err))
	}
	return idx
}

// DocumentCount returns N, the number of indexed documents.
func (idx *Index) DocumentCount() int {
	return len(idx.docs)
}

// Degenerate reports whether the index can produce no matches at all.
func (idx *Index) Degenerate() bool {
	return len(idx.docs) == 0 || idx.avgDocLength == 0
}

// Document returns the document at ordinal i.
func (idx *Index) Document(i int) Document {
	return idx.docs[i]
}

// Terms returns the term sequence of document i. Callers must not modify it.
func (idx *Index) Terms(i int) []string {
	return idx.tokenized[i]
}

// DocLength returns the number of terms in document i.
func (idx *Index) DocLength(i int) int {
	return len(idx.tokenized[i])
}

// DocumentFrequency returns how many documents contain term at least once.
func (idx *Index) DocumentFrequency(term string) int {
	return idx.docFreq[term]
}

// Postings returns the documents containing term, in insertion order.
// Callers must not modify the returned slice.
func (idx *Index) Postings(term string) PostingList {
	return idx.postings[term]
}

// AverageDocumentLength is the mean term count across documents, or 0 for an
// empty corpus.
func (idx *Index) AverageDocumentLength() float64 {
	return idx.avgDocLength
}

func (idx *Index) Stats() Stats {
	return Stats{
		Documents:    len(idx.docs),
		Terms:        len(idx.docFreq),
		TotalTokens:  idx.totalTokens,
		AvgDocLength: idx.avgDocLength,
		Degenerate:   idx.Degenerate(),
	}
}

package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/parser"
)

const (
	DefaultK1 = 1.6
	DefaultB  = 0.75
)

// Params are the BM25 tuning constants: K1 controls term-frequency
// saturation, B the strength of document-length normalisation.
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// DocScore is the raw score of one document, identified by its ordinal in the
// index.
type DocScore struct {
	Doc   int
	DocID string
	Score float64
}

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Score computes the BM25 score of every document in idx against query. The
// result is in insertion order and includes documents scoring zero. Each
// distinct query term contributes once; terms missing from the corpus
// contribute nothing.
func Score(query string, idx *index.Index, params Params) []DocScore {
	return ScoreTerms(parser.Terms(query), idx, params)
}

// ScoreTerms is Score for an already parsed, deduplicated term list.
func ScoreTerms(terms []string, idx *index.Index, params Params) []DocScore {
	n := idx.DocumentCount()
	scores := make([]DocScore, n)
	for i := 0; i < n; i++ {
		scores[i] = DocScore{Doc: i, DocID: idx.Document(i).ID}
	}
	if idx.Degenerate() {
		return scores
	}

	totalDocs := int64(n)
	avgDocLength := idx.AverageDocumentLength()
	for _, term := range terms {
		postings := idx.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := computeIDF(totalDocs, int64(idx.DocumentFrequency(term)))
		for _, posting := range postings {
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(idx.DocLength(posting.Doc)),
				avgDocLength,
				params,
			)
			scores[posting.Doc].Score += idf * tfNorm
		}
	}
	return scores
}

// Rank keeps documents with a strictly positive score, orders them by score
// descending with ties broken by insertion order, and truncates to limit.
// A limit <= 0 keeps every positive result.
func Rank(scores []DocScore, limit int) []ScoredDoc {
	positive := make([]DocScore, 0, len(scores))
	for _, s := range scores {
		if s.Score > 0 {
			positive = append(positive, s)
		}
	}
	sort.Slice(positive, func(i, j int) bool {
		if positive[i].Score != positive[j].Score {
			return positive[i].Score > positive[j].Score
		}
		return positive[i].Doc < positive[j].Doc
	})
	if limit > 0 && len(positive) > limit {
		positive = positive[:limit]
	}
	result := make([]ScoredDoc, len(positive))
	for i, s := range positive {
		result[i] = ScoredDoc{DocID: s.DocID, Score: s.Score}
	}
	return result
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64, params Params) float64 {
	if avgDocLength == 0 || termFreq == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + params.K1*(1-params.B+params.B*lengthRatio)
	return (termFreq * (params.K1 + 1)) / denominator
}

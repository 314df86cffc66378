// Package parser turns a raw query string into the plan the executor scores.
// Queries are bags of words: there are no operators, every distinct term
// contributes to the score once.
package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/tokenizer"
)

type QueryPlan struct {
	Terms    []string
	RawQuery string
}

func Parse(query string) *QueryPlan {
	return &QueryPlan{
		Terms:    Terms(query),
		RawQuery: query,
	}
}

// Empty reports whether the query produced no terms, in which case nothing
// can match.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Normalized is a canonical form of the plan: two queries with the same set
// of terms share it regardless of case, punctuation or word order.
func (p *QueryPlan) Normalized() string {
	terms := make([]string, len(p.Terms))
	copy(terms, p.Terms)
	sort.Strings(terms)
	return strings.Join(terms, ",")
}

// Terms tokenises query and drops repeated terms, keeping first occurrences
// in order.
func Terms(query string) []string {
	tokens := tokenizer.Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// Package tokenizer provides text tokenisation for the search engine.
// It normalises input to NFC, lower-cases it and extracts maximal runs of
// Latin letters, Cyrillic letters and ASCII digits. Runs shorter than two
// characters are discarded. Queries and documents must go through the same
// function, otherwise their terms never meet.
package tokenizer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinTermLength is the shortest run, in characters, kept as a term.
const MinTermLength = 2

// Tokenize breaks text into an ordered slice of lowercased terms. Duplicates
// are kept; an empty or punctuation-only text yields an empty slice.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !IsTermRune(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < MinTermLength {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// IsTermRune reports whether r belongs to the term alphabet. It expects an
// already lower-cased rune.
func IsTermRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 'а' && r <= 'я':
		return true
	case r == 'ё':
		return true
	}
	return false
}

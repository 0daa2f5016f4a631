// Package tokenizer provides text tokenisation for the search engine.
// A term is a maximal run of ASCII letters and digits, lower-cased; every
// other rune, including non-ASCII letters, separates terms.
package tokenizer

import "strings"

// Tokenize breaks text into an ordered slice of lower-cased terms.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !isTermRune(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		tokens = append(tokens, strings.ToLower(word))
	}
	return tokens
}

// Frequencies counts occurrences of each term in tokens.
func Frequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens)/2+1)
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

func isTermRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

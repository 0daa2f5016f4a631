package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases", "Hello World", []string{"hello", "world"}},
		{"digits are terms", "BM25 in 2024", []string{"bm25", "in", "2024"}},
		{"punctuation splits", "foo-bar_baz.qux", []string{"foo", "bar", "baz", "qux"}},
		{"non ascii letters split", "café naïve", []string{"caf", "na", "ve"}},
		{"keeps duplicates in order", "apple banana apple", []string{"apple", "banana", "apple"}},
		{"single characters kept", "a b 1", []string{"a", "b", "1"}},
		{"empty", "", []string{}},
		{"whitespace only", "   \t\n", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	text := "The quick brown fox; the QUICK brown dog."
	assert.Equal(t, Tokenize(text), Tokenize(text))
}

func TestFrequencies(t *testing.T) {
	freq := Frequencies(Tokenize("apple banana apple"))
	assert.Equal(t, map[string]int{"apple": 2, "banana": 1}, freq)
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. The inverted index maps each term to the documents containing it.
        BM25 ranking considers term frequency, document length normalization,
        and inverse document frequency to produce relevance scores. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

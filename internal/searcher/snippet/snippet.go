// Package snippet renders the highlighted text excerpt shown under each
// search result.
package snippet

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	DefaultWidth = 240
	Ellipsis     = "…"
	openMark     = "<mark>"
	closeMark    = "</mark>"
)

// entityRe matches the character references produced by html.EscapeString.
var entityRe = regexp.MustCompile(`&(?:#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z]+);`)

// Make cuts a window of width runes around the earliest occurrence of any
// term, HTML-escapes it and wraps whole-word occurrences of every term in
// <mark> tags. The window starts a quarter width before the hit. An ellipsis
// marks each side where the window does not reach the end of text. width <= 0
// means DefaultWidth.
func Make(text string, terms []string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	total := utf8.RuneCountInString(text)
	start := FirstHit(text, terms) - width/4
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > total {
		end = total
	}

	chunk := runeSlice(text, start, end)
	out := Highlight(html.EscapeString(chunk), terms)
	if start > 0 {
		out = Ellipsis + out
	}
	if end < total {
		out += Ellipsis
	}
	return out
}

// FirstHit returns the rune offset of the earliest case-insensitive
// substring occurrence of any term in text, or 0 when none occurs.
func FirstHit(text string, terms []string) int {
	best := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		if i := indexFold(text, term); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return utf8.RuneCountInString(text[:best])
}

// Highlight wraps whole-word, case-insensitive occurrences of each distinct
// term in escaped with <mark> tags, longest terms first. Text already inside
// a mark and character references are left alone.
func Highlight(escaped string, terms []string) string {
	segs := split(escaped)
	for _, term := range distinctByLength(terms) {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		next := make([]segment, 0, len(segs))
		for _, seg := range segs {
			if seg.protected {
				next = append(next, seg)
				continue
			}
			next = append(next, mark(seg.text, re)...)
		}
		segs = next
	}

	var b strings.Builder
	b.Grow(len(escaped) + 16)
	for _, seg := range segs {
		b.WriteString(seg.text)
	}
	return b.String()
}

type segment struct {
	text      string
	protected bool
}

// split separates character references from plain text.
func split(escaped string) []segment {
	var segs []segment
	last := 0
	for _, loc := range entityRe.FindAllStringIndex(escaped, -1) {
		if loc[0] > last {
			segs = append(segs, segment{text: escaped[last:loc[0]]})
		}
		segs = append(segs, segment{text: escaped[loc[0]:loc[1]], protected: true})
		last = loc[1]
	}
	if last < len(escaped) {
		segs = append(segs, segment{text: escaped[last:]})
	}
	return segs
}

func mark(text string, re *regexp.Regexp) []segment {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []segment{{text: text}}
	}
	segs := make([]segment, 0, 2*len(locs)+1)
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			segs = append(segs, segment{text: text[last:loc[0]]})
		}
		segs = append(segs, segment{
			text:      openMark + text[loc[0]:loc[1]] + closeMark,
			protected: true,
		})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, segment{text: text[last:]})
	}
	return segs
}

func distinctByLength(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i]) > utf8.RuneCountInString(out[j])
	})
	return out
}

// indexFold is strings.Index with ASCII case folding. Terms are ASCII, so
// byte offsets never land inside a multi-byte rune.
func indexFold(s, term string) int {
	n := len(term)
	for i := 0; i+n <= len(s); i++ {
		match := true
		for j := 0; j < n; j++ {
			if lower(s[i+j]) != lower(term[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// runeSlice returns text[start:end] measured in runes.
func runeSlice(text string, start, end int) string {
	from, to := len(text), len(text)
	n := 0
	for i := range text {
		if n == start {
			from = i
		}
		if n == end {
			to = i
			break
		}
		n++
	}
	if from > to {
		return ""
	}
	return text[from:to]
}

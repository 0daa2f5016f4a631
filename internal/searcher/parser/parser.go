package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/tokenizer"
)

// QueryPlan is a tokenised query. Terms keep their order and duplicates;
// a term repeated in the query weighs proportionally more in scoring.
type QueryPlan struct {
	Terms    []string
	RawQuery string
}

func Parse(query string) *QueryPlan {
	return &QueryPlan{
		Terms:    tokenizer.Tokenize(query),
		RawQuery: query,
	}
}

// Empty reports whether the query produced no terms.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Normalized returns a canonical form of the plan. Queries that rank and
// highlight identically share it: term order is irrelevant, multiplicity is
// not.
func (p *QueryPlan) Normalized() string {
	terms := make([]string, len(p.Terms))
	copy(terms, p.Terms)
	sort.Strings(terms)
	return strings.Join(terms, ",")
}

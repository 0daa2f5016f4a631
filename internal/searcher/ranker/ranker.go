package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
)

const (
	DefaultK1    = 1.5
	DefaultB     = 0.75
	DefaultLimit = 20
)

// ScoredDoc is a ranked document reference. Score is unrounded.
type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Params holds the BM25 tuning constants.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns k1=1.5, b=0.75.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Score computes the BM25 score of one document for the query terms.
// Repeated query terms contribute once per occurrence. A document containing
// none of the terms scores exactly 0.
func Score(snap *index.Snapshot, terms []string, docID int, p Params) float64 {
	doc, ok := snap.Document(docID)
	if !ok {
		return 0
	}
	var score float64
	for _, term := range terms {
		tf := snap.TermFrequency(docID, term)
		if tf == 0 {
			continue
		}
		score += snap.IDF(term) * computeTFNorm(float64(tf), float64(doc.Length), snap.AvgDocLength(), p)
	}
	return score
}

// Rank scores every document that holds at least one query term, drops
// non-positive scores and returns the best limit documents by descending
// score, ties broken by ascending id. limit <= 0 means DefaultLimit.
//
// Documents outside the postings of every term would score 0 and be dropped,
// so only posting candidates are visited.
func Rank(snap *index.Snapshot, terms []string, p Params, limit int) []ScoredDoc {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(terms) == 0 || snap.Len() == 0 {
		return []ScoredDoc{}
	}

	candidates := make(map[int]struct{})
	for _, term := range terms {
		for _, posting := range snap.Postings(term) {
			candidates[posting.DocID] = struct{}{}
		}
	}

	top := newTopK(limit)
	for docID := range candidates {
		score := Score(snap, terms, docID, p)
		if score <= 0 {
			continue
		}
		top.offer(ScoredDoc{DocID: docID, Score: score})
	}
	return top.sorted()
}

func computeTFNorm(termFreq, docLength, avgDocLength float64, p Params) float64 {
	if docLength < 1 {
		docLength = 1
	}
	var lengthRatio float64
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (termFreq * (p.K1 + 1)) / denominator
}

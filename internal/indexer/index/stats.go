package index

import "math"

// IDF is the BM25 inverse document frequency with the +1 inside the log,
// which keeps it non-negative for any docFreq <= totalDocs.
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// AvgDocLength returns the mean of lengths, or 0 for none.
func AvgDocLength(lengths []int) float64 {
	if len(lengths) == 0 {
		return 0
	}
	var total int64
	for _, l := range lengths {
		total += int64(l)
	}
	return float64(total) / float64(len(lengths))
}

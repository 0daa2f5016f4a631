package index

import "time"

// Document is one indexed file. Its ID is only meaningful within the
// Snapshot that created it.
type Document struct {
	ID      int
	Path    string
	Title   string
	Text    string
	Length  int
	ModTime time.Time
}

type Posting struct {
	DocID     int
	Frequency int
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

type TermStats struct {
	DocFreq int
	IDF     float64
}

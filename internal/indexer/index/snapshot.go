package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
	"time"
)

// Snapshot is an immutable inverted index over one point-in-time scan of
// the corpus. All methods are safe for concurrent use because nothing is
// ever written after construction.
type Snapshot struct {
	root        string
	version     uint64
	builtAt     time.Time
	docs        []Document
	termFreqs   []map[string]int
	postings    map[string]PostingList
	stats       map[string]TermStats
	avgDocLen   float64
	files       map[string]time.Time
	fingerprint string
}

// Empty returns a snapshot with no documents, used before the first build.
func Empty(root string) *Snapshot {
	return newSnapshot(root, 0, time.Time{}, nil, nil)
}

// newSnapshot derives postings, document frequencies, IDF and average length
// from the per-document tables. docs[i].ID must equal i.
func newSnapshot(root string, version uint64, builtAt time.Time, docs []Document, termFreqs []map[string]int) *Snapshot {
	s := &Snapshot{
		root:      root,
		version:   version,
		builtAt:   builtAt,
		docs:      docs,
		termFreqs: termFreqs,
		postings:  make(map[string]PostingList),
		stats:     make(map[string]TermStats),
		files:     make(map[string]time.Time, len(docs)),
	}

	lengths := make([]int, len(docs))
	for i, doc := range docs {
		lengths[i] = doc.Length
		s.files[doc.Path] = doc.ModTime
		for term, freq := range termFreqs[i] {
			s.postings[term] = append(s.postings[term], Posting{DocID: doc.ID, Frequency: freq})
		}
	}
	s.avgDocLen = AvgDocLength(lengths)

	n := len(docs)
	for term, postings := range s.postings {
		s.stats[term] = TermStats{
			DocFreq: len(postings),
			IDF:     IDF(n, len(postings)),
		}
	}
	s.fingerprint = fingerprint(docs)
	return s
}

func (s *Snapshot) Root() string          { return s.root }
func (s *Snapshot) Version() uint64       { return s.version }
func (s *Snapshot) BuiltAt() time.Time    { return s.builtAt }
func (s *Snapshot) Len() int              { return len(s.docs) }
func (s *Snapshot) TermCount() int        { return len(s.stats) }
func (s *Snapshot) AvgDocLength() float64 { return s.avgDocLen }

// Fingerprint identifies the indexed content. Two builds over an unchanged
// corpus share a fingerprint, in this process or any other.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// Documents returns the documents ordered by ID. Callers must not modify
// the returned slice.
func (s *Snapshot) Documents() []Document {
	return s.docs
}

// Document returns the document with the given id.
func (s *Snapshot) Document(id int) (Document, bool) {
	if id < 0 || id >= len(s.docs) {
		return Document{}, false
	}
	return s.docs[id], true
}

// TermFrequency returns the raw count of term in document id, 0 when absent.
func (s *Snapshot) TermFrequency(id int, term string) int {
	if id < 0 || id >= len(s.termFreqs) {
		return 0
	}
	return s.termFreqs[id][term]
}

// TermFrequencies returns a copy of the frequency table of document id.
func (s *Snapshot) TermFrequencies(id int) map[string]int {
	if id < 0 || id >= len(s.termFreqs) {
		return nil
	}
	out := make(map[string]int, len(s.termFreqs[id]))
	for term, freq := range s.termFreqs[id] {
		out[term] = freq
	}
	return out
}

// Stats returns the document frequency and IDF of term.
func (s *Snapshot) Stats(term string) (TermStats, bool) {
	st, ok := s.stats[term]
	return st, ok
}

// IDF returns the inverse document frequency of term, 0 for unseen terms.
func (s *Snapshot) IDF(term string) float64 {
	return s.stats[term].IDF
}

// Postings returns the documents containing term, ordered by DocID.
// Callers must not modify the returned slice.
func (s *Snapshot) Postings(term string) PostingList {
	return s.postings[term]
}

// Files returns the (path, modification time) set the snapshot was built
// from, including eligible files that failed to load. Callers must not
// modify the returned map.
func (s *Snapshot) Files() map[string]time.Time {
	return s.files
}

// fingerprint hashes path, modification time and text of every document
// in path order, so it changes whenever indexed content does, even when a
// modification time does not.
func fingerprint(docs []Document) string {
	ordered := make([]Document, len(docs))
	copy(ordered, docs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	h := sha256.New()
	var size [8]byte
	for _, doc := range ordered {
		h.Write([]byte(doc.Path))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(doc.ModTime.UnixNano(), 10)))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(size[:], uint64(len(doc.Text)))
		h.Write(size[:])
		h.Write([]byte(doc.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventRebuild    EventType = "rebuild"
)

type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Terms        []string  `json:"terms"`
	TotalHits    int       `json:"total_hits"`
	Returned     int       `json:"returned"`
	LatencyMs    float64   `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	IndexVersion uint64    `json:"index_version"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

type RebuildEvent struct {
	Type       EventType `json:"type"`
	Documents  int       `json:"documents"`
	Skipped    int       `json:"skipped"`
	Terms      int       `json:"terms"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key is the partition key used when events leave the process.
func (e SearchEvent) Key() string { return string(e.Type) }

func (e RebuildEvent) Key() string { return string(e.Type) }

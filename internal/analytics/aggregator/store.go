// Package aggregator persists periodic snapshots of the in-memory analytics
// stats to PostgreSQL so they survive restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/resilience"
)

const schema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	root        TEXT NOT NULL,
	data        JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_root_time
	ON analytics_snapshots (root, captured_at DESC);`

const insertSnapshot = `INSERT INTO analytics_snapshots (root, data, captured_at) VALUES ($1, $2, $3)`

// pruneSnapshots deletes everything older than the newest $2 rows for a root.
const pruneSnapshots = `DELETE FROM analytics_snapshots
	WHERE root = $1 AND id NOT IN (
		SELECT id FROM analytics_snapshots WHERE root = $1
		ORDER BY captured_at DESC, id DESC LIMIT $2
	)`

// Store persists aggregated analytics snapshots for one corpus root.
type Store struct {
	db        *postgres.Client
	root      string
	retention int
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

// NewStore keeps at most retention snapshots for root; 0 keeps all.
func NewStore(db *postgres.Client, root string, retention int) *Store {
	return &Store{
		db:        db,
		root:      root,
		retention: retention,
		retry:     resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

// SaveSnapshot persists a stats snapshot, retrying transient failures.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	var pruned int64
	err = resilience.Retry(ctx, "save-analytics-snapshot", s.retry, func() error {
		return s.db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, insertSnapshot, s.root, data, time.Now().UTC()); err != nil {
				return err
			}
			if s.retention <= 0 {
				return nil
			}
			res, err := tx.ExecContext(ctx, pruneSnapshots, s.root, s.retention)
			if err != nil {
				return err
			}
			pruned, _ = res.RowsAffected()
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Debug("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"total_rebuilds", stats.TotalRebuilds,
		"pruned", pruned,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot for the root.
// Returns nil, nil if no snapshots exist yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots WHERE root = $1 ORDER BY captured_at DESC LIMIT 1`,
		s.root,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots WHERE root = $1 ORDER BY captured_at DESC LIMIT $2`,
		s.root, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}

	return snapshots, rows.Err()
}

// StartPeriodicSave snapshots agg every interval until ctx is cancelled,
// then writes a final snapshot. The returned channel closes once the final
// write has finished.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
	return done
}

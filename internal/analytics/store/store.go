// Package store persists periodic analytics snapshots in the corpus
// database, PostgreSQL or SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/postgres"
)

var schemas = map[string]string{
	config.SourcePostgres: `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        TEXT NOT NULL,
		captured_at BIGINT NOT NULL
	)`,
	config.SourceSQLite: `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		data        TEXT NOT NULL,
		captured_at BIGINT NOT NULL
	)`,
}

// Store keeps snapshots in the analytics_snapshots table. captured_at holds
// Unix milliseconds so both drivers compare it the same way.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	logger *slog.Logger
}

// New returns a store for db, whose driver is config.SourcePostgres or
// config.SourceSQLite.
func New(db *sql.DB, driver string) (*Store, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("analytics store: unsupported driver %q", driver)
	}
	return &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
		logger: slog.Default().With("component", "analytics-store", "driver", driver),
	}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemas[s.driver]); err != nil {
		return fmt.Errorf("creating analytics_snapshots: %w", err)
	}
	return nil
}

func (s *Store) rebind(q string) string {
	if s.driver == config.SourcePostgres {
		return postgres.Rebind(q)
	}
	return q
}

func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO analytics_snapshots (data, captured_at) VALUES (?, ?)`),
		string(data), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"total_asks", stats.TotalAsks,
	)
	return nil
}

// List returns up to limit snapshots, newest first. Rows that no longer
// decode are skipped.
func (s *Store) List(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]analytics.Snapshot, 0)
	for rows.Next() {
		var (
			snap analytics.Snapshot
			data string
			ms   int64
		)
		if err := rows.Scan(&snap.ID, &data, &ms); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &snap.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "id", snap.ID, "error", err)
			continue
		}
		snap.CapturedAt = time.UnixMilli(ms).UTC()
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// Latest returns the newest snapshot, or nil when there is none.
func (s *Store) Latest(ctx context.Context) (*analytics.Snapshot, error) {
	snaps, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// Run saves agg's stats every interval until ctx is done. It does not write
// a closing snapshot; call SaveFinal once the collector has flushed.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshots started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SaveFinal writes agg's stats with its own deadline, for use during
// shutdown after the request context is gone.
func (s *Store) SaveFinal(agg *analytics.Aggregator, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Save(ctx, agg.Stats()); err != nil {
		return fmt.Errorf("saving final snapshot: %w", err)
	}
	return nil
}

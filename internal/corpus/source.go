package corpus

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/sqlite"
)

// Opened is a ready corpus source. DB is the underlying database for SQL
// sources and nil for files; Driver names it ("postgres" or "sqlite").
type Opened struct {
	Source Source
	DB     *sql.DB
	Driver string
	close  func() error
}

func (o *Opened) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

// Open builds the Source selected by cfg.Corpus.Source, creating the
// programs table for SQL sources.
func Open(ctx context.Context, cfg *config.Config) (*Opened, error) {
	switch cfg.Corpus.Source {
	case config.SourceFiles:
		return &Opened{Source: NewFileSource(cfg.Corpus.DataDir)}, nil
	case config.SourcePostgres:
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("opening postgres corpus: %w", err)
		}
		return openSQL(ctx, db.DB, DialectPostgres, config.SourcePostgres, db.Close)
	case config.SourceSQLite:
		db, err := sqlite.New(cfg.Corpus.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite corpus: %w", err)
		}
		return openSQL(ctx, db.DB, DialectSQLite, config.SourceSQLite, db.Close)
	default:
		return nil, fmt.Errorf("unknown corpus source %q", cfg.Corpus.Source)
	}
}

func openSQL(ctx context.Context, db *sql.DB, dialect Dialect, driver string, closeFn func() error) (*Opened, error) {
	src := NewSQLSource(db, dialect)
	if err := src.EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, err
	}
	return &Opened{Source: src, DB: db, Driver: driver, close: closeFn}, nil
}

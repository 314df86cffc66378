package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/postgres"
)

// Dialect selects placeholder syntax for the SQL source.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Schema creates the programs table. List-valued columns hold JSON arrays so
// the same table works on PostgreSQL and SQLite.
const Schema = `CREATE TABLE IF NOT EXISTS programs (
	slug                 TEXT PRIMARY KEY,
	position             INTEGER NOT NULL DEFAULT 0,
	title                TEXT NOT NULL,
	format               TEXT NOT NULL DEFAULT '',
	tuition_per_year_rub BIGINT NOT NULL DEFAULT 0,
	career_roles         TEXT NOT NULL DEFAULT '[]',
	notes                TEXT NOT NULL DEFAULT '[]',
	faq                  TEXT NOT NULL DEFAULT '[]'
)`

// SQLSource reads programs from the programs table in insertion order
// (position, then slug). Every row is one document.
type SQLSource struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func NewSQLSource(db *sql.DB, dialect Dialect) *SQLSource {
	return &SQLSource{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "corpus-sql"),
	}
}

func (s *SQLSource) Name() string {
	if s.dialect == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// EnsureSchema creates the programs table if it does not exist.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating programs table: %w", err)
	}
	return nil
}

func (s *SQLSource) Load(ctx context.Context) (*Corpus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug, title, format, tuition_per_year_rub, career_roles, notes, faq
		 FROM programs ORDER BY position, slug`)
	if err != nil {
		return nil, fmt.Errorf("querying programs: %w", err)
	}
	defer rows.Close()

	programs := make([]Program, 0)
	for rows.Next() {
		var (
			p                 Program
			roles, notes, faq string
		)
		if err := rows.Scan(&p.Slug, &p.Title, &p.Format, &p.TuitionPerYearRub, &roles, &notes, &faq); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		if err := decodeList(roles, &p.CareerRoles); err != nil {
			return nil, fmt.Errorf("program %s career_roles: %w", p.Slug, err)
		}
		if err := decodeList(notes, &p.Notes); err != nil {
			return nil, fmt.Errorf("program %s notes: %w", p.Slug, err)
		}
		if err := decodeList(faq, &p.FAQ); err != nil {
			return nil, fmt.Errorf("program %s faq: %w", p.Slug, err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating program rows: %w", err)
	}

	docs := make([]index.Document, len(programs))
	for i, p := range programs {
		docs[i] = p.Document()
	}
	s.logger.Info("corpus loaded", "source", s.Name(), "programs", len(programs))
	return &Corpus{Documents: docs, Catalog: NewCatalog(programs)}, nil
}

// UpsertPrograms writes programs in one transaction. New slugs are appended
// after every stored program in batch order; an existing slug keeps its
// position so re-ingesting it does not reorder the corpus.
func (s *SQLSource) UpsertPrograms(ctx context.Context, programs []Program) error {
	query := s.rebind(`INSERT INTO programs
		(slug, position, title, format, tuition_per_year_rub, career_roles, notes, faq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			title = excluded.title,
			format = excluded.format,
			tuition_per_year_rub = excluded.tuition_per_year_rub,
			career_roles = excluded.career_roles,
			notes = excluded.notes,
			faq = excluded.faq`)
	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var last int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) FROM programs`).Scan(&last); err != nil {
			return fmt.Errorf("reading last program position: %w", err)
		}
		for i, p := range programs {
			roles, notes, faq := encodeList(p.CareerRoles), encodeList(p.Notes), encodeList(p.FAQ)
			if _, err := tx.ExecContext(ctx, query,
				p.Slug, last+1+int64(i), p.Title, p.Format, p.TuitionPerYearRub, roles, notes, faq,
			); err != nil {
				return fmt.Errorf("upserting program %s: %w", p.Slug, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("programs upserted", "count", len(programs))
	return nil
}

func (s *SQLSource) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	return postgres.Rebind(query)
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

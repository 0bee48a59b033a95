package bench

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/lib/pq"
)

// DefaultTable holds benchmark rows when no table is configured.
const DefaultTable = "benchmark_rows"

// PostgresSink persists rows in PostgreSQL, keyed by run id and copy.
type PostgresSink struct {
	db    *sql.DB
	table string
	owned bool
}

// PostgresSinkOption configures a PostgresSink.
type PostgresSinkOption func(*PostgresSink)

// WithTable sets the destination table.
func WithTable(name string) PostgresSinkOption {
	return func(s *PostgresSink) {
		if name != "" {
			s.table = name
		}
	}
}

// NewPostgresSink wraps an open database and creates the table if needed.
// The caller keeps ownership of db.
func NewPostgresSink(ctx context.Context, db *sql.DB, opts ...PostgresSinkOption) (*PostgresSink, error) {
	s := &PostgresSink{db: db, table: DefaultTable}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgresSink connects to dsn. Close also closes the connection.
func OpenPostgresSink(ctx context.Context, dsn string, opts ...PostgresSinkOption) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPostgresSink(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *PostgresSink) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id        UUID NOT NULL,
			copy          INTEGER NOT NULL,
			file          TEXT NOT NULL,
			generation_ms DOUBLE PRECISION NOT NULL,
			detection_ms  DOUBLE PRECISION NOT NULL,
			success       BOOLEAN NOT NULL,
			parser        TEXT NOT NULL,
			markers       TEXT NOT NULL,
			seed          BIGINT NOT NULL,
			err_tl        DOUBLE PRECISION,
			err_tr        DOUBLE PRECISION,
			err_bl        DOUBLE PRECISION,
			err_br        DOUBLE PRECISION,
			err_avg       DOUBLE PRECISION,
			recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, copy)
		)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Write implements Sink. Failed copies store NULL errors.
func (s *PostgresSink) Write(ctx context.Context, row Row) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			run_id, copy, file, generation_ms, detection_ms, success, parser, markers, seed,
			err_tl, err_tr, err_bl, err_br, err_avg
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pq.QuoteIdentifier(s.table))
	_, err := s.db.ExecContext(ctx, query,
		row.RunID, row.Copy, row.File, row.GenerationMS, row.DetectionMS, row.Success,
		row.Parser, row.Markers, row.Seed,
		nullable(row.Errors.Corners[0]), nullable(row.Errors.Corners[1]),
		nullable(row.Errors.Corners[2]), nullable(row.Errors.Corners[3]),
		nullable(row.Errors.Average),
	)
	if err != nil {
		return fmt.Errorf("insert row %d: %w", row.Copy, err)
	}
	return nil
}

// Close implements Sink.
func (s *PostgresSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

// Package postgres provides the Postgres-backed result store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagescope/pagescope/internal/analysis"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for analysis rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes analysis records into Postgres. Analyzer outputs live in
// JSONB columns so analyzer-specific fields can evolve without schema
// churn. It assumes a table schema like:
// CREATE TABLE analysis_results (
//
//	correlation_id TEXT PRIMARY KEY,
//	url TEXT NOT NULL,
//	status TEXT NOT NULL,
//	frequency_distribution JSONB,
//	entities JSONB,
//	sentiment JSONB,
//	seo_data JSONB,
//	performance_data JSONB,
//	accessibility_data JSONB,
//	security_data JSONB,
//	structure_data JSONB,
//	recommendations JSONB,
//	error_text TEXT,
//	created_at TIMESTAMPTZ NOT NULL,
//	completed_at TIMESTAMPTZ
//
// );
type Store struct {
	pool  pool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "analysis_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "analysis_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts a new processing-state row for a correlation id.
func (s *Store) Create(ctx context.Context, correlationID, url string, now time.Time) error {
	if correlationID == "" {
		return fmt.Errorf("correlation id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (correlation_id, url, status, created_at)
VALUES ($1, $2, $3, $4)`, s.table)
	if _, err := s.pool.Exec(ctx, query, correlationID, url, string(analysis.StatusProcessing), now); err != nil {
		return fmt.Errorf("insert analysis record: %w", err)
	}
	return nil
}

// Complete overwrites the analyzer columns and marks the row completed.
// The update is a single overwrite, so redelivered results messages are
// safe to apply twice. Returns analysis.ErrNotFound when no row exists.
func (s *Store) Complete(ctx context.Context, correlationID string, report analysis.Report, now time.Time) error {
	cols, err := marshalReport(report)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	frequency_distribution = $3,
	entities = $4,
	sentiment = $5,
	seo_data = $6,
	performance_data = $7,
	accessibility_data = $8,
	security_data = $9,
	structure_data = $10,
	recommendations = $11,
	completed_at = $12
WHERE correlation_id = $1`, s.table)

	args := []any{
		correlationID,
		string(analysis.StatusCompleted),
		cols.frequency,
		cols.entities,
		cols.sentiment,
		cols.seo,
		cols.performance,
		cols.accessibility,
		cols.security,
		cols.structure,
		cols.recommendations,
		now,
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update analysis record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

// Fail marks an existing row as failed with a reason.
func (s *Store) Fail(ctx context.Context, correlationID, reason string) error {
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, error_text = $3 WHERE correlation_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, correlationID, string(analysis.StatusFailed), reason)
	if err != nil {
		return fmt.Errorf("fail analysis record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

// Get returns the record for a correlation id, or analysis.ErrNotFound.
func (s *Store) Get(ctx context.Context, correlationID string) (analysis.Record, error) {
	query := fmt.Sprintf(`
SELECT
	correlation_id,
	url,
	status,
	frequency_distribution,
	entities,
	sentiment,
	seo_data,
	performance_data,
	accessibility_data,
	security_data,
	structure_data,
	recommendations,
	COALESCE(error_text, ''),
	created_at,
	completed_at
FROM %s WHERE correlation_id = $1`, s.table)

	var (
		rec            analysis.Record
		status         string
		frequency      []byte
		entities       []byte
		sentiment      []byte
		seo            []byte
		performance    []byte
		accessibility  []byte
		security       []byte
		structure      []byte
		recommendation []byte
	)
	err := s.pool.QueryRow(ctx, query, correlationID).Scan(
		&rec.CorrelationID,
		&rec.URL,
		&status,
		&frequency,
		&entities,
		&sentiment,
		&seo,
		&performance,
		&accessibility,
		&security,
		&structure,
		&recommendation,
		&rec.ErrorText,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return analysis.Record{}, analysis.ErrNotFound
	}
	if err != nil {
		return analysis.Record{}, fmt.Errorf("select analysis record: %w", err)
	}
	rec.Status = analysis.Status(status)
	if err := unmarshalReport(&rec.Report, frequency, entities, sentiment, seo, performance, accessibility, security, structure, recommendation); err != nil {
		return analysis.Record{}, err
	}
	return rec, nil
}

type reportColumns struct {
	frequency       []byte
	entities        []byte
	sentiment       []byte
	seo             []byte
	performance     []byte
	accessibility   []byte
	security        []byte
	structure       []byte
	recommendations []byte
}

func marshalReport(report analysis.Report) (reportColumns, error) {
	var cols reportColumns
	var err error
	marshal := func(dst *[]byte, v any, name string) {
		if err != nil {
			return
		}
		*dst, err = json.Marshal(v)
		if err != nil {
			err = fmt.Errorf("marshal %s: %w", name, err)
		}
	}
	marshal(&cols.frequency, report.FrequencyDistribution, "frequency_distribution")
	marshal(&cols.entities, report.Entities, "entities")
	marshal(&cols.sentiment, report.Sentiment, "sentiment")
	marshal(&cols.seo, report.SEOData, "seo_data")
	marshal(&cols.performance, report.PerformanceData, "performance_data")
	marshal(&cols.accessibility, report.AccessibilityData, "accessibility_data")
	marshal(&cols.security, report.SecurityData, "security_data")
	marshal(&cols.structure, report.StructureData, "structure_data")
	marshal(&cols.recommendations, report.Recommendations, "recommendations")
	return cols, err
}

func unmarshalReport(report *analysis.Report, frequency, entities, sentiment, seo, performance, accessibility, security, structure, recommendations []byte) error {
	var err error
	unmarshal := func(src []byte, v any, name string) {
		if err != nil || len(src) == 0 {
			return
		}
		if uerr := json.Unmarshal(src, v); uerr != nil {
			err = fmt.Errorf("unmarshal %s: %w", name, uerr)
		}
	}
	unmarshal(frequency, &report.FrequencyDistribution, "frequency_distribution")
	unmarshal(entities, &report.Entities, "entities")
	unmarshal(sentiment, &report.Sentiment, "sentiment")
	unmarshal(seo, &report.SEOData, "seo_data")
	unmarshal(performance, &report.PerformanceData, "performance_data")
	unmarshal(accessibility, &report.AccessibilityData, "accessibility_data")
	unmarshal(security, &report.SecurityData, "security_data")
	unmarshal(structure, &report.StructureData, "structure_data")
	unmarshal(recommendations, &report.Recommendations, "recommendations")
	return err
}

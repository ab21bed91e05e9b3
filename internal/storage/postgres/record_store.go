// Package postgres persists scraped project records in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

const defaultTable = "projects"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for project rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore upserts project rows keyed by link.
type RecordStore struct {
	pool  pool
	table string
}

// New connects to Postgres and ensures the project table exists.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	store := &RecordStore{pool: p, table: table}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the project table when missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	link TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	project_name TEXT NOT NULL,
	project_details TEXT NOT NULL,
	project_status TEXT NOT NULL,
	publish_date TEXT NOT NULL,
	budget TEXT NOT NULL,
	duration TEXT NOT NULL,
	skills TEXT NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveRecords upserts every record in a single transaction.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, records []scraper.ProjectRecord) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	link,
	run_id,
	project_name,
	project_details,
	project_status,
	publish_date,
	budget,
	duration,
	skills,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,now()
)
ON CONFLICT (link) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	project_name = EXCLUDED.project_name,
	project_details = EXCLUDED.project_details,
	project_status = EXCLUDED.project_status,
	publish_date = EXCLUDED.publish_date,
	budget = EXCLUDED.budget,
	duration = EXCLUDED.duration,
	skills = EXCLUDED.skills,
	scraped_at = EXCLUDED.scraped_at`, s.table)

	for _, rec := range records {
		if rec.Link == "" {
			continue
		}
		if _, err = tx.Exec(ctx, query,
			rec.Link,
			runID,
			rec.ProjectName,
			rec.ProjectDetails,
			rec.ProjectStatus,
			rec.PublishDate,
			rec.Budget,
			rec.Duration,
			rec.Skills,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.Link, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Package sqlite keeps a local SQLite history of scraped projects.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	link TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	project_name TEXT NOT NULL,
	project_details TEXT NOT NULL,
	project_status TEXT NOT NULL,
	publish_date TEXT NOT NULL,
	budget TEXT NOT NULL,
	duration TEXT NOT NULL,
	skills TEXT NOT NULL,
	scraped_at TEXT NOT NULL
)`

const upsert = `
INSERT INTO projects (
	link, run_id, project_name, project_details, project_status,
	publish_date, budget, duration, skills, scraped_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(link) DO UPDATE SET
	run_id = excluded.run_id,
	project_name = excluded.project_name,
	project_details = excluded.project_details,
	project_status = excluded.project_status,
	publish_date = excluded.publish_date,
	budget = excluded.budget,
	duration = excluded.duration,
	skills = excluded.skills,
	scraped_at = excluded.scraped_at`

// RecordStore upserts project rows keyed by link.
type RecordStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*RecordStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &RecordStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *RecordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRecords upserts every record in a single transaction.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, records []scraper.ProjectRecord) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("record store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with the tx

	scrapedAt := s.now().UTC().Format(time.RFC3339)
	for _, rec := range records {
		if rec.Link == "" {
			continue
		}
		if _, err = stmt.ExecContext(ctx,
			rec.Link,
			runID,
			rec.ProjectName,
			rec.ProjectDetails,
			rec.ProjectStatus,
			rec.PublishDate,
			rec.Budget,
			rec.Duration,
			rec.Skills,
			scrapedAt,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.Link, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored projects.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// Get returns the stored record and the run that last wrote it.
func (s *RecordStore) Get(ctx context.Context, link string) (scraper.ProjectRecord, string, error) {
	var (
		rec   scraper.ProjectRecord
		runID string
	)
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, project_name, project_details, project_status,
	publish_date, budget, duration, skills, link
FROM projects WHERE link = ?`, link)
	if err := row.Scan(
		&runID,
		&rec.ProjectName,
		&rec.ProjectDetails,
		&rec.ProjectStatus,
		&rec.PublishDate,
		&rec.Budget,
		&rec.Duration,
		&rec.Skills,
		&rec.Link,
	); err != nil {
		return scraper.ProjectRecord{}, "", fmt.Errorf("get project %s: %w", link, err)
	}
	return rec, runID, nil
}

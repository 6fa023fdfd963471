package audit

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the requested audit id has no persisted row.
var ErrNotFound = errors.New("audit: record not found")

// Repo is the SQLite access layer for audit records.
type Repo struct {
	db *sql.DB
}

// NewRepo wraps an opened audit database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// InsertBatch upserts a batch of records in one transaction and returns the
// number of rows written. A record flushed twice (e.g. once per status
// transition) keeps only its latest state.
func (r *Repo) InsertBatch(records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("audit insert: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO location_audits
			(id, query_raw, query_normalized, nearest_branch_id, miles, seconds,
			 status, processing_ms, api_calls_made, cache_hit, created_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nearest_branch_id = excluded.nearest_branch_id,
			miles             = excluded.miles,
			seconds           = excluded.seconds,
			status            = excluded.status,
			processing_ms     = excluded.processing_ms,
			api_calls_made    = excluded.api_calls_made,
			cache_hit         = excluded.cache_hit,
			completed_at      = excluded.completed_at,
			error_message     = excluded.error_message
	`)
	if err != nil {
		return 0, fmt.Errorf("audit insert: prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, rec := range records {
		var completed any
		if rec.CompletedAt != nil {
			completed = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(
			rec.ID, rec.QueryRaw, rec.QueryNormalized, rec.NearestBranchID,
			rec.Miles.String(), rec.Seconds, rec.Status, rec.ProcessingMs,
			rec.APICallsMade, boolToInt(rec.CacheHit),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano), completed, rec.ErrorMessage,
		); err != nil {
			return n, fmt.Errorf("audit insert %s: %w", rec.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("audit insert: commit: %w", err)
	}
	return n, nil
}

// List returns records newest first.
func (r *Repo) List(limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, query_raw, query_normalized, nearest_branch_id, miles, seconds,
		       status, processing_ms, api_calls_made, cache_hit, created_at, completed_at, error_message
		FROM location_audits
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one record by id.
func (r *Repo) Get(id string) (*Record, error) {
	row := r.db.QueryRow(`
		SELECT id, query_raw, query_normalized, nearest_branch_id, miles, seconds,
		       status, processing_ms, api_calls_made, cache_hit, created_at, completed_at, error_message
		FROM location_audits
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var miles, createdAt string
	var completedAt sql.NullString
	var cacheHit int
	err := row.Scan(
		&rec.ID, &rec.QueryRaw, &rec.QueryNormalized, &rec.NearestBranchID,
		&miles, &rec.Seconds, &rec.Status, &rec.ProcessingMs,
		&rec.APICallsMade, &cacheHit, &createdAt, &completedAt, &rec.ErrorMessage,
	)
	if err != nil {
		return rec, err
	}
	rec.CacheHit = cacheHit != 0
	if rec.Miles, err = decimal.NewFromString(miles); err != nil {
		return rec, fmt.Errorf("audit scan %s: miles %q: %w", rec.ID, miles, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return rec, fmt.Errorf("audit scan %s: created_at %q: %w", rec.ID, createdAt, err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return rec, fmt.Errorf("audit scan %s: completed_at %q: %w", rec.ID, completedAt.String, err)
		}
		rec.CompletedAt = &t
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

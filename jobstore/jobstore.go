// Package jobstore is the durable record store for pipeline jobs.
//
// Every mutation after intake goes through a conditional update keyed on the
// current status, so concurrent workers can share one database without a
// separate lock service: the transition only succeeds if the row is still in
// the expected state, and losers observe a no-op.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by operations that require an existing job.
var ErrNotFound = errors.New("jobstore: job not found")

// ErrNotFailed is returned by Resubmit when the job is not in the failed state.
var ErrNotFailed = errors.New("jobstore: job is not failed")

const jobColumns = `id, owner_id, filename, format, size_bytes, blob_key,
	status, extracted_text, page_count, word_count, result_json,
	failure_code, failure_message, attempts, created_at, updated_at`

// Store wraps the jobs database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Create inserts a new job in the received state. The caller supplies
// identity, owner, source descriptor and blob key; timestamps and lifecycle
// fields are set here.
func (s *Store) Create(ctx context.Context, j *Job) error {
	now := time.Now().UnixMilli()
	j.Status = StatusReceived
	j.Attempts = 1
	j.CreatedAt = now
	j.UpdatedAt = now
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO jobs (id, owner_id, filename, format, size_bytes, blob_key,
		status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.OwnerID, j.Filename, j.Format, j.SizeBytes, j.BlobKey,
		j.Status, j.Attempts, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID. Returns nil, nil when the job does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// ListByOwner returns an owner's jobs, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = ?
		ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// ListReceived returns a bounded batch of claimable jobs, oldest first.
// Oldest-first keeps processing fair: a burst of new uploads cannot starve
// jobs already waiting.
func (s *Store) ListReceived(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ?
		ORDER BY created_at ASC LIMIT ?`, StatusReceived, limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// Claim atomically transitions a job from received to processing. Returns
// false when another worker won the race (the row was no longer received).
// This conditional update is the sole concurrency-safety mechanism across
// worker instances.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusProcessing, time.Now().UnixMilli(), id, StatusReceived)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetExtracted persists the extractor output on a job mid-processing.
// Guarded on status so a stale worker cannot touch a job that already
// reached a terminal state.
func (s *Store) SetExtracted(ctx context.Context, id, text string, pages, words int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET extracted_text = ?, page_count = ?, word_count = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		text, pages, words, time.Now().UnixMilli(), id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("set extracted: %w", err)
	}
	return requireRow(res)
}

// Complete transitions a processing job to completed with its structured result.
func (s *Store) Complete(ctx context.Context, id string, resultJSON []byte) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result_json = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, string(resultJSON), time.Now().UnixMilli(), id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res)
}

// Fail transitions a processing job to failed with a machine-readable code
// and a human-readable message. Extracted text already persisted on the row
// is left in place; partial success survives a failed analysis.
func (s *Store) Fail(ctx context.Context, id, code, message string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, failure_code = ?, failure_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusFailed, code, message, time.Now().UnixMilli(), id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res)
}

// Resubmit re-queues a failed job: status back to received, failure detail
// and stale outputs cleared, attempt counter incremented. This is the only
// transition out of a terminal state.
func (s *Store) Resubmit(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET status = ?, failure_code = '', failure_message = '',
		extracted_text = '', page_count = 0, word_count = 0, result_json = '',
		attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusReceived, time.Now().UnixMilli(), id, StatusFailed)
	if err != nil {
		return fmt.Errorf("resubmit job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if j == nil {
		return ErrNotFound
	}
	return ErrNotFailed
}

// ListStale returns processing jobs untouched for longer than age, the
// signature of a worker that crashed mid-claim. They are surfaced for
// operator review, never auto-resurrected.
func (s *Store) ListStale(ctx context.Context, age time.Duration, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().Add(-age).UnixMilli()
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC LIMIT ?`, StatusProcessing, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// CountByStatus returns job counts per lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("jobstore: conditional update matched no row: %w", ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.OwnerID, &j.Filename, &j.Format, &j.SizeBytes,
		&j.BlobKey, &j.Status, &j.ExtractedText, &j.PageCount, &j.WordCount,
		&j.ResultJSON, &j.FailureCode, &j.FailureMessage, &j.Attempts,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var result []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

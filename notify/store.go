package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/seamline/ingest/errors"
)

// Store handles persistence of notification jobs.
type Store struct {
	db *sql.DB
}

// NewStore creates a notification job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, worker, payload, source, status, error,
	created_at, updated_at, started_at, completed_at`

// CreateJob inserts a new job.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notify_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Worker, payload, job.Source, job.Status, job.Error,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return errors.Wrap(err, "creating notify job")
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM notify_jobs WHERE id = ?`, id)
	return scanJob(row.Scan, id)
}

// UpdateJob persists a job's status transition.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notify_jobs
		SET status = ?, error = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		job.Status, job.Error, job.UpdatedAt, job.StartedAt, job.CompletedAt, job.ID)
	if err != nil {
		return errors.Wrap(err, "updating notify job")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating notify job")
	}
	if affected == 0 {
		return errors.NewNotFoundError("notify job %s not found", job.ID)
	}
	return nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
// Status "" lists everything.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit int) ([]*Job, error) {
	if status != "" && !IsValidStatus(string(status)) {
		return nil, errors.NewInvalidInputError("invalid job status %q", status)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM notify_jobs`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing notify jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextQueued claims the oldest queued job for a worker pass, or not-found
// when the queue is drained.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM notify_jobs
		WHERE status = ? ORDER BY created_at ASC LIMIT 1`, JobStatusQueued)
	return scanJob(row.Scan, "queued")
}

func scanJob(scan func(...interface{}) error, id string) (*Job, error) {
	job := &Job{}
	var payload, errMsg sql.NullString
	var started, completed sql.NullTime

	err := scan(&job.ID, &job.Worker, &payload, &job.Source, &job.Status, &errMsg,
		&job.CreatedAt, &job.UpdatedAt, &started, &completed)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("notify job %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading notify job")
	}

	if payload.Valid {
		job.Payload = json.RawMessage(payload.String)
	}
	job.Error = errMsg.String
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return job, nil
}

// PurgeCompleted drops completed jobs older than the cutoff.
func (s *Store) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notify_jobs WHERE status = ? AND completed_at < ?`,
		JobStatusCompleted, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging notify jobs")
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "purging notify jobs")
	}
	return purged, nil
}

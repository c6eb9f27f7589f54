package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/azar84/business-directory-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id             TEXT PRIMARY KEY,
	remote_id      TEXT NOT NULL DEFAULT '',
	target_url     TEXT NOT NULL DEFAULT '',
	batch_ref      TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT 'queued',
	progress       INTEGER NOT NULL DEFAULT 0,
	queue_position INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	needs_review   INTEGER NOT NULL DEFAULT 0,
	result         TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON enrichment_jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_batch_ref ON enrichment_jobs(batch_ref);
CREATE INDEX IF NOT EXISTS idx_jobs_needs_review ON enrichment_jobs(needs_review);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.EnrichmentJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.State = model.JobStateQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (id, remote_id, target_url, batch_ref, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.RemoteID, job.TargetURL, job.BatchRef, string(job.State), now, now,
	)
	return eris.Wrap(err, "sqlite: insert job")
}

// UpdateJobState is a compare-and-set: the UPDATE only lands if the state is
// still the one the legality check read. A concurrent writer moving the job
// in between makes the UPDATE touch zero rows; the read is then retried
// against the new state instead of clobbering the other writer's transition.
func (s *SQLiteStore) UpdateJobState(ctx context.Context, jobID string, state model.JobState, errMsg string) error {
	for attempt := 0; attempt < 3; attempt++ {
		current, err := s.currentState(ctx, jobID)
		if err != nil {
			return err
		}
		if !model.CanTransition(current, state) {
			return eris.Wrapf(ErrInvalidTransition, "%s -> %s for job %s", current, state, jobID)
		}

		now := time.Now().UTC()
		var completedAt *time.Time
		if state.Terminal() {
			completedAt = &now
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE enrichment_jobs SET state = ?, error = ?, updated_at = ?, completed_at = ? WHERE id = ? AND state = ?`,
			string(state), errMsg, now, completedAt, jobID, string(current),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update job state %s", jobID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "rows affected")
		}
		if n > 0 {
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "job %s state changed concurrently", jobID)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, progress, queuePosition int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET progress = ?, queue_position = ?, updated_at = ? WHERE id = ?`,
		progress, queuePosition, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) AttachResult(ctx context.Context, jobID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET result = ?, updated_at = ? WHERE id = ?`,
		string(result), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: attach result %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FlagForReview(ctx context.Context, jobID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET needs_review = 1, error = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: flag for review %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.EnrichmentJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, remote_id, target_url, batch_ref, state, progress, queue_position,
		        error, needs_review, result, created_at, updated_at, completed_at
		 FROM enrichment_jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.EnrichmentJob, error) {
	query := `SELECT id, remote_id, target_url, batch_ref, state, progress, queue_position,
	                 error, needs_review, result, created_at, updated_at, completed_at
	          FROM enrichment_jobs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.BatchRef != "" {
		query += ` AND batch_ref = ?`
		args = append(args, filter.BatchRef)
	}
	if filter.NeedsReview != nil {
		query += ` AND needs_review = ?`
		args = append(args, boolToInt(*filter.NeedsReview))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.EnrichmentJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) currentState(ctx context.Context, jobID string) (model.JobState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM enrichment_jobs WHERE id = ?`, jobID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: current state %s", jobID)
	}
	return model.JobState(state), nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.EnrichmentJob, error) {
	var j model.EnrichmentJob
	var state string
	var needsReview int
	var resultJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.RemoteID, &j.TargetURL, &j.BatchRef, &state,
		&j.Progress, &j.QueuePosition, &j.Error, &needsReview, &resultJSON,
		&j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("job not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	j.State = model.JobState(state)
	j.NeedsReview = needsReview != 0
	if resultJSON.Valid {
		j.Result = json.RawMessage(resultJSON.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

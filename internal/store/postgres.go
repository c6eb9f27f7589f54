package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/azar84/business-directory-cli/internal/db"
	"github.com/azar84/business-directory-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_job": `INSERT INTO enrichment_jobs (id, remote_id, target_url, batch_ref, state, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_job_state":    `UPDATE enrichment_jobs SET state = $1, error = $2, updated_at = $3, completed_at = $4 WHERE id = $5 AND state = $6`,
	"update_job_progress": `UPDATE enrichment_jobs SET progress = $1, queue_position = $2, updated_at = $3 WHERE id = $4`,
	"attach_result":       `UPDATE enrichment_jobs SET result = $1, updated_at = $2 WHERE id = $3`,
	"get_job_state":       `SELECT state FROM enrichment_jobs WHERE id = $1`,
	"get_job": `SELECT id, remote_id, target_url, batch_ref, state, progress, queue_position,
	        error, needs_review, result, created_at, updated_at, completed_at
	 FROM enrichment_jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests and by callers
// that share one pool across subsystems.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (the directory store and trace recorder).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	remote_id      TEXT NOT NULL DEFAULT '',
	target_url     TEXT NOT NULL DEFAULT '',
	batch_ref      TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT 'queued',
	progress       INT NOT NULL DEFAULT 0,
	queue_position INT NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	needs_review   BOOLEAN NOT NULL DEFAULT false,
	result         JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON enrichment_jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_batch_ref ON enrichment_jobs(batch_ref);
CREATE INDEX IF NOT EXISTS idx_jobs_needs_review ON enrichment_jobs(needs_review) WHERE needs_review;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.EnrichmentJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.State = model.JobStateQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_jobs (id, remote_id, target_url, batch_ref, state, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.RemoteID, job.TargetURL, job.BatchRef, string(job.State), now, now,
	)
	return eris.Wrap(err, "postgres: insert job")
}

// UpdateJobState is a compare-and-set: the UPDATE only lands if the state is
// still the one the legality check read. A concurrent writer moving the job
// in between makes the UPDATE touch zero rows; the read is then retried
// against the new state instead of clobbering the other writer's transition.
func (s *PostgresStore) UpdateJobState(ctx context.Context, jobID string, state model.JobState, errMsg string) error {
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
		tag, err := s.pool.Exec(ctx,
			`UPDATE enrichment_jobs SET state = $1, error = $2, updated_at = $3, completed_at = $4 WHERE id = $5 AND state = $6`,
			string(state), errMsg, now, completedAt, jobID, string(current),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update job state %s", jobID)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "job %s state changed concurrently", jobID)
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, progress, queuePosition int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET progress = $1, queue_position = $2, updated_at = $3 WHERE id = $4`,
		progress, queuePosition, time.Now().UTC(), jobID,
	)
	return eris.Wrapf(err, "postgres: update job progress %s", jobID)
}

func (s *PostgresStore) AttachResult(ctx context.Context, jobID string, result json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET result = $1, updated_at = $2 WHERE id = $3`,
		result, time.Now().UTC(), jobID,
	)
	return eris.Wrapf(err, "postgres: attach result %s", jobID)
}

func (s *PostgresStore) FlagForReview(ctx context.Context, jobID string, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET needs_review = true, error = $1, updated_at = $2 WHERE id = $3`,
		reason, time.Now().UTC(), jobID,
	)
	return eris.Wrapf(err, "postgres: flag for review %s", jobID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.EnrichmentJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, remote_id, target_url, batch_ref, state, progress, queue_position,
	        error, needs_review, result, created_at, updated_at, completed_at
	 FROM enrichment_jobs WHERE id = $1`,
		jobID,
	)
	return scanJobPG(row)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.EnrichmentJob, error) {
	query := `SELECT id, remote_id, target_url, batch_ref, state, progress, queue_position,
	                 error, needs_review, result, created_at, updated_at, completed_at
	          FROM enrichment_jobs WHERE 1=1`
	var args []any

	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` AND state = $` + itoa(len(args))
	}
	if filter.BatchRef != "" {
		args = append(args, filter.BatchRef)
		query += ` AND batch_ref = $` + itoa(len(args))
	}
	if filter.NeedsReview != nil {
		args = append(args, *filter.NeedsReview)
		query += ` AND needs_review = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.EnrichmentJob
	for rows.Next() {
		j, err := scanJobPG(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) currentState(ctx context.Context, jobID string) (model.JobState, error) {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM enrichment_jobs WHERE id = $1`, jobID,
	).Scan(&state)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", eris.Errorf("job not found: %s", jobID)
		}
		return "", eris.Wrapf(err, "postgres: current state %s", jobID)
	}
	return model.JobState(state), nil
}

func scanJobPG(row pgx.Row) (*model.EnrichmentJob, error) {
	var j model.EnrichmentJob
	var state string
	var result []byte
	var completedAt *time.Time

	err := row.Scan(&j.ID, &j.RemoteID, &j.TargetURL, &j.BatchRef, &state,
		&j.Progress, &j.QueuePosition, &j.Error, &j.NeedsReview, &result,
		&j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, eris.New("job not found")
		}
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	j.State = model.JobState(state)
	if result != nil {
		j.Result = json.RawMessage(result)
	}
	j.CompletedAt = completedAt
	return &j, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

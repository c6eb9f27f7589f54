// Package trace records the provenance chain behind every directory entry:
// which search produced a URL, which processing run classified it, and what
// verdict it received. Rows are append-only. Reprocessing the same results
// opens a new processing session rather than touching the old one.
package trace

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/azar84/business-directory-cli/internal/db"
)

// Verdict statuses for a processed search result.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// SearchSession is one discovery run against an external search source.
type SearchSession struct {
	ID          int64      `json:"id"`
	Query       string     `json:"query"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ResultCount int        `json:"result_count"`
}

// SearchResult is one URL a search session surfaced.
type SearchResult struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessingSession is one classification pass over a batch of search
// results. The same results can be processed again later under a new session.
type ProcessingSession struct {
	ID              int64      `json:"id"`
	SearchSessionID *int64     `json:"search_session_id,omitempty"`
	JobRef          string     `json:"job_ref,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Accepted        int        `json:"accepted"`
	Rejected        int        `json:"rejected"`
	Errored         int        `json:"errored"`
}

// ProcessingResult is the verdict for a single URL within a processing
// session. CompanyID links accepted verdicts to the directory entry they
// created or updated.
type ProcessingResult struct {
	ID                  int64     `json:"id"`
	ProcessingSessionID int64     `json:"processing_session_id"`
	SearchResultID      *int64    `json:"search_result_id,omitempty"`
	WebsiteURL          string    `json:"website_url"`
	Status              string    `json:"status"`
	Reason              string    `json:"reason,omitempty"`
	Confidence          float64   `json:"confidence"`
	CompanyID           *int64    `json:"company_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Recorder provides read/write access to the trace tables.
type Recorder struct {
	pool db.Pool
}

// NewRecorder creates a Recorder backed by the given connection pool.
func NewRecorder(pool db.Pool) *Recorder {
	return &Recorder{pool: pool}
}

const traceSchema = `
CREATE TABLE IF NOT EXISTS search_sessions (
	id           BIGSERIAL PRIMARY KEY,
	query        TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	result_count INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS search_results (
	id         BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL REFERENCES search_sessions(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	snippet    TEXT NOT NULL DEFAULT '',
	position   INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processing_sessions (
	id                BIGSERIAL PRIMARY KEY,
	search_session_id BIGINT REFERENCES search_sessions(id),
	job_ref           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'running',
	started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ,
	accepted          INT NOT NULL DEFAULT 0,
	rejected          INT NOT NULL DEFAULT 0,
	errored           INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS processing_results (
	id                    BIGSERIAL PRIMARY KEY,
	processing_session_id BIGINT NOT NULL REFERENCES processing_sessions(id) ON DELETE CASCADE,
	search_result_id      BIGINT REFERENCES search_results(id),
	website_url           TEXT NOT NULL,
	status                TEXT NOT NULL,
	reason                TEXT NOT NULL DEFAULT '',
	confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
	company_id            BIGINT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_processing_results_company
	ON processing_results (company_id) WHERE company_id IS NOT NULL;
`

// Migrate creates the trace tables if they do not exist.
func (r *Recorder) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, traceSchema); err != nil {
		return eris.Wrap(err, "trace: migrate")
	}
	return nil
}

// StartSearch records the beginning of a search run and returns its ID.
func (r *Recorder) StartSearch(ctx context.Context, query, source string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO search_sessions (query, source, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		query, source,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "trace: start search for %q", query)
	}
	return id, nil
}

// AddSearchResult attaches one surfaced URL to a search session.
func (r *Recorder) AddSearchResult(ctx context.Context, sessionID int64, res SearchResult) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO search_results (session_id, url, title, snippet, position)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		sessionID, res.URL, res.Title, res.Snippet, res.Position,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "trace: add result to search %d", sessionID)
	}
	return id, nil
}

// CompleteSearch marks a search session as finished with its result count.
func (r *Recorder) CompleteSearch(ctx context.Context, sessionID int64, resultCount int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE search_sessions
		 SET status = 'complete', completed_at = now(), result_count = $1
		 WHERE id = $2`,
		resultCount, sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "trace: complete search %d", sessionID)
	}
	return nil
}

// StartProcessing opens a new processing session, optionally linked to the
// search session whose results it covers.
func (r *Recorder) StartProcessing(ctx context.Context, searchSessionID *int64, jobRef string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO processing_sessions (search_session_id, job_ref, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		searchSessionID, jobRef,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "trace: start processing session")
	}
	return id, nil
}

// RecordVerdict appends one per-URL verdict to a processing session.
func (r *Recorder) RecordVerdict(ctx context.Context, res ProcessingResult) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO processing_results
		 (processing_session_id, search_result_id, website_url, status, reason, confidence, company_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		res.ProcessingSessionID, res.SearchResultID, res.WebsiteURL,
		res.Status, res.Reason, res.Confidence, res.CompanyID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "trace: record verdict for %s", res.WebsiteURL)
	}
	return id, nil
}

// CompleteProcessing closes a processing session with its verdict tallies.
func (r *Recorder) CompleteProcessing(ctx context.Context, sessionID int64, accepted, rejected, errored int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE processing_sessions
		 SET status = 'complete', completed_at = now(),
		     accepted = $1, rejected = $2, errored = $3
		 WHERE id = $4`,
		accepted, rejected, errored, sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "trace: complete processing %d", sessionID)
	}
	return nil
}

// FailProcessing closes a processing session that could not finish.
func (r *Recorder) FailProcessing(ctx context.Context, sessionID int64, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE processing_sessions
		 SET status = 'failed', completed_at = now()
		 WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "trace: fail processing %d (%s)", sessionID, reason)
	}
	return nil
}

// TrailForCompany returns every verdict that created or touched the given
// company, most recent first.
func (r *Recorder) TrailForCompany(ctx context.Context, companyID int64) ([]ProcessingResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, processing_session_id, search_result_id, website_url,
		        status, reason, confidence, company_id, created_at
		 FROM processing_results
		 WHERE company_id = $1
		 ORDER BY created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "trace: trail for company %d", companyID)
	}
	defer rows.Close()
	return scanResults(rows)
}

// SessionResults returns every verdict of one processing session in insert
// order.
func (r *Recorder) SessionResults(ctx context.Context, sessionID int64) ([]ProcessingResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, processing_session_id, search_result_id, website_url,
		        status, reason, confidence, company_id, created_at
		 FROM processing_results
		 WHERE processing_session_id = $1
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "trace: results for session %d", sessionID)
	}
	defer rows.Close()
	return scanResults(rows)
}

// ListProcessingSessions returns processing sessions, most recent first.
func (r *Recorder) ListProcessingSessions(ctx context.Context, limit int) ([]ProcessingSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, search_session_id, job_ref, status, started_at, completed_at,
		        accepted, rejected, errored
		 FROM processing_sessions
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "trace: list processing sessions")
	}
	defer rows.Close()

	var sessions []ProcessingSession
	for rows.Next() {
		var s ProcessingSession
		if err := rows.Scan(&s.ID, &s.SearchSessionID, &s.JobRef, &s.Status,
			&s.StartedAt, &s.CompletedAt, &s.Accepted, &s.Rejected, &s.Errored); err != nil {
			return nil, eris.Wrap(err, "trace: scan processing session")
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanResults(rows pgx.Rows) ([]ProcessingResult, error) {
	var results []ProcessingResult
	for rows.Next() {
		var pr ProcessingResult
		if err := rows.Scan(&pr.ID, &pr.ProcessingSessionID, &pr.SearchResultID,
			&pr.WebsiteURL, &pr.Status, &pr.Reason, &pr.Confidence,
			&pr.CompanyID, &pr.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "trace: scan verdict")
		}
		results = append(results, pr)
	}
	return results, rows.Err()
}

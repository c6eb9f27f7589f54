package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/azar84/business-directory-cli/internal/model"
)

// ErrInvalidTransition is returned when a state update would violate the job
// lifecycle graph (for example completed -> processing).
var ErrInvalidTransition = eris.New("store: invalid job state transition")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	State       model.JobState `json:"state,omitempty"`
	BatchRef    string         `json:"batch_ref,omitempty"`
	NeedsReview *bool          `json:"needs_review,omitempty"`
	Limit       int            `json:"limit,omitempty"`
	Offset      int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for enrichment jobs.
type Store interface {
	// CreateJob persists a new job in the queued state, assigning its ID
	// when empty.
	CreateJob(ctx context.Context, job *model.EnrichmentJob) error
	// UpdateJobState moves a job through its lifecycle. Transitions are
	// checked against the lifecycle graph; illegal ones return
	// ErrInvalidTransition. Terminal states stamp completed_at, and errMsg
	// is recorded for failure states.
	UpdateJobState(ctx context.Context, jobID string, state model.JobState, errMsg string) error
	// UpdateJobProgress records the latest progress hint from the source.
	// Hints are observability only and never drive transitions.
	UpdateJobProgress(ctx context.Context, jobID string, progress, queuePosition int) error
	// AttachResult stores the raw completed payload on the job.
	AttachResult(ctx context.Context, jobID string, result json.RawMessage) error
	// FlagForReview marks a job whose payload could not be normalized.
	FlagForReview(ctx context.Context, jobID string, reason string) error
	GetJob(ctx context.Context, jobID string) (*model.EnrichmentJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.EnrichmentJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// Package model defines the shared types of the enrichment pipeline: the job
// lifecycle state machine, the normalized record produced by the result
// normalizer, and the batch input types.
package model

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state of an enrichment job.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateTimedOut   JobState = "timed_out"
	JobStateCancelled  JobState = "cancelled"
)

// validTransitions encodes the lifecycle graph. Terminal states have no
// outgoing edges, which makes transitions like completed -> processing
// unrepresentable.
var validTransitions = map[JobState][]JobState{
	JobStateQueued: {
		JobStateProcessing,
		JobStateCompleted,
		JobStateFailed,
		JobStateTimedOut,
		JobStateCancelled,
	},
	JobStateProcessing: {
		JobStateCompleted,
		JobStateFailed,
		JobStateTimedOut,
		JobStateCancelled,
	},
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateTimedOut, JobStateCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known job state.
func (s JobState) Valid() bool {
	switch s {
	case JobStateQueued, JobStateProcessing, JobStateCompleted,
		JobStateFailed, JobStateTimedOut, JobStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from one state to another is legal.
// Self-transitions are allowed for non-terminal states (repeated polls may
// observe the same remote status).
func CanTransition(from, to JobState) bool {
	if from == to {
		return !from.Terminal()
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EnrichmentJob tracks one submission to the classification source.
type EnrichmentJob struct {
	ID            string          `json:"id"`
	RemoteID      string          `json:"remote_id,omitempty"`
	TargetURL     string          `json:"target_url,omitempty"`
	BatchRef      string          `json:"batch_ref,omitempty"`
	State         JobState        `json:"state"`
	Progress      int             `json:"progress"`
	QueuePosition int             `json:"queue_position,omitempty"`
	Error         string          `json:"error,omitempty"`
	NeedsReview   bool            `json:"needs_review"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

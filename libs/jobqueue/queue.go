// Package jobqueue is a durable, lease-based work queue keyed by job kind.
//
// A job moves waiting -> active (on Claim) -> gone (Ack), back to delayed
// (Retry) or into the dead set (Bury). Active jobs carry a lease deadline;
// once it passes the job is handed out again, so handlers must tolerate
// running more than once.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
)

var (
	ErrEmpty     = errors.New("jobqueue: no job ready")
	ErrNotFound  = errors.New("jobqueue: job not found")
	ErrExhausted = errors.New("jobqueue: attempts exhausted")
)

type Job struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Payload     json.RawMessage    `json:"payload"`
	Attempts    int                `json:"attempts"`
	MaxAttempts int                `json:"max_attempts,omitempty"`
	EnqueuedAt  time.Time          `json:"enqueued_at"`
	LastError   string             `json:"last_error,omitempty"`
	FailedAt    *time.Time         `json:"failed_at,omitempty"`
	Trace       otelx.TraceContext `json:"trace,omitempty"`
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

type Stats struct {
	Waiting int64 `json:"waiting"`
	Delayed int64 `json:"delayed"`
	Active  int64 `json:"active"`
	Dead    int64 `json:"dead"`
}

type Queue interface {
	// Add enqueues job and returns immediately. Adding an id that is already
	// queued, or was acknowledged recently, is a no-op returning the job.
	Add(ctx context.Context, job Job) (Job, error)
	// Claim leases the next ready job of kind. It returns ErrEmpty when
	// nothing is ready.
	Claim(ctx context.Context, kind string, lease time.Duration) (Job, error)
	Ack(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, runAt time.Time, reason string) error
	Bury(ctx context.Context, job Job, reason string) error
	// Dead lists buried jobs, most recently failed first.
	Dead(ctx context.Context, kind string, limit int) ([]Job, error)
	// Redrive moves a buried job back to waiting with a fresh attempt budget.
	Redrive(ctx context.Context, kind, id string) error
	Stats(ctx context.Context, kind string) (Stats, error)
	Ping(ctx context.Context) error
}

func validate(job Job) error {
	if job.ID == "" {
		return errors.New("jobqueue: job id is required")
	}
	if job.Kind == "" {
		return errors.New("jobqueue: job kind is required")
	}
	return nil
}

// Package progress tracks a generation job's progress over a push
// subscription with automatic promotion to interval polling when the push
// channel fails.
package progress

import (
	"context"
	"io"
)

// Status is the server-reported job phase.
type Status string

const (
	// StatusQueued indicates the job is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusRunning indicates generation is in progress.
	StatusRunning Status = "running"
	// StatusDone indicates generation finished successfully.
	StatusDone Status = "done"
	// StatusError indicates the job itself failed.
	StatusError Status = "error"
)

// Terminal reports whether the status ends the job.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// State is one progress snapshot for a job.
type State struct {
	Percent    float64  `json:"percent"`
	Message    string   `json:"message"`
	ETASeconds *float64 `json:"eta_seconds"`
	Status     Status   `json:"status"`
}

// Final reports whether the state freezes the job: a terminal status or
// percent at (or past) 100. No further mutation is applied once reached.
func (s State) Final() bool {
	return s.Status.Terminal() || s.Percent >= 100
}

// Transport is the push/poll contract with the backend. Subscribe streams
// events for a job until the returned handle is closed; transport failures
// surface through onErr, never through onEvent. PollOnce fetches a single
// snapshot and is used only as the fallback path.
type Transport interface {
	Subscribe(jobID string, onEvent func(State), onErr func(error)) (io.Closer, error)
	PollOnce(ctx context.Context, jobID string) (State, error)
}

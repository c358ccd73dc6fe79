package progress

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultPollInterval is the fallback polling cadence.
const DefaultPollInterval = 500 * time.Millisecond

// Tracker is the per-job progress state machine:
//
//	initializing -> streaming -> (polling fallback) -> terminal
//
// At most one subscription is active; starting a new job stops the previous
// one. Cancellation is cooperative through the stopped flag; events that
// arrive after Stop, or after the job froze at a terminal state, are
// discarded.
type Tracker struct {
	transport Transport
	interval  time.Duration

	mu        sync.Mutex
	jobID     string
	state     State
	active    bool
	stopped   bool
	polling   bool
	sub       io.Closer
	pollStop  chan struct{}
	callbacks []func(jobID string, state State)
}

// NewTracker creates a Tracker on the given transport.
func NewTracker(transport Transport, pollInterval time.Duration) *Tracker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Tracker{transport: transport, interval: pollInterval}
}

// OnUpdate registers an observer for state changes. Callbacks run on the
// delivering goroutine and must not block.
func (t *Tracker) OnUpdate(fn func(jobID string, state State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// Start begins tracking a job. Any previous subscription is closed first,
// an initial synthetic queued state is emitted, and a push subscription is
// opened. A failed subscribe promotes straight to polling.
func (t *Tracker) Start(jobID string) {
	t.mu.Lock()
	t.stopLocked()
	t.jobID = jobID
	t.stopped = false
	t.active = true
	t.state = State{Status: StatusQueued}
	initial := t.state
	cbs := t.snapshotCallbacksLocked()
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(jobID, initial)
	}

	sub, err := t.transport.Subscribe(jobID,
		func(st State) { t.handleEvent(jobID, st) },
		func(err error) { t.promote(jobID, err) },
	)
	if err != nil {
		log.Warn("progress: subscribe failed, falling back to polling", "job", jobID, "error", err)
		t.promote(jobID, err)
		return
	}

	t.mu.Lock()
	if t.jobID == jobID && !t.stopped {
		t.sub = sub
		t.mu.Unlock()
		return
	}
	// Start raced with Stop or a newer Start.
	t.mu.Unlock()
	_ = sub.Close()
}

// Stop cancels tracking: sets the stopped flag, closes the subscription,
// stops the poll loop, and clears observable state. It is the only
// cancellation mechanism; there is no timeout-based auto-cancel.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.stopLocked()
}

// State returns the current state and whether a job is being tracked.
func (t *Tracker) State() (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.active
}

// Polling reports whether the tracker has fallen back to interval polling.
func (t *Tracker) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polling
}

// handleEvent applies one event. Events for a stale job id, after Stop, or
// after the state froze are dropped; this guards the race between fallback
// promotion and a stray late push event.
func (t *Tracker) handleEvent(jobID string, st State) {
	t.mu.Lock()
	if t.stopped || jobID != t.jobID || t.state.Final() {
		t.mu.Unlock()
		return
	}

	if st.Percent < 0 {
		st.Percent = 0
	} else if st.Percent > 100 {
		st.Percent = 100
	}
	t.state = st
	cbs := t.snapshotCallbacksLocked()
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(jobID, st)
	}
}

// promote switches from the push channel to interval polling. It is a
// no-op when stopped, already polling, tracking a different job, or
// already final.
func (t *Tracker) promote(jobID string, cause error) {
	t.mu.Lock()
	if t.stopped || t.polling || jobID != t.jobID || t.state.Final() {
		t.mu.Unlock()
		return
	}
	t.polling = true
	stop := make(chan struct{})
	t.pollStop = stop
	t.mu.Unlock()

	log.Debug("progress: push channel failed, promoting to polling", "job", jobID, "error", cause)
	go t.pollLoop(jobID, stop)
}

// pollLoop queries the single-snapshot endpoint until the job reaches a
// final state or the loop is stopped.
func (t *Tracker) pollLoop(jobID string, stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.interval)
			st, err := t.transport.PollOnce(ctx, jobID)
			cancel()
			if err != nil {
				log.Debug("progress: poll failed", "job", jobID, "error", err)
				continue
			}
			t.handleEvent(jobID, st)
			if st.Final() {
				return
			}
		}
	}
}

// stopLocked closes the subscription and poll loop and clears state.
// Caller holds mu.
func (t *Tracker) stopLocked() {
	if t.sub != nil {
		_ = t.sub.Close()
		t.sub = nil
	}
	if t.pollStop != nil {
		close(t.pollStop)
		t.pollStop = nil
	}
	t.polling = false
	t.active = false
	t.jobID = ""
	t.state = State{}
}

func (t *Tracker) snapshotCallbacksLocked() []func(string, State) {
	cbs := make([]func(string, State), len(t.callbacks))
	copy(cbs, t.callbacks)
	return cbs
}

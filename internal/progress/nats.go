package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject namespace for progress traffic.
// Events stream on <prefix>.<job>; snapshots answer requests on
// <prefix>.<job>.snapshot.
const DefaultSubjectPrefix = "voicelab.progress"

// NATSTransport implements Transport over a NATS connection.
type NATSTransport struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSTransport creates a transport on an existing connection. An empty
// prefix selects DefaultSubjectPrefix.
func NewNATSTransport(conn *nats.Conn, prefix string) *NATSTransport {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSTransport{conn: conn, prefix: prefix}
}

// Subscribe opens a push subscription for a job's progress events.
// Connection degradation (reconnecting or closed) is reported through
// onErr so the tracker can promote to polling.
func (t *NATSTransport) Subscribe(jobID string, onEvent func(State), onErr func(error)) (io.Closer, error) {
	subject := t.prefix + "." + jobID

	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		var st State
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			log.Debug("progress: dropping malformed event", "subject", subject, "error", err)
			return
		}
		onEvent(st)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	done := make(chan struct{})
	statusCh := t.conn.StatusChanged(nats.RECONNECTING, nats.CLOSED)
	go func() {
		select {
		case status, ok := <-statusCh:
			if ok && onErr != nil {
				onErr(fmt.Errorf("nats connection %s", status))
			}
		case <-done:
		}
	}()

	return &natsSubscription{sub: sub, done: done}, nil
}

// PollOnce requests a single snapshot of the job's status.
func (t *NATSTransport) PollOnce(ctx context.Context, jobID string) (State, error) {
	subject := t.prefix + "." + jobID + ".snapshot"

	msg, err := t.conn.RequestWithContext(ctx, subject, nil)
	if err != nil {
		return State{}, fmt.Errorf("poll %s: %w", jobID, err)
	}

	var st State
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		return State{}, fmt.Errorf("decode snapshot for %s: %w", jobID, err)
	}
	return st, nil
}

// natsSubscription couples the subscription with its status watcher.
type natsSubscription struct {
	sub  *nats.Subscription
	done chan struct{}
	once sync.Once
	err  error
}

// Close unsubscribes and stops the status watcher.
func (s *natsSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}

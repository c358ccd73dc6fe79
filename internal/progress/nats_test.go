package progress

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startNATS runs an embedded server on a random port and returns a
// connected client.
func startNATS(t *testing.T) *nats.Conn {
	t.Helper()

	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded nats server did not become ready")
	}
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// eventSink collects delivered states.
type eventSink struct {
	mu     sync.Mutex
	states []State
}

func (s *eventSink) record(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *eventSink) snapshot() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.states))
	copy(out, s.states)
	return out
}

func TestNATSTransportDeliversEvents(t *testing.T) {
	nc := startNATS(t)
	transport := NewNATSTransport(nc, "")
	sink := &eventSink{}

	sub, err := transport.Subscribe("job1", sink.record, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close() //nolint:errcheck
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	payload, err := json.Marshal(State{Percent: 42, Message: "synthesizing", Status: StatusRunning})
	if err != nil {
		t.Fatal(err)
	}
	if err := nc.Publish(DefaultSubjectPrefix+".job1", payload); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, time.Second, func() bool { return len(sink.snapshot()) == 1 })

	got := sink.snapshot()[0]
	if got.Percent != 42 || got.Status != StatusRunning || got.Message != "synthesizing" {
		t.Errorf("delivered state = %+v", got)
	}
}

// TestNATSTransportDropsMalformedEvents verifies that an unparseable
// payload is discarded without disturbing later events.
func TestNATSTransportDropsMalformedEvents(t *testing.T) {
	nc := startNATS(t)
	transport := NewNATSTransport(nc, "")
	sink := &eventSink{}

	sub, err := transport.Subscribe("job2", sink.record, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close() //nolint:errcheck
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := nc.Publish(DefaultSubjectPrefix+".job2", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(State{Percent: 10, Status: StatusRunning})
	if err != nil {
		t.Fatal(err)
	}
	if err := nc.Publish(DefaultSubjectPrefix+".job2", payload); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, time.Second, func() bool { return len(sink.snapshot()) == 1 })

	if got := sink.snapshot()[0]; got.Percent != 10 {
		t.Errorf("surviving event = %+v, want percent 10", got)
	}
}

func TestNATSTransportPollOnce(t *testing.T) {
	nc := startNATS(t)
	transport := NewNATSTransport(nc, "")

	responder, err := nc.Subscribe(DefaultSubjectPrefix+".job3.snapshot", func(msg *nats.Msg) {
		payload, err := json.Marshal(State{Percent: 100, Status: StatusDone})
		if err != nil {
			return
		}
		_ = msg.Respond(payload)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer responder.Unsubscribe() //nolint:errcheck
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st, err := transport.PollOnce(ctx, "job3")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusDone || st.Percent != 100 {
		t.Errorf("snapshot = %+v, want done at 100", st)
	}
}

func TestNATSSubscriptionCloseIsIdempotent(t *testing.T) {
	nc := startNATS(t)
	transport := NewNATSTransport(nc, "")

	sub, err := transport.Subscribe("job4", func(State) {}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := sub.Close(); err != nil {
		t.Errorf("first Close err = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close err = %v", err)
	}
}

package broker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"taxihub/internal/broker"
	"taxihub/pkg/protocol"
)

// recorder collects delivered envelopes for assertions.
type recorder struct {
	id string
	mu sync.Mutex
	de []protocol.Envelope
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(_ context.Context, env protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.de = append(r.de, env)
}

func (r *recorder) delivered() []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Envelope, len(r.de))
	copy(out, r.de)
	return out
}

func echoEnv(t *testing.T, data string) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.TypeEcho, data)
	if err != nil {
		t.Fatalf("failed to build envelope: %v", err)
	}
	return env
}

func TestPublishReachesOnlySubscribers(t *testing.T) {
	b := broker.NewMemory()
	in := &recorder{id: "in"}
	out := &recorder{id: "out"}

	b.Subscribe("drivers", in)
	b.Publish(context.Background(), "drivers", echoEnv(t, "hello"))

	if got := len(in.delivered()); got != 1 {
		t.Fatalf("expected 1 delivery to subscriber, got %d", got)
	}
	if got := len(out.delivered()); got != 0 {
		t.Fatalf("expected no delivery to non-subscriber, got %d", got)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	b := broker.NewMemory()
	r := &recorder{id: "r1"}

	b.Subscribe("g", r)
	b.Subscribe("g", r)
	b.Publish(context.Background(), "g", echoEnv(t, "once"))

	if got := len(r.delivered()); got != 1 {
		t.Fatalf("duplicate subscribe must not duplicate delivery, got %d deliveries", got)
	}
}

func TestUnsubscribeIsNoOpWhenAbsent(t *testing.T) {
	b := broker.NewMemory()
	r := &recorder{id: "r1"}

	// Never subscribed; must not panic or alter anything.
	b.Unsubscribe("g", r)

	b.Subscribe("g", r)
	b.Unsubscribe("g", r)
	b.Unsubscribe("g", r)
	b.Publish(context.Background(), "g", echoEnv(t, "gone"))

	if got := len(r.delivered()); got != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", got)
	}
}

func TestPublishPreservesPublisherOrder(t *testing.T) {
	b := broker.NewMemory()
	r := &recorder{id: "r1"}
	b.Subscribe("g", r)

	for _, msg := range []string{"one", "two", "three"} {
		b.Publish(context.Background(), "g", echoEnv(t, msg))
	}

	got := r.delivered()
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		var s string
		if err := json.Unmarshal(got[i].Data, &s); err != nil {
			t.Fatalf("failed to unmarshal delivery %d: %v", i, err)
		}
		if s != want {
			t.Fatalf("delivery %d: expected %q, got %q", i, want, s)
		}
	}
}

func TestCloseGroupEvictsAllSubscribers(t *testing.T) {
	b := broker.NewMemory()
	r1 := &recorder{id: "r1"}
	r2 := &recorder{id: "r2"}
	b.Subscribe("trip-1", r1)
	b.Subscribe("trip-1", r2)

	b.CloseGroup("trip-1")
	b.Publish(context.Background(), "trip-1", echoEnv(t, "late"))

	if len(r1.delivered()) != 0 || len(r2.delivered()) != 0 {
		t.Fatalf("expected no deliveries after CloseGroup")
	}
	if s := b.Stats(); s.Groups != 0 || s.Subscriptions != 0 {
		t.Fatalf("expected empty stats after CloseGroup, got %+v", s)
	}
}

func TestStatsCounts(t *testing.T) {
	b := broker.NewMemory()
	r1 := &recorder{id: "r1"}
	r2 := &recorder{id: "r2"}
	b.Subscribe("a", r1)
	b.Subscribe("a", r2)
	b.Subscribe("b", r1)

	s := b.Stats()
	if s.Groups != 2 {
		t.Fatalf("expected 2 groups, got %d", s.Groups)
	}
	if s.Subscriptions != 3 {
		t.Fatalf("expected 3 subscriptions, got %d", s.Subscriptions)
	}
}

package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"taxihub/internal/trip"
	"taxihub/pkg/protocol"
)

func TestConnectRejectsAnonymous(t *testing.T) {
	r := newRig(t)

	if _, err := r.manager.Connect(context.Background(), "", r.router); !errors.Is(err, trip.ErrBadCredential) {
		t.Fatalf("expected ErrBadCredential for empty token, got %v", err)
	}
	if _, err := r.manager.Connect(context.Background(), "not-a-token", r.router); !errors.Is(err, trip.ErrBadCredential) {
		t.Fatalf("expected ErrBadCredential for unknown token, got %v", err)
	}
	if r.manager.Count() != 0 {
		t.Fatalf("rejected connects must not register connections")
	}
}

func TestConnectJoinsDriverPool(t *testing.T) {
	r := newRig(t)
	rider := r.connect(t, riderToken)
	driver := r.connect(t, driverToken)

	env, _ := protocol.NewEnvelope(protocol.TypeEcho, "pool message")
	r.broker.Publish(context.Background(), protocol.GroupDrivers, env)

	if got := readEnvelope(t, driver); got.Type != protocol.TypeEcho {
		t.Fatalf("driver should receive pool broadcast, got %s", got.Type)
	}
	expectNoFrame(t, rider)
}

func TestConnectResubscribesActiveTrips(t *testing.T) {
	r := newRig(t)
	r.store.Seed(trip.Record{ID: "t-open", RiderID: "r1", Status: trip.StatusRequested})
	r.store.Seed(trip.Record{ID: "t-done", RiderID: "r1", Status: trip.StatusCompleted})

	rider := r.connect(t, riderToken)

	// Rejoined the non-terminal trip's group without any trip action.
	env, _ := protocol.NewEnvelope(protocol.TypeEcho, "still here")
	r.broker.Publish(context.Background(), "t-open", env)
	if got := readEnvelope(t, rider); got.Type != protocol.TypeEcho {
		t.Fatalf("expected echo from resubscribed trip group, got %s", got.Type)
	}

	// But not the terminal one.
	r.broker.Publish(context.Background(), "t-done", env)
	expectNoFrame(t, rider)
}

func TestDisconnectLeavesAllGroups(t *testing.T) {
	r := newRig(t)
	r.store.Seed(trip.Record{ID: "t-open", RiderID: "r1", Status: trip.StatusRequested})
	rider := r.connect(t, riderToken)
	driver := r.connect(t, driverToken)

	r.manager.Disconnect(context.Background(), driver)
	r.manager.Disconnect(context.Background(), rider)

	env, _ := protocol.NewEnvelope(protocol.TypeEcho, "anyone there")
	r.broker.Publish(context.Background(), protocol.GroupDrivers, env)
	r.broker.Publish(context.Background(), "t-open", env)

	if s := r.broker.Stats(); s.Subscriptions != 0 {
		t.Fatalf("expected no subscriptions after disconnects, got %+v", s)
	}
	if r.manager.Count() != 0 {
		t.Fatalf("expected empty registry after disconnects, got %d", r.manager.Count())
	}
}

func TestDisconnectTwiceIsNoOp(t *testing.T) {
	r := newRig(t)
	rider := r.connect(t, riderToken)

	r.manager.Disconnect(context.Background(), rider)
	// Second disconnect and a nil connection must both be harmless.
	r.manager.Disconnect(context.Background(), rider)
	r.manager.Disconnect(context.Background(), nil)
}

func TestMultipleConnectionsPerIdentity(t *testing.T) {
	r := newRig(t)
	first := r.connect(t, driverToken)
	second := r.connect(t, driverToken)

	// Membership is connection-scoped: both live connections of the same
	// identity get independent deliveries.
	env, _ := protocol.NewEnvelope(protocol.TypeEcho, "pool message")
	r.broker.Publish(context.Background(), protocol.GroupDrivers, env)
	readEnvelope(t, first)
	readEnvelope(t, second)

	// Dropping one leaves the other subscribed.
	r.manager.Disconnect(context.Background(), first)
	r.broker.Publish(context.Background(), protocol.GroupDrivers, env)
	readEnvelope(t, second)
}

func TestLookupFindsLiveConnections(t *testing.T) {
	r := newRig(t)
	rider := r.connect(t, riderToken)

	if got, ok := r.manager.Lookup(rider.ID()); !ok || got != rider {
		t.Fatalf("expected to find live connection by id")
	}
	r.manager.Disconnect(context.Background(), rider)
	if _, ok := r.manager.Lookup(rider.ID()); ok {
		t.Fatalf("closed connection must leave the registry")
	}
}

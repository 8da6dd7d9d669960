package broker

import (
	"context"
	"sync"

	"taxihub/pkg/protocol"
)

// Subscriber is a handle the broker can deliver envelopes to. A delivered
// envelope enters the subscriber's own dispatch path, the same one that
// serves frames arriving on its socket.
type Subscriber interface {
	ID() string
	Deliver(ctx context.Context, env protocol.Envelope)
}

// Broker is a named-group publish/subscribe primitive. Subscribe and
// Unsubscribe are idempotent; Publish fans out to the subscribers present at
// call time, best effort.
type Broker interface {
	Subscribe(group string, sub Subscriber)
	Unsubscribe(group string, sub Subscriber)
	Publish(ctx context.Context, group string, env protocol.Envelope)
	CloseGroup(group string)
	DropAll(sub Subscriber)
	Stats() Stats
}

// Stats reports the current size of the broker's registry.
type Stats struct {
	Groups        int `json:"groups"`
	Subscriptions int `json:"subscriptions"`
}

// Memory is the in-process Broker. Mutations on a group's subscriber set are
// serialized by a single RWMutex; cross-group operations need no joint
// atomicity.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[string]Subscriber
}

func NewMemory() *Memory {
	return &Memory{groups: make(map[string]map[string]Subscriber)}
}

func (m *Memory) Subscribe(group string, sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.groups[group]
	if !ok {
		set = make(map[string]Subscriber)
		m.groups[group] = set
	}
	set[sub.ID()] = sub
}

func (m *Memory) Unsubscribe(group string, sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.groups[group]
	if !ok {
		return
	}
	delete(set, sub.ID())
	if len(set) == 0 {
		delete(m.groups, group)
	}
}

// Publish delivers env to every current subscriber of group. The subscriber
// set is snapshotted under the read lock and delivery happens outside it, so
// handlers invoked downstream may call back into the broker. Delivering
// sequentially from the publishing goroutine keeps a single publisher's
// sequence ordered per subscriber; a subscriber that unsubscribes mid-fanout
// may still receive this message.
func (m *Memory) Publish(ctx context.Context, group string, env protocol.Envelope) {
	m.mu.RLock()
	set := m.groups[group]
	subs := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(ctx, env)
	}
}

// CloseGroup removes every subscriber from group at once. Used when a trip
// reaches a terminal status and its group should not outlive it.
func (m *Memory) CloseGroup(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, group)
}

// DropAll removes sub from every group it is still in. Teardown sweep: a
// trip that went terminal during the session no longer shows up in the
// active-trip re-query at disconnect, but its group may still hold the
// connection.
func (m *Memory) DropAll(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := sub.ID()
	for group, set := range m.groups {
		delete(set, id)
		if len(set) == 0 {
			delete(m.groups, group)
		}
	}
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Groups: len(m.groups)}
	for _, set := range m.groups {
		s.Subscriptions += len(set)
	}
	return s
}

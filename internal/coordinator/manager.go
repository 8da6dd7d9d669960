package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"taxihub/internal/broker"
	"taxihub/internal/trip"
	"taxihub/internal/types"
	"taxihub/pkg/protocol"
)

// Manager owns connection lifecycles: PENDING -> ACTIVE -> CLOSED, no
// re-entry. Connect resolves the identity and computes initial group
// memberships; Disconnect mirrors them before the transport is torn down. It
// also keeps the registry of live connections by id.
type Manager struct {
	log    *slog.Logger
	broker broker.Broker
	dir    trip.Directory
	trips  trip.Store

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewManager(log *slog.Logger, b broker.Broker, dir trip.Directory, trips trip.Store) *Manager {
	return &Manager{
		log:    log,
		broker: b,
		dir:    dir,
		trips:  trips,
		conns:  make(map[string]*Conn),
	}
}

// Connect resolves the bearer token, joins the driver pool for driver-role
// identities, rejoins the groups of every non-terminal trip the identity is
// on, and activates the connection. An absent or unknown token fails before
// any membership is taken; the caller closes the transport silently.
func (m *Manager) Connect(ctx context.Context, token string, router *Router) (*Conn, error) {
	if token == "" {
		return nil, trip.ErrBadCredential
	}
	user, err := m.dir.UserByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	recs, err := m.trips.ActiveFor(ctx, user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("fetch active trips: %w", err)
	}

	c := newConn(user, router)
	if user.Role == types.RoleDriver {
		m.broker.Subscribe(protocol.GroupDrivers, c)
	}
	for _, rec := range recs {
		m.broker.Subscribe(rec.ID, c)
	}
	c.activate()

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()

	m.log.Info("connection active", "conn_id", c.id, "user_id", user.ID, "role", user.Role, "trips", len(recs))
	return c, nil
}

// Disconnect mirrors Connect: the driver pool membership and every
// non-terminal trip group (re-queried, so status changes during the session
// are reflected) are left before the caller tears the transport down. A
// connection that never reached ACTIVE is a no-op.
func (m *Manager) Disconnect(ctx context.Context, c *Conn) {
	if c == nil {
		return
	}
	if !c.beginClose() {
		return
	}
	user := c.User()

	if user.Role == types.RoleDriver {
		m.broker.Unsubscribe(protocol.GroupDrivers, c)
	}
	recs, err := m.trips.ActiveFor(ctx, user.ID, user.Role)
	if err != nil {
		m.log.Warn("active trip lookup failed during disconnect", "conn_id", c.id, "error", err)
	}
	for _, rec := range recs {
		m.broker.Unsubscribe(rec.ID, c)
	}
	// Sweep memberships the re-query cannot see, e.g. a trip completed
	// mid-session.
	m.broker.DropAll(c)

	m.mu.Lock()
	delete(m.conns, c.id)
	m.mu.Unlock()

	c.closeSend()
	m.log.Info("connection closed", "conn_id", c.id, "user_id", user.ID)
}

// Lookup finds a live connection by id.
func (m *Manager) Lookup(connID string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[connID]
	return c, ok
}

// Count reports the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

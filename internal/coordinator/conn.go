package coordinator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/ksuid"

	"taxihub/internal/types"
	"taxihub/pkg/protocol"
)

type connState int

const (
	statePending connState = iota
	stateActive
	stateClosed
)

// Conn is one live connection: the identity resolved at connect time, the
// outbound frame queue drained by the transport's write pump, and the dispatch
// table broker deliveries are routed through. It is the broker.Subscriber for
// its socket.
type Conn struct {
	id     string
	user   types.User
	router *Router

	mu         sync.Mutex
	state      connState
	sendClosed bool
	send       chan []byte
}

func newConn(user types.User, router *Router) *Conn {
	return &Conn{
		id:     ksuid.New().String(),
		user:   user,
		router: router,
		state:  statePending,
		send:   make(chan []byte, 64),
	}
}

func (c *Conn) ID() string { return c.id }

// User returns the identity and cached role bound at connect time.
func (c *Conn) User() types.User { return c.user }

// Outbound is the queue of frames to write to the socket.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Deliver hands a broker-published envelope to this connection's dispatch
// table, the same path an inbound frame takes.
func (c *Conn) Deliver(ctx context.Context, env protocol.Envelope) {
	c.router.Dispatch(ctx, c, env)
}

// trySend queues a frame without blocking. A full queue or a closed
// connection drops the frame; delivery is best effort.
func (c *Conn) trySend(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed || c.sendClosed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Conn) sendEnvelope(env protocol.Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return c.trySend(b)
}

func (c *Conn) sendError(msg string) {
	c.sendEnvelope(protocol.ErrorEnvelope(msg))
}

func (c *Conn) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == statePending {
		c.state = stateActive
	}
}

// beginClose transitions to CLOSED and reports whether the connection had
// reached ACTIVE. There is no re-entry from CLOSED.
func (c *Conn) beginClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasActive := c.state == stateActive
	c.state = stateClosed
	return wasActive
}

// closeSend closes the outbound queue, ending the write pump. Called after
// group teardown so the broker cannot address a closed queue.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

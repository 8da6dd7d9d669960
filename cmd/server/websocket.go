package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"taxihub/internal/coordinator"
	"taxihub/pkg/protocol"
)

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx := c.Request.Context()
	conn, err := s.manager.Connect(ctx, c.Query("token"), s.router)
	if err != nil {
		// Rejected without explanation: the handshake succeeded, the
		// credential did not.
		_ = ws.Close(websocket.StatusPolicyViolation, "")
		return
	}

	go s.writePump(ctx, ws, conn)

	defer func() {
		// Group teardown first, then the transport.
		s.manager.Disconnect(ctx, conn)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	s.readLoop(ctx, ws, conn)
}

// readLoop decodes inbound frames into envelopes and hands them to the
// dispatch table. Malformed frames are logged and skipped; a read error ends
// the session.
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, conn *coordinator.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			s.log.Debug("websocket read ended", "conn_id", conn.ID(), "error", err)
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug("malformed frame skipped", "conn_id", conn.ID(), "error", err)
			continue
		}
		conn.Deliver(ctx, env)
	}
}

const keepaliveInterval = 30 * time.Second

// writePump drains the connection's outbound queue onto the socket and pings
// it between frames to keep idle sessions alive. It ends when the queue is
// closed by Disconnect or the socket fails.
func (s *Server) writePump(ctx context.Context, ws *websocket.Conn, conn *coordinator.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case b, ok := <-conn.Outbound():
			if !ok {
				return
			}
			if err := ws.Write(ctx, websocket.MessageText, b); err != nil {
				s.log.Debug("websocket write ended", "conn_id", conn.ID(), "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Debug("websocket ping failed", "conn_id", conn.ID(), "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

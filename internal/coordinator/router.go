package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"taxihub/pkg/protocol"
)

// Handler processes the data portion of one envelope on behalf of a
// connection.
type Handler func(ctx context.Context, c *Conn, data json.RawMessage)

// Router maps envelope type tags to handlers. The table is fixed at startup;
// unknown tags are dropped.
type Router struct {
	log      *slog.Logger
	handlers map[string]Handler
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{log: log, handlers: make(map[string]Handler)}
}

func (r *Router) Handle(msgType string, h Handler) {
	r.handlers[msgType] = h
}

// Dispatch routes env to its handler. Unknown types are dropped without an
// error envelope; the tag is logged so a misbehaving client is at least
// visible.
func (r *Router) Dispatch(ctx context.Context, c *Conn, env protocol.Envelope) {
	h, ok := r.handlers[env.Type]
	if !ok {
		r.log.Debug("dropping message with unknown type", "type", env.Type, "conn_id", c.ID())
		return
	}
	ctx, span := otel.Tracer("taxihub/coordinator").Start(ctx, "dispatch "+env.Type)
	span.SetAttributes(
		attribute.String("message.type", env.Type),
		attribute.String("conn.id", c.ID()),
	)
	defer span.End()
	h(ctx, c, env.Data)
}

// Package client is a typed Go client for the taxihub websocket API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	cidpkg "taxihub/internal/cid"
	"taxihub/internal/trip"
	"taxihub/pkg/protocol"
)

// buildDialHeaders constructs the HTTP header map used for websocket.Dial.
// Extracted to allow unit testing of header propagation.
func buildDialHeaders(ctx context.Context, userAgent string) map[string][]string {
	headers := map[string][]string{"User-Agent": {userAgent}}
	cidpkg.AddHeaderFromContext(headers, ctx)
	return headers
}

// wsEndpoint converts a server base URL (http or ws scheme) into the /ws
// dial URL with the token attached.
func wsEndpoint(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Config holds the dial parameters.
type Config struct {
	// ServerURL is the server base URL, e.g. http://localhost:8000.
	ServerURL string
	// Token is the bearer credential resolved by the server at connect time.
	Token string
	// UserAgent defaults to taxihub-client/1.0 when empty.
	UserAgent string
}

// Client is one authenticated websocket session.
type Client struct {
	conn *websocket.Conn
}

// Dial connects and authenticates. The server closes unauthenticated sockets
// with a policy violation status right after the handshake, so the first
// read, not Dial, may surface a bad token.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "taxihub-client/1.0"
	}
	endpoint, err := wsEndpoint(cfg.ServerURL, cfg.Token)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: buildDialHeaders(ctx, cfg.UserAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the session normally.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) send(ctx context.Context, msgType string, data any) error {
	env, err := protocol.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, c.conn, env)
}

// Echo sends an echo frame; the server reflects it back verbatim.
func (c *Client) Echo(ctx context.Context, data any) error {
	return c.send(ctx, protocol.TypeEcho, data)
}

// TripRequest is the create.trip payload.
type TripRequest struct {
	PickUpAddress  string `json:"pick_up_address"`
	DropOffAddress string `json:"drop_off_address"`
}

// RequestTrip asks the server to create a trip for the calling rider.
func (c *Client) RequestTrip(ctx context.Context, req TripRequest) error {
	return c.send(ctx, protocol.TypeCreateTrip, req)
}

// TripUpdate is the update.trip payload. Nil fields are left unchanged.
type TripUpdate struct {
	ID             string  `json:"id"`
	Status         *string `json:"status,omitempty"`
	Driver         *string `json:"driver,omitempty"`
	PickUpAddress  *string `json:"pick_up_address,omitempty"`
	DropOffAddress *string `json:"drop_off_address,omitempty"`
}

// UpdateTrip mutates a trip. Claiming a trip is an update that sets Driver.
func (c *Client) UpdateTrip(ctx context.Context, upd TripUpdate) error {
	return c.send(ctx, protocol.TypeUpdateTrip, upd)
}

// CancelTrip moves a trip to CANCELLED and dissolves its group.
func (c *Client) CancelTrip(ctx context.Context, tripID string) error {
	return c.send(ctx, protocol.TypeCancelTrip, map[string]string{"id": tripID})
}

// AddExtraRider invites another live connection into a trip's group. Only
// the trip's rider or assigned driver may invite.
func (c *Client) AddExtraRider(ctx context.Context, tripID, connID string) error {
	return c.send(ctx, protocol.TypeAddExtraRider, map[string]string{
		"trip_id":    tripID,
		"extra_user": connID,
	})
}

// Event is one server frame: an echo carrying a trip or arbitrary payload,
// or an error message.
type Event struct {
	Type string
	// Trip is set when the payload decodes as a trip representation.
	Trip *trip.Nested
	// Message is set for error frames.
	Message string
	// Raw is the undecoded payload.
	Raw json.RawMessage
}

// Next blocks for the next server frame.
func (c *Client) Next(ctx context.Context) (Event, error) {
	var env protocol.Envelope
	if err := wsjson.Read(ctx, c.conn, &env); err != nil {
		return Event{}, err
	}

	ev := Event{Type: env.Type, Raw: env.Data}
	switch env.Type {
	case protocol.TypeError:
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err == nil {
			ev.Message = msg
		}
	case protocol.TypeEcho:
		var n trip.Nested
		if err := json.Unmarshal(env.Data, &n); err == nil && n.ID != "" {
			ev.Trip = &n
		}
	}
	return ev, nil
}

// Events starts a background read loop and returns its channel. The channel
// closes when ctx is cancelled or the connection drops.
func (c *Client) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			ev, err := c.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

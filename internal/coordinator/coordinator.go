package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"taxihub/internal/broker"
	"taxihub/internal/trip"
	"taxihub/internal/types"
	"taxihub/pkg/protocol"
)

// User-facing error envelope messages.
const (
	MsgActiveTrip     = "You already have an active trip."
	MsgNotARider      = "You are not a rider."
	MsgMalformed      = "Malformed message data."
	MsgTripIDRequired = "Trip id is required."
	MsgTripNotFound   = "Trip not found."
	MsgDriverAssigned = "Trip already has a driver."
	MsgInvalidStatus  = "Invalid trip status."
	MsgNotParticipant = "You are not part of this trip."
	MsgTripOver       = "Trip is no longer active."
	MsgNoSuchConn     = "No such connection."
	MsgInternal       = "Unable to process your request."
)

// TripEvents mirrors trip lifecycle changes to an out-of-process consumer.
// Optional; a nil implementation disables mirroring.
type TripEvents interface {
	PublishStatus(ctx context.Context, tripID string, status trip.Status, riderID string) error
}

// Coordinator implements the business handlers behind the message router:
// persistence calls first, then group broadcasts of the outcome.
type Coordinator struct {
	log     *slog.Logger
	broker  broker.Broker
	trips   trip.Store
	rep     *trip.Representer
	manager *Manager
	events  TripEvents
}

func NewCoordinator(log *slog.Logger, b broker.Broker, trips trip.Store, rep *trip.Representer, manager *Manager, events TripEvents) *Coordinator {
	return &Coordinator{log: log, broker: b, trips: trips, rep: rep, manager: manager, events: events}
}

// Router builds the dispatch table. The echo handler serves both inbound
// echo frames and broker deliveries, which makes "publish to group" and
// "write to this socket" the same code path.
func (co *Coordinator) Router() *Router {
	r := NewRouter(co.log)
	r.Handle(protocol.TypeEcho, co.handleEcho)
	r.Handle(protocol.TypeCreateTrip, co.handleCreateTrip)
	r.Handle(protocol.TypeUpdateTrip, co.handleUpdateTrip)
	r.Handle(protocol.TypeCancelTrip, co.handleCancelTrip)
	r.Handle(protocol.TypeAddExtraRider, co.handleAddExtraRider)
	return r
}

func (co *Coordinator) handleEcho(_ context.Context, c *Conn, data json.RawMessage) {
	if !c.sendEnvelope(protocol.Envelope{Type: protocol.TypeEcho, Data: data}) {
		co.log.Debug("echo dropped, connection closed or queue full", "conn_id", c.ID())
	}
}

// handleCreateTrip persists a new REQUESTED trip for the calling rider,
// alerts the driver pool, and joins the requester to the trip's group.
//
// The duplicate-trip guard is check-then-act: the active-trip read and the
// insert are separate calls with no lock spanning them, so two concurrent
// requests from the same rider can both pass. That matches the upstream
// behavior this service replaces.
func (co *Coordinator) handleCreateTrip(ctx context.Context, c *Conn, data json.RawMessage) {
	user := c.User()
	if user.Role != types.RoleRider {
		c.sendError(MsgNotARider)
		return
	}

	active, err := co.trips.ActiveFor(ctx, user.ID, types.RoleRider)
	if err != nil {
		co.fail(c, "create.trip", err)
		return
	}
	if len(active) > 0 {
		c.sendError(MsgActiveTrip)
		return
	}

	var req trip.Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(MsgMalformed)
		return
	}
	// The rider of record is always the caller, whatever the payload says.
	req.RiderID = user.ID
	if err := req.Validate(); err != nil {
		c.sendError(validationMessage(err))
		return
	}

	rec, err := co.trips.Create(ctx, req)
	if err != nil {
		co.fail(c, "create.trip", err)
		return
	}
	nested, err := co.rep.Represent(ctx, rec)
	if err != nil {
		co.fail(c, "create.trip", err)
		return
	}
	env, err := protocol.NewEnvelope(protocol.TypeEcho, nested)
	if err != nil {
		co.fail(c, "create.trip", err)
		return
	}

	co.broker.Publish(ctx, protocol.GroupDrivers, env)
	co.broker.Subscribe(rec.ID, c)
	c.sendEnvelope(env)
	co.mirror(ctx, rec)
	co.log.Info("trip requested", "trip_id", rec.ID, "rider_id", user.ID)
}

type updatePayload struct {
	ID             string  `json:"id"`
	Status         *string `json:"status"`
	Driver         *string `json:"driver"`
	PickUpAddress  *string `json:"pick_up_address"`
	DropOffAddress *string `json:"drop_off_address"`
}

// handleUpdateTrip mutates a trip (typically a driver claiming it or
// advancing its status), notifies the trip group, joins the acting connection
// to it, and tells the rest of the pool the trip is no longer an open request
// by re-broadcasting it with the driver cleared.
func (co *Coordinator) handleUpdateTrip(ctx context.Context, c *Conn, data json.RawMessage) {
	var p updatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(MsgMalformed)
		return
	}
	if p.ID == "" {
		c.sendError(MsgTripIDRequired)
		return
	}

	patch := trip.Patch{
		DriverID:       p.Driver,
		PickUpAddress:  p.PickUpAddress,
		DropOffAddress: p.DropOffAddress,
	}
	if p.Status != nil {
		st := trip.Status(*p.Status)
		patch.Status = &st
	}

	rec, err := co.trips.Update(ctx, p.ID, patch)
	if err != nil {
		co.sendStoreError(c, "update.trip", err)
		return
	}
	nested, err := co.rep.Represent(ctx, rec)
	if err != nil {
		co.fail(c, "update.trip", err)
		return
	}
	env, err := protocol.NewEnvelope(protocol.TypeEcho, nested)
	if err != nil {
		co.fail(c, "update.trip", err)
		return
	}

	co.broker.Publish(ctx, rec.ID, env)
	co.broker.Subscribe(rec.ID, c)

	if poolEnv, err := protocol.NewEnvelope(protocol.TypeEcho, nested.WithoutDriver()); err == nil {
		co.broker.Publish(ctx, protocol.GroupDrivers, poolEnv)
	}

	c.sendEnvelope(env)
	co.mirror(ctx, rec)
	co.log.Info("trip updated", "trip_id", rec.ID, "status", rec.Status, "by", c.User().ID)
}

type cancelPayload struct {
	ID string `json:"id"`
}

// handleCancelTrip moves the trip to CANCELLED, broadcasts the final
// representation to the trip group and the pool, then closes the trip group
// so every subscriber is evicted, not just the caller.
func (co *Coordinator) handleCancelTrip(ctx context.Context, c *Conn, data json.RawMessage) {
	var p cancelPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(MsgMalformed)
		return
	}
	if p.ID == "" {
		c.sendError(MsgTripIDRequired)
		return
	}

	st := trip.StatusCancelled
	rec, err := co.trips.Update(ctx, p.ID, trip.Patch{Status: &st})
	if err != nil {
		co.sendStoreError(c, "cancel.trip", err)
		return
	}
	nested, err := co.rep.Represent(ctx, rec)
	if err != nil {
		co.fail(c, "cancel.trip", err)
		return
	}
	env, err := protocol.NewEnvelope(protocol.TypeEcho, nested)
	if err != nil {
		co.fail(c, "cancel.trip", err)
		return
	}

	co.broker.Publish(ctx, rec.ID, env)
	co.broker.Publish(ctx, protocol.GroupDrivers, env)
	co.broker.CloseGroup(rec.ID)
	c.sendEnvelope(env)
	co.mirror(ctx, rec)
	co.log.Info("trip cancelled", "trip_id", rec.ID, "by", c.User().ID)
}

type extraRiderPayload struct {
	TripID    string `json:"trip_id"`
	ExtraUser string `json:"extra_user"`
}

// handleAddExtraRider subscribes another live connection to a trip's group.
// Only the trip's rider or its assigned driver may invite.
func (co *Coordinator) handleAddExtraRider(ctx context.Context, c *Conn, data json.RawMessage) {
	var p extraRiderPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(MsgMalformed)
		return
	}
	if p.TripID == "" {
		c.sendError(MsgTripIDRequired)
		return
	}

	rec, err := co.trips.Get(ctx, p.TripID)
	if err != nil {
		co.sendStoreError(c, "add.extra.rider", err)
		return
	}
	user := c.User()
	if user.ID != rec.RiderID && (rec.DriverID == "" || user.ID != rec.DriverID) {
		c.sendError(MsgNotParticipant)
		return
	}
	if rec.Status.Terminal() {
		c.sendError(MsgTripOver)
		return
	}

	target, ok := co.manager.Lookup(p.ExtraUser)
	if !ok {
		c.sendError(MsgNoSuchConn)
		return
	}
	co.broker.Subscribe(rec.ID, target)
	co.log.Info("extra rider added to trip group", "trip_id", rec.ID, "conn_id", target.ID(), "by", user.ID)
}

// sendStoreError maps store errors onto user-visible error envelopes; the
// connection stays open.
func (co *Coordinator) sendStoreError(c *Conn, op string, err error) {
	switch {
	case errors.Is(err, trip.ErrNotFound):
		c.sendError(MsgTripNotFound)
	case errors.Is(err, trip.ErrDriverAssigned):
		c.sendError(MsgDriverAssigned)
	case errors.Is(err, trip.ErrInvalidStatus):
		c.sendError(MsgInvalidStatus)
	default:
		co.fail(c, op, err)
	}
}

func (co *Coordinator) fail(c *Conn, op string, err error) {
	co.log.Error("handler failed", "op", op, "conn_id", c.ID(), "error", err)
	c.sendError(MsgInternal)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, trip.ErrPickUpRequired):
		return "Pick up address is required."
	case errors.Is(err, trip.ErrDropOffRequired):
		return "Drop off address is required."
	case errors.Is(err, trip.ErrRiderRequired):
		return "Rider is required."
	default:
		return MsgMalformed
	}
}

func (co *Coordinator) mirror(ctx context.Context, rec trip.Record) {
	if co.events == nil {
		return
	}
	if err := co.events.PublishStatus(ctx, rec.ID, rec.Status, rec.RiderID); err != nil {
		co.log.Warn("trip status mirror failed", "trip_id", rec.ID, "error", err)
	}
}

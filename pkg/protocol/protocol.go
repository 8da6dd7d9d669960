package protocol

import "encoding/json"

// Message type tags shared between client and server. Inbound frames and
// broker deliveries use the same tag set.
const (
	TypeCreateTrip    = "create.trip"
	TypeUpdateTrip    = "update.trip"
	TypeCancelTrip    = "cancel.trip"
	TypeAddExtraRider = "add.extra.rider"
	TypeEcho          = "echo.message"
	TypeError         = "error"
)

// GroupDrivers is the reserved pool group every connected driver joins.
// Trip groups are keyed by the trip id in string form.
const GroupDrivers = "drivers"

// Envelope is the message unit exchanged over the transport and through the
// group broker, both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope with the given type tag.
func NewEnvelope(msgType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

// ErrorEnvelope wraps a human-readable message in an error envelope.
func ErrorEnvelope(msg string) Envelope {
	raw, _ := json.Marshal(msg)
	return Envelope{Type: TypeError, Data: raw}
}

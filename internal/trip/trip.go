package trip

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a trip.
type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the trip can no longer change. Terminal trips are
// excluded from active-trip queries and their broadcast groups are closed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Record is a persisted trip. DriverID is empty until a driver claims the
// trip.
type Record struct {
	ID             string
	PickUpAddress  string
	DropOffAddress string
	Status         Status
	RiderID        string
	DriverID       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Request carries the fields of a new trip. RiderID is set by the coordinator
// from the calling connection's identity, never trusted from the payload.
type Request struct {
	PickUpAddress  string `json:"pick_up_address"`
	DropOffAddress string `json:"drop_off_address"`
	RiderID        string `json:"rider"`
}

func (r *Request) Validate() error {
	if strings.TrimSpace(r.PickUpAddress) == "" {
		return ErrPickUpRequired
	}
	if strings.TrimSpace(r.DropOffAddress) == "" {
		return ErrDropOffRequired
	}
	if strings.TrimSpace(r.RiderID) == "" {
		return ErrRiderRequired
	}
	return nil
}

// Patch is a partial update. Nil fields are left untouched. Setting DriverID
// to a non-empty value is a claim and only succeeds while the trip has no
// driver of record.
type Patch struct {
	Status         *Status
	DriverID       *string
	PickUpAddress  *string
	DropOffAddress *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.DriverID == nil && p.PickUpAddress == nil && p.DropOffAddress == nil
}

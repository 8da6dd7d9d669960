package trip

import (
	"context"
	"fmt"
)

// UserSummary is the embedded form of a rider or driver inside a trip
// representation.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Nested is the full wire representation of a trip, with rider and driver
// expanded to summaries. Driver is null while the trip is an open request.
type Nested struct {
	ID             string       `json:"id"`
	PickUpAddress  string       `json:"pick_up_address"`
	DropOffAddress string       `json:"drop_off_address"`
	Status         Status       `json:"status"`
	Rider          *UserSummary `json:"rider"`
	Driver         *UserSummary `json:"driver"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
}

// WithoutDriver returns a copy with the driver cleared. Broadcast to the pool
// so drivers that lost the claim stop seeing the trip as an open request.
func (n Nested) WithoutDriver() Nested {
	n.Driver = nil
	return n
}

// Representer builds Nested representations, resolving rider and driver
// summaries through the user directory.
type Representer struct {
	dir Directory
}

func NewRepresenter(dir Directory) *Representer {
	return &Representer{dir: dir}
}

func (r *Representer) Represent(ctx context.Context, rec Record) (Nested, error) {
	n := Nested{
		ID:             rec.ID,
		PickUpAddress:  rec.PickUpAddress,
		DropOffAddress: rec.DropOffAddress,
		Status:         rec.Status,
		CreatedAt:      rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
		UpdatedAt:      rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}

	rider, err := r.dir.UserByID(ctx, rec.RiderID)
	if err != nil {
		return Nested{}, fmt.Errorf("resolve rider %s: %w", rec.RiderID, err)
	}
	n.Rider = &UserSummary{ID: rider.ID, Username: rider.Username}

	if rec.DriverID != "" {
		driver, err := r.dir.UserByID(ctx, rec.DriverID)
		if err != nil {
			return Nested{}, fmt.Errorf("resolve driver %s: %w", rec.DriverID, err)
		}
		n.Driver = &UserSummary{ID: driver.ID, Username: driver.Username}
	}
	return n, nil
}

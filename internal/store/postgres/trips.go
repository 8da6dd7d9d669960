package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/trip"
	"taxihub/internal/types"
)

type TripStore struct {
	pool *pgxpool.Pool
}

func NewTripStore(pool *pgxpool.Pool) *TripStore {
	return &TripStore{pool: pool}
}

var _ trip.Store = (*TripStore)(nil)

const tripColumns = `id, pick_up_address, drop_off_address, status, rider_id, driver_id, created_at, updated_at`

func scanTrip(row pgx.Row) (trip.Record, error) {
	var rec trip.Record
	var driver *string
	err := row.Scan(
		&rec.ID,
		&rec.PickUpAddress,
		&rec.DropOffAddress,
		&rec.Status,
		&rec.RiderID,
		&driver,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return trip.Record{}, err
	}
	if driver != nil {
		rec.DriverID = *driver
	}
	return rec, nil
}

func (s *TripStore) Create(ctx context.Context, req trip.Request) (trip.Record, error) {
	if err := req.Validate(); err != nil {
		return trip.Record{}, err
	}

	const q = `
		INSERT INTO trips (pick_up_address, drop_off_address, status, rider_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + tripColumns

	rec, err := scanTrip(s.pool.QueryRow(ctx, q, req.PickUpAddress, req.DropOffAddress, trip.StatusRequested, req.RiderID))
	if err != nil {
		return trip.Record{}, fmt.Errorf("insert trip: %w", err)
	}
	return rec, nil
}

func (s *TripStore) Get(ctx context.Context, id string) (trip.Record, error) {
	const q = `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	rec, err := scanTrip(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return trip.Record{}, trip.ErrNotFound
	}
	if err != nil {
		return trip.Record{}, fmt.Errorf("select trip: %w", err)
	}
	return rec, nil
}

// Update applies the patch inside a single statement. Assigning a driver adds
// a `driver_id IS NULL` guard so concurrent claims race on the row, not in
// application code; the loser sees ErrDriverAssigned.
func (s *TripStore) Update(ctx context.Context, id string, patch trip.Patch) (trip.Record, error) {
	if patch.Empty() {
		return s.Get(ctx, id)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return trip.Record{}, trip.ErrInvalidStatus
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}
	claimPlaceholder := ""

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+next(*patch.Status))
	}
	if patch.DriverID != nil && *patch.DriverID != "" {
		claimPlaceholder = next(*patch.DriverID)
		sets = append(sets, "driver_id = "+claimPlaceholder)
	}
	if patch.PickUpAddress != nil {
		sets = append(sets, "pick_up_address = "+next(*patch.PickUpAddress))
	}
	if patch.DropOffAddress != nil {
		sets = append(sets, "drop_off_address = "+next(*patch.DropOffAddress))
	}
	claiming := claimPlaceholder != ""

	q := "UPDATE trips SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if claiming {
		q += " AND (driver_id IS NULL OR driver_id = " + claimPlaceholder + ")"
	}
	q += " RETURNING " + tripColumns

	rec, err := scanTrip(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		if claiming {
			// Distinguish a lost claim from a missing trip.
			if _, getErr := s.Get(ctx, id); getErr == nil {
				return trip.Record{}, trip.ErrDriverAssigned
			}
		}
		return trip.Record{}, trip.ErrNotFound
	}
	if err != nil {
		return trip.Record{}, fmt.Errorf("update trip: %w", err)
	}
	return rec, nil
}

func (s *TripStore) ActiveFor(ctx context.Context, userID string, role types.Role) ([]trip.Record, error) {
	col := "rider_id"
	if role == types.RoleDriver {
		col = "driver_id"
	}
	q := `SELECT ` + tripColumns + ` FROM trips WHERE ` + col + ` = $1 AND status NOT IN ($2, $3)`

	rows, err := s.pool.Query(ctx, q, userID, trip.StatusCompleted, trip.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("select active trips: %w", err)
	}
	defer rows.Close()

	var out []trip.Record
	for rows.Next() {
		rec, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

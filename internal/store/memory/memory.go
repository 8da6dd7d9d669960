// Package memory holds mutex-guarded implementations of the trip store and
// user directory. They back tests and DB-less development runs; the postgres
// package is the production counterpart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxihub/internal/trip"
	"taxihub/internal/types"
)

type Store struct {
	mu    sync.RWMutex
	trips map[string]trip.Record
}

func NewStore() *Store {
	return &Store{trips: make(map[string]trip.Record)}
}

func (s *Store) Create(_ context.Context, req trip.Request) (trip.Record, error) {
	if err := req.Validate(); err != nil {
		return trip.Record{}, err
	}
	now := time.Now().UTC()
	rec := trip.Record{
		ID:             uuid.NewString(),
		PickUpAddress:  req.PickUpAddress,
		DropOffAddress: req.DropOffAddress,
		Status:         trip.StatusRequested,
		RiderID:        req.RiderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.mu.Lock()
	s.trips[rec.ID] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *Store) Get(_ context.Context, id string) (trip.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.trips[id]
	if !ok {
		return trip.Record{}, trip.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Update(_ context.Context, id string, patch trip.Patch) (trip.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.trips[id]
	if !ok {
		return trip.Record{}, trip.ErrNotFound
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return trip.Record{}, trip.ErrInvalidStatus
		}
		rec.Status = *patch.Status
	}
	if patch.DriverID != nil && *patch.DriverID != "" {
		// Conditional claim: first driver wins, later claims fail.
		if rec.DriverID != "" && rec.DriverID != *patch.DriverID {
			return trip.Record{}, trip.ErrDriverAssigned
		}
		rec.DriverID = *patch.DriverID
	}
	if patch.PickUpAddress != nil {
		rec.PickUpAddress = *patch.PickUpAddress
	}
	if patch.DropOffAddress != nil {
		rec.DropOffAddress = *patch.DropOffAddress
	}
	rec.UpdatedAt = time.Now().UTC()
	s.trips[id] = rec
	return rec, nil
}

func (s *Store) ActiveFor(_ context.Context, userID string, role types.Role) ([]trip.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []trip.Record
	for _, rec := range s.trips {
		if rec.Status.Terminal() {
			continue
		}
		switch role {
		case types.RoleDriver:
			if rec.DriverID == userID {
				out = append(out, rec)
			}
		default:
			if rec.RiderID == userID {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// Seed inserts a record as-is, for tests that need pre-existing trips.
func (s *Store) Seed(rec trip.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.trips[rec.ID] = rec
}

// Count reports the number of stored trips.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trips)
}

type Directory struct {
	mu     sync.RWMutex
	users  map[string]types.User
	tokens map[string]string
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]types.User), tokens: make(map[string]string)}
}

// AddUser registers a user and the bearer token that resolves to it.
func (d *Directory) AddUser(u types.User, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	if token != "" {
		d.tokens[token] = u.ID
	}
}

func (d *Directory) UserByID(_ context.Context, id string) (types.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return types.User{}, trip.ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) UserByToken(_ context.Context, token string) (types.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.tokens[token]
	if !ok {
		return types.User{}, trip.ErrBadCredential
	}
	u, ok := d.users[id]
	if !ok {
		return types.User{}, trip.ErrBadCredential
	}
	return u, nil
}

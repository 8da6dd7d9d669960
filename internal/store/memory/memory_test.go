package memory_test

import (
	"context"
	"errors"
	"testing"

	"taxihub/internal/store/memory"
	"taxihub/internal/trip"
	"taxihub/internal/types"
)

func TestCreateAndGet(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	rec, err := s.Create(ctx, trip.Request{PickUpAddress: "123 Main Street", DropOffAddress: "456 Piney Road", RiderID: "r1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected non-empty trip id")
	}
	if rec.Status != trip.StatusRequested {
		t.Fatalf("expected REQUESTED, got %s", rec.Status)
	}
	if rec.DriverID != "" {
		t.Fatalf("expected no driver on a new trip")
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.PickUpAddress != "123 Main Street" {
		t.Fatalf("unexpected pick up address %q", got.PickUpAddress)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, trip.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateDriverClaim(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	rec, err := s.Create(ctx, trip.Request{PickUpAddress: "a", DropOffAddress: "b", RiderID: "r1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	d1 := "driver-1"
	got, err := s.Update(ctx, rec.ID, trip.Patch{DriverID: &d1})
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if got.DriverID != d1 {
		t.Fatalf("expected driver %s, got %s", d1, got.DriverID)
	}

	// A second driver loses the claim.
	d2 := "driver-2"
	if _, err := s.Update(ctx, rec.ID, trip.Patch{DriverID: &d2}); !errors.Is(err, trip.ErrDriverAssigned) {
		t.Fatalf("expected ErrDriverAssigned, got %v", err)
	}

	// Re-claiming with the same driver is a no-op, not a conflict.
	if _, err := s.Update(ctx, rec.ID, trip.Patch{DriverID: &d1}); err != nil {
		t.Fatalf("idempotent claim failed: %v", err)
	}
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	rec, _ := s.Create(ctx, trip.Request{PickUpAddress: "a", DropOffAddress: "b", RiderID: "r1"})

	bogus := trip.Status("TELEPORTED")
	if _, err := s.Update(ctx, rec.ID, trip.Patch{Status: &bogus}); !errors.Is(err, trip.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestActiveForExcludesTerminal(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	s.Seed(trip.Record{ID: "t1", RiderID: "r1", Status: trip.StatusRequested})
	s.Seed(trip.Record{ID: "t2", RiderID: "r1", Status: trip.StatusCompleted})
	s.Seed(trip.Record{ID: "t3", RiderID: "r1", Status: trip.StatusCancelled})
	s.Seed(trip.Record{ID: "t4", RiderID: "r2", DriverID: "d1", Status: trip.StatusInProgress})

	asRider, err := s.ActiveFor(ctx, "r1", types.RoleRider)
	if err != nil {
		t.Fatalf("active for rider failed: %v", err)
	}
	if len(asRider) != 1 || asRider[0].ID != "t1" {
		t.Fatalf("expected only t1 active for r1, got %+v", asRider)
	}

	asDriver, err := s.ActiveFor(ctx, "d1", types.RoleDriver)
	if err != nil {
		t.Fatalf("active for driver failed: %v", err)
	}
	if len(asDriver) != 1 || asDriver[0].ID != "t4" {
		t.Fatalf("expected only t4 active for d1, got %+v", asDriver)
	}
}

func TestDirectoryTokens(t *testing.T) {
	d := memory.NewDirectory()
	d.AddUser(types.User{ID: "r1", Username: "rider@example.com", Role: types.RoleRider}, "rider-token")

	u, err := d.UserByToken(context.Background(), "rider-token")
	if err != nil {
		t.Fatalf("token lookup failed: %v", err)
	}
	if u.Role != types.RoleRider {
		t.Fatalf("expected rider role, got %s", u.Role)
	}

	if _, err := d.UserByToken(context.Background(), "wrong"); !errors.Is(err, trip.ErrBadCredential) {
		t.Fatalf("expected ErrBadCredential, got %v", err)
	}
	if _, err := d.UserByID(context.Background(), "ghost"); !errors.Is(err, trip.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/model"
	core "github.com/petriage/petriage/core/store"
)

func sampleRequest(user, pet string) model.DispatchRequest {
	return model.DispatchRequest{
		UserID: user, PetID: pet,
		Mode:      model.ModeHome,
		Location:  geo.Point{Lat: 48.85, Lng: 2.35},
		Status:    model.StatusPending,
		Phase:     model.PhasePending,
		Triage:    model.Triage{Reason: "poisoning"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryRequestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()

	r := sampleRequest("u1", "p1")
	if err := s.Create(ctx, &r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == "" {
		t.Fatal("create should assign an id")
	}
	if err := s.Create(ctx, &r); err == nil {
		t.Fatal("duplicate id should be rejected")
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("got user %q", got.UserID)
	}

	got.Status = model.StatusAssigned
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.Get(ctx, r.ID)
	if got.Status != model.StatusAssigned {
		t.Fatalf("update not persisted, status %s", got.Status)
	}

	if _, err := s.Get(ctx, "missing"); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, model.DispatchRequest{ID: "missing"}); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRequestStore_ActiveForPet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()

	r := sampleRequest("u1", "p1")
	if err := s.Create(ctx, &r); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.ActiveForPet(ctx, "u1", "p1"); err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if _, err := s.ActiveForPet(ctx, "u1", "p2"); err != core.ErrNotFound {
		t.Fatalf("other pet should be free, got %v", err)
	}

	// A terminal request no longer blocks.
	r.Status = model.StatusCancelled
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.ActiveForPet(ctx, "u1", "p1"); err != core.ErrNotFound {
		t.Fatalf("cancelled request should not count, got %v", err)
	}
}

func TestMemoryVetStore_SetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVetStore(model.Vet{
		ID: "v1", Name: "Dr A", Location: geo.Point{Lat: 48.85, Lng: 2.35},
		Available: true, Approved: true, EmergencyCapable: true,
		Status: model.VetAvailable,
	})

	if err := s.SetStatus(ctx, "v1", model.VetBusy, "r1"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	v, err := s.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Status != model.VetBusy || v.ActiveRequestID != "r1" || v.Available {
		t.Fatalf("busy vet not recorded: %+v", v)
	}

	if err := s.SetStatus(ctx, "v1", model.VetAvailable, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	v, _ = s.Get(ctx, "v1")
	if !v.Available || v.ActiveRequestID != "" {
		t.Fatalf("vet not released: %+v", v)
	}

	if err := s.SetStatus(ctx, "nope", model.VetBusy, ""); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryVetStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVetStore()
	for _, id := range []string{"c", "a", "b"} {
		v := model.Vet{
			ID: id, Name: id, Location: geo.Point{Lat: 48.85, Lng: 2.35},
			Available: true, Approved: true, EmergencyCapable: true,
			Status: model.VetAvailable,
		}
		if err := s.Put(ctx, v); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	vets, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(vets) != 3 || vets[0].ID != "a" || vets[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", vets)
	}

	if err := s.Put(ctx, model.Vet{ID: "bad"}); err == nil {
		t.Fatal("invalid vet should be rejected")
	}
}

func TestMemoryChatStore_EnsureIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChatStore()
	a, err := s.Ensure(ctx, "r1", "u1", "v1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	b, err := s.Ensure(ctx, "r1", "u1", "v1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if a == "" || a != b {
		t.Fatalf("channel must be stable: %q vs %q", a, b)
	}
	c, _ := s.Ensure(ctx, "r2", "u1", "v1")
	if c == a {
		t.Fatal("distinct requests must get distinct channels")
	}
}

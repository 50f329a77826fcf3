package match

import (
	"context"
	"testing"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/infra/logger"
	"github.com/petriage/petriage/infra/store"
)

var origin = geo.Point{Lat: 48.8566, Lng: 2.3522}

// pointAtKm returns a point roughly km kilometres north of origin.
func pointAtKm(km float64) geo.Point {
	return geo.Point{Lat: origin.Lat + km/111.0, Lng: origin.Lng}
}

func vet(id string, km float64) model.Vet {
	return model.Vet{
		ID: id, Name: id, Location: pointAtKm(km),
		Available: true, Approved: true, EmergencyCapable: true,
		InPersonCapable: true, Status: model.VetAvailable,
	}
}

func TestFinder_OrdersByDistance(t *testing.T) {
	far := vet("far", 5)
	near := vet("near", 1)
	mid := vet("mid", 3)
	f := NewFinder(store.NewMemoryVetStore(far, near, mid), logger.NopLogger{})

	refs := f.Find(context.Background(), origin, 15, model.ModeHome)
	if len(refs) != 3 {
		t.Fatalf("expected 3 candidates got %d", len(refs))
	}
	if refs[0].VetID != "near" || refs[1].VetID != "mid" || refs[2].VetID != "far" {
		t.Fatalf("wrong order: %+v", refs)
	}
	if refs[0].ETAMinutes != geo.ETAMinutes(refs[0].DistanceKm) {
		t.Fatalf("eta not derived from distance")
	}
}

func TestFinder_FiltersIneligible(t *testing.T) {
	busy := vet("busy", 1)
	busy.Status = model.VetBusy
	busy.ActiveRequestID = "r1"
	unapproved := vet("unapproved", 1)
	unapproved.Approved = false
	offline := vet("offline", 1)
	offline.Available = false
	offline.Status = model.VetOffline
	ok := vet("ok", 2)
	f := NewFinder(store.NewMemoryVetStore(busy, unapproved, offline, ok), logger.NopLogger{})

	refs := f.Find(context.Background(), origin, 15, model.ModeHome)
	if len(refs) != 1 || refs[0].VetID != "ok" {
		t.Fatalf("expected only ok, got %+v", refs)
	}
}

func TestFinder_ClinicModeRequiresWalkIn(t *testing.T) {
	mobile := vet("mobile-only", 1)
	mobile.InPersonCapable = false
	clinic := vet("clinic", 2)
	f := NewFinder(store.NewMemoryVetStore(mobile, clinic), logger.NopLogger{})

	refs := f.Find(context.Background(), origin, 15, model.ModeClinic)
	if len(refs) != 1 || refs[0].VetID != "clinic" {
		t.Fatalf("expected only clinic, got %+v", refs)
	}
	// Home mode accepts both.
	refs = f.Find(context.Background(), origin, 15, model.ModeHome)
	if len(refs) != 2 {
		t.Fatalf("expected 2 candidates in home mode got %d", len(refs))
	}
}

func TestFinder_RadiusBound(t *testing.T) {
	inside := vet("inside", 2)
	outside := vet("outside", 30)
	f := NewFinder(store.NewMemoryVetStore(inside, outside), logger.NopLogger{})

	refs := f.Find(context.Background(), origin, 10, model.ModeHome)
	if len(refs) != 1 || refs[0].VetID != "inside" {
		t.Fatalf("expected only inside, got %+v", refs)
	}
}

func TestFinder_Revalidate(t *testing.T) {
	a := vet("a", 2)
	b := vet("b", 1)
	gone := vet("gone", 1)
	gone.Available = false
	gone.Status = model.VetOffline
	f := NewFinder(store.NewMemoryVetStore(a, b, gone), logger.NopLogger{})

	refs := f.Revalidate(context.Background(), origin, model.ModeHome, []string{"a", "b", "gone", "missing"})
	if len(refs) != 2 {
		t.Fatalf("expected 2 candidates got %+v", refs)
	}
	if refs[0].VetID != "b" || refs[1].VetID != "a" {
		t.Fatalf("wrong order: %+v", refs)
	}
}

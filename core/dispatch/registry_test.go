package dispatch

import "testing"

func TestRegistry_RegisterDeregister(t *testing.T) {
	reg := NewRegistry()
	a := &Session{requestID: "ra"}
	b := &Session{requestID: "rb"}

	if !reg.Register(a) {
		t.Fatal("first register should succeed")
	}
	if reg.Register(&Session{requestID: "ra"}) {
		t.Fatal("duplicate register should fail")
	}
	if !reg.Register(b) {
		t.Fatal("register b should succeed")
	}
	if reg.Len() != 2 {
		t.Fatalf("len = %d", reg.Len())
	}

	got, ok := reg.Get("ra")
	if !ok || got != a {
		t.Fatal("get should return the registered session")
	}

	reg.Deregister("ra")
	if _, ok := reg.Get("ra"); ok {
		t.Fatal("deregistered session still present")
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d", reg.Len())
	}
}

func TestRegistry_OfferIndex(t *testing.T) {
	reg := NewRegistry()
	a := &Session{requestID: "ra"}
	b := &Session{requestID: "rb"}
	reg.Register(a)
	reg.Register(b)

	reg.trackOffer("v1", a)
	reg.trackOffer("v1", b)

	others := reg.SessionsOffering("v1", "ra")
	if len(others) != 1 || others[0] != b {
		t.Fatalf("expected only rb, got %d sessions", len(others))
	}

	// Moving a session's offer to another vet drops the old entry.
	reg.trackOffer("v2", a)
	if got := reg.SessionsOffering("v1", ""); len(got) != 1 || got[0] != b {
		t.Fatalf("v1 index should only hold rb, got %d", len(got))
	}
	if got := reg.SessionsOffering("v2", ""); len(got) != 1 || got[0] != a {
		t.Fatalf("v2 index should hold ra, got %d", len(got))
	}

	reg.untrackOffer("v2", a)
	if got := reg.SessionsOffering("v2", ""); len(got) != 0 {
		t.Fatalf("v2 index should be empty, got %d", len(got))
	}

	// Deregistering removes any leftover index entries.
	reg.Deregister("rb")
	if got := reg.SessionsOffering("v1", ""); len(got) != 0 {
		t.Fatalf("deregister should clear the index, got %d", len(got))
	}
}

package model

import (
	"testing"
	"time"
)

func entry(vet string, outcome OfferOutcome) HistoryEntry {
	return HistoryEntry{VetID: vet, Outcome: outcome, Timestamp: time.Now()}
}

func TestOffer_TimedOutOnly(t *testing.T) {
	o := Offer{History: []HistoryEntry{
		entry("a", OutcomeOffered),
		entry("a", OutcomeTimeout),
		entry("b", OutcomeOffered),
		entry("b", OutcomeRejected),
		entry("c", OutcomeOffered),
		entry("c", OutcomeTimeout),
	}}
	ids := o.TimedOutOnly()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("expected [a c] got %v", ids)
	}
}

func TestOffer_TimedOutOnly_RejectedAfterTimeout(t *testing.T) {
	// A vet who timed out in round 1 but later rejected is out for good.
	o := Offer{History: []HistoryEntry{
		entry("a", OutcomeTimeout),
		entry("a", OutcomeRejected),
	}}
	if ids := o.TimedOutOnly(); len(ids) != 0 {
		t.Fatalf("expected no eligible vets got %v", ids)
	}
}

func TestOffer_TimedOutOnly_Dedup(t *testing.T) {
	o := Offer{History: []HistoryEntry{
		entry("a", OutcomeTimeout),
		entry("a", OutcomeTimeout),
	}}
	if ids := o.TimedOutOnly(); len(ids) != 1 {
		t.Fatalf("expected one entry got %v", ids)
	}
}

func TestOffer_Rejected(t *testing.T) {
	o := Offer{History: []HistoryEntry{
		entry("a", OutcomeTimeout),
		entry("b", OutcomeRejected),
	}}
	if o.Rejected("a") {
		t.Fatal("a only timed out")
	}
	if !o.Rejected("b") {
		t.Fatal("b rejected explicitly")
	}
}

func TestRequestStatus_Terminal(t *testing.T) {
	for _, s := range []RequestStatus{StatusPending, StatusAssigned, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []RequestStatus{StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

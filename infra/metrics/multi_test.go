package metrics

import (
	"errors"
	"testing"

	coremetrics "github.com/petriage/petriage/core/metrics"
)

type countingSink struct {
	offers      int
	assignments int
	err         error
}

func (c *countingSink) RecordOffer(coremetrics.OfferEvent) error {
	c.offers++
	return c.err
}

func (c *countingSink) RecordAssignment(coremetrics.AssignmentEvent) error {
	c.assignments++
	return c.err
}

type offerOnlySink struct{ offers int }

func (o *offerOnlySink) RecordOffer(coremetrics.OfferEvent) error {
	o.offers++
	return nil
}

func TestMultiSink_FansOut(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{err: errors.New("sink down")}
	c := &countingSink{err: errors.New("other failure")}
	m := NewMultiSink(a, b, c)

	err := m.RecordOffer(coremetrics.OfferEvent{RequestID: "r1"})
	if err == nil || err.Error() != "sink down" {
		t.Fatalf("first error should win, got %v", err)
	}
	if a.offers != 1 || b.offers != 1 || c.offers != 1 {
		t.Fatalf("every sink must receive the event: %d %d %d", a.offers, b.offers, c.offers)
	}
}

func TestMultiSink_SkipsNonRecorders(t *testing.T) {
	a := &countingSink{}
	plain := &offerOnlySink{}
	m := NewMultiSink(a, plain)

	if err := m.RecordAssignment(coremetrics.AssignmentEvent{RequestID: "r1"}); err != nil {
		t.Fatalf("record assignment: %v", err)
	}
	if a.assignments != 1 {
		t.Fatalf("assignment recorder skipped: %d", a.assignments)
	}
	if plain.offers != 0 {
		t.Fatal("offer-only sink must not see assignments")
	}
}

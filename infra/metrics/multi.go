package metrics

import (
	coremetrics "github.com/petriage/petriage/core/metrics"
)

// MultiSink fans events out to several sinks. The first error wins but every
// sink still receives the event.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordOffer(ev coremetrics.OfferEvent) error {
	var first error
	for _, s := range m.sinks {
		if err := s.RecordOffer(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	var first error
	for _, s := range m.sinks {
		rec, ok := s.(coremetrics.AssignmentRecorder)
		if !ok {
			continue
		}
		if err := rec.RecordAssignment(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

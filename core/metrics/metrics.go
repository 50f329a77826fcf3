package metrics

import (
	"time"

	"github.com/petriage/petriage/core/model"
)

// OfferEvent represents one offer step to be recorded for observability.
type OfferEvent struct {
	RequestID  string
	VetID      string
	Outcome    model.OfferOutcome
	Round      int
	DistanceKm float64
	Reason     string
	Time       time.Time
}

// AssignmentEvent is a snapshot of a request's tracking phase change.
type AssignmentEvent struct {
	RequestID     string
	VetID         string
	Mode          model.ServiceMode
	Phase         model.TrackingPhase
	AutoTriggered bool
	Time          time.Time
}

// Sink records offer events.
type Sink interface {
	RecordOffer(ev OfferEvent) error
}

// AssignmentRecorder records phase transitions. Sinks implement it when the
// backend supports it.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordOffer(OfferEvent) error           { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error { return nil }

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

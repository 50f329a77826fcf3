package pricing

import (
	"math"
	"time"

	"github.com/petriage/petriage/core/model"
)

// Config defines the pricing parameters applied at submission and
// cancellation time.
type Config struct {
	BaseFee  float64 `json:"base_fee"`
	PerKmFee float64 `json:"per_km_fee"`
	Currency string  `json:"currency"`
	// FacilityCancelPercent is the share of the total charged when a
	// clinic-mode request is cancelled by the requester.
	FacilityCancelPercent float64 `json:"facility_cancel_percent"`
	// HomeCancelFee is the fixed fee for a home-visit cancellation past
	// the free window.
	HomeCancelFee float64 `json:"home_cancel_fee"`
	// FreeCancelWindowSeconds bounds the no-fee cancellation period for
	// home visits.
	FreeCancelWindowSeconds int `json:"free_cancel_window_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Currency == "" {
		c.Currency = "EUR"
	}
	if c.FacilityCancelPercent == 0 {
		c.FacilityCancelPercent = 50
	}
	if c.FreeCancelWindowSeconds == 0 {
		c.FreeCancelWindowSeconds = 120
	}
}

// Quote freezes the price shown to the requester at submission, using the
// distance of the nearest ranked candidate.
func (c Config) Quote(nearestKm float64) model.PricingSnapshot {
	dist := math.Round(nearestKm*c.PerKmFee*100) / 100
	return model.PricingSnapshot{
		BaseFee:     c.BaseFee,
		DistanceFee: dist,
		Total:       c.BaseFee + dist,
		Currency:    c.Currency,
	}
}

// CancellationFee computes the fee owed when the requester cancels.
// Clinic mode charges a percentage of the total; home visits charge the fixed
// fee once the free window has elapsed.
func (c Config) CancellationFee(r model.DispatchRequest, now time.Time) float64 {
	switch r.Mode {
	case model.ModeClinic:
		return math.Round(r.Pricing.Total*c.FacilityCancelPercent) / 100
	case model.ModeHome:
		if now.Sub(r.CreatedAt) > time.Duration(c.FreeCancelWindowSeconds)*time.Second {
			return c.HomeCancelFee
		}
	}
	return 0
}

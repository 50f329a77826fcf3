package dispatch

import "time"

// Config defines dispatch-related settings.
type Config struct {
	// OfferTimeoutSeconds bounds how long a single vet may hold an offer.
	OfferTimeoutSeconds int `json:"offer_timeout_seconds"`
	// GlobalTimeoutSeconds bounds the whole matching process for a request.
	GlobalTimeoutSeconds int `json:"global_timeout_seconds"`
	// MaxManualAttempts caps re-offers to a hand-picked vet.
	MaxManualAttempts int `json:"max_manual_attempts"`
	// SearchRadiusKm bounds the candidate search around the request.
	SearchRadiusKm float64 `json:"search_radius_km"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.OfferTimeoutSeconds <= 0 {
		c.OfferTimeoutSeconds = 20
	}
	if c.GlobalTimeoutSeconds <= 0 {
		c.GlobalTimeoutSeconds = 300
	}
	if c.MaxManualAttempts <= 0 {
		c.MaxManualAttempts = 2
	}
	if c.SearchRadiusKm <= 0 {
		c.SearchRadiusKm = 15
	}
}

// OfferTTL is the per-candidate response window.
func (c Config) OfferTTL() time.Duration {
	return time.Duration(c.OfferTimeoutSeconds) * time.Second
}

// GlobalTTL is the overall matching deadline.
func (c Config) GlobalTTL() time.Duration {
	return time.Duration(c.GlobalTimeoutSeconds) * time.Second
}

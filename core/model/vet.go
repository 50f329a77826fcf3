package model

import (
	"fmt"

	"github.com/petriage/petriage/core/geo"
)

// VetStatus is the operational state of a veterinarian.
type VetStatus string

const (
	VetAvailable VetStatus = "available"
	VetBusy      VetStatus = "busy"
	VetOnWay     VetStatus = "on_way"
	VetOffline   VetStatus = "offline"
)

// Vet is a provider eligible to receive dispatch offers.
type Vet struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Location geo.Point `json:"location" yaml:"location"`

	Available        bool `json:"available" yaml:"available"`
	Approved         bool `json:"approved" yaml:"approved"`
	EmergencyCapable bool `json:"emergency_capable" yaml:"emergency_capable"`
	// InPersonCapable marks facilities accepting walk-in emergencies.
	InPersonCapable bool `json:"in_person_capable" yaml:"in_person_capable"`

	Status VetStatus `json:"status" yaml:"status"`
	// ActiveRequestID references the at most one assignment the vet holds.
	ActiveRequestID string `json:"active_request_id,omitempty" yaml:"active_request_id,omitempty"`
}

// Validate checks that the vet record is sound.
func (v Vet) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vet id is required")
	}
	if !v.Location.Valid() {
		return fmt.Errorf("vet %s has invalid coordinates", v.ID)
	}
	return nil
}

// Assignable reports whether the vet can receive a new offer: available,
// approved, emergency-capable and not already holding an assignment.
func (v Vet) Assignable() bool {
	return v.Available && v.Approved && v.EmergencyCapable &&
		v.Status == VetAvailable && v.ActiveRequestID == ""
}

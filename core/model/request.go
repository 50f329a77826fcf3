package model

import (
	"fmt"
	"time"

	"github.com/petriage/petriage/core/geo"
)

// ServiceMode selects where the consultation takes place.
type ServiceMode string

const (
	// ModeClinic means the requester brings the pet to the vet's facility.
	ModeClinic ServiceMode = "clinic"
	// ModeHome means the vet travels to the requester's location.
	ModeHome ServiceMode = "home"
)

// Strategy selects how candidates are chosen for a request.
type Strategy string

const (
	// StrategyAuto ranks all eligible vets by distance.
	StrategyAuto Strategy = "auto"
	// StrategyManual targets a single vet picked by the requester.
	StrategyManual Strategy = "manual"
)

// RequestStatus is the coarse lifecycle status of a dispatch request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusAssigned   RequestStatus = "assigned"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TrackingPhase is the fine-grained phase of an accepted request.
type TrackingPhase string

const (
	PhasePending     TrackingPhase = "pending"
	PhaseVetAssigned TrackingPhase = "vet_assigned"
	PhaseOnWay       TrackingPhase = "on_way"
	PhaseArrived     TrackingPhase = "arrived"
	PhaseInService   TrackingPhase = "in_service"
	PhaseCompleted   TrackingPhase = "completed"
	PhaseCancelled   TrackingPhase = "cancelled"
)

// Triage carries the medical payload entered at submission.
type Triage struct {
	Reason        string   `json:"reason"`
	CriticalFlags []string `json:"critical_flags,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
}

// PricingSnapshot freezes the quote shown at submission time.
type PricingSnapshot struct {
	BaseFee     float64 `json:"base_fee"`
	DistanceFee float64 `json:"distance_fee"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
}

// DispatchRequest is the emergency needing a provider match.
type DispatchRequest struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id"`
	PetID    string          `json:"pet_id"`
	Mode     ServiceMode     `json:"mode"`
	Location geo.Point       `json:"location"`
	Address  string          `json:"address,omitempty"`
	Triage   Triage          `json:"triage"`
	Pricing  PricingSnapshot `json:"pricing"`

	Strategy       Strategy `json:"strategy"`
	PreferredVetID string   `json:"preferred_vet_id,omitempty"`

	Status RequestStatus `json:"status"`
	Phase  TrackingPhase `json:"phase"`
	Offer  Offer         `json:"offer"`

	AssignedVetID string `json:"assigned_vet_id,omitempty"`
	ChatChannelID string `json:"chat_channel_id,omitempty"`

	CancelReason    string  `json:"cancel_reason,omitempty"`
	CancelCode      string  `json:"cancel_code,omitempty"`
	CancellationFee float64 `json:"cancellation_fee,omitempty"`

	// ServiceAutoConfirmed is set when geofencing, not the requester,
	// confirmed the start of the consultation.
	ServiceAutoConfirmed bool       `json:"service_auto_confirmed,omitempty"`
	ServiceConfirmedAt   *time.Time `json:"service_confirmed_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	OnWayAt     *time.Time `json:"on_way_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Validate checks that the request carries the fields matching needs.
func (r DispatchRequest) Validate() error {
	if r.UserID == "" || r.PetID == "" {
		return fmt.Errorf("user and pet identifiers are required")
	}
	if r.Mode != ModeClinic && r.Mode != ModeHome {
		return fmt.Errorf("unknown service mode %q", r.Mode)
	}
	if r.Triage.Reason == "" {
		return fmt.Errorf("triage reason is required")
	}
	return nil
}

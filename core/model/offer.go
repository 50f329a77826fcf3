package model

import "time"

// OfferStatus is the overall state of the matching process for one request.
type OfferStatus string

const (
	OfferIdle      OfferStatus = "idle"
	OfferOffering  OfferStatus = "offering"
	OfferAccepted  OfferStatus = "accepted"
	OfferExhausted OfferStatus = "exhausted"
	OfferCancelled OfferStatus = "cancelled"
)

// OfferOutcome records how a single candidate's offer ended.
type OfferOutcome string

const (
	OutcomeOffered   OfferOutcome = "offered"
	OutcomeAccepted  OfferOutcome = "accepted"
	OutcomeRejected  OfferOutcome = "rejected"
	OutcomeTimeout   OfferOutcome = "timeout"
	OutcomeCancelled OfferOutcome = "cancelled"
	OutcomeExhausted OfferOutcome = "exhausted"
)

// CandidateRef is one entry of the ranked candidate queue.
type CandidateRef struct {
	VetID      string  `json:"vet_id"`
	DistanceKm float64 `json:"distance_km"`
	ETAMinutes int     `json:"eta_minutes"`
}

// HistoryEntry is an immutable audit record of one offer step.
type HistoryEntry struct {
	VetID     string       `json:"vet_id"`
	Outcome   OfferOutcome `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Offer is the sub-record of a request tracking the matching process.
type Offer struct {
	CurrentVetID   string         `json:"current_vet_id,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	Queue          []CandidateRef `json:"queue,omitempty"`
	Round          int            `json:"round"`
	ManualAttempts int            `json:"manual_attempts"`
	History        []HistoryEntry `json:"history,omitempty"`
	Status         OfferStatus    `json:"status"`
}

// Rejected reports whether the vet explicitly rejected this request.
// An explicit rejection makes the vet ineligible for the fallback round.
func (o Offer) Rejected(vetID string) bool {
	for _, h := range o.History {
		if h.VetID == vetID && h.Outcome == OutcomeRejected {
			return true
		}
	}
	return false
}

// TimedOutOnly returns the vets whose only negative outcome was a timeout.
// Order follows first appearance in the history.
func (o Offer) TimedOutOnly() []string {
	var ids []string
	seen := map[string]bool{}
	for _, h := range o.History {
		if h.Outcome != OutcomeTimeout || seen[h.VetID] {
			continue
		}
		seen[h.VetID] = true
		if !o.Rejected(h.VetID) {
			ids = append(ids, h.VetID)
		}
	}
	return ids
}

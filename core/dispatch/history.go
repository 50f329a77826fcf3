package dispatch

import (
	"context"
	"time"

	"github.com/petriage/petriage/core/logger"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/store"
)

// HistoryRecorder appends immutable audit entries to the persisted request.
// Failures are logged and never interrupt the matching process.
type HistoryRecorder struct {
	requests store.RequestStore
	log      logger.Logger
}

func NewHistoryRecorder(requests store.RequestStore, log logger.Logger) *HistoryRecorder {
	return &HistoryRecorder{requests: requests, log: log}
}

// Append records one offer step for the request.
func (h *HistoryRecorder) Append(ctx context.Context, requestID, vetID string, outcome model.OfferOutcome, reason string) {
	entry := model.HistoryEntry{
		VetID:     vetID,
		Outcome:   outcome,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	r, err := h.requests.Get(ctx, requestID)
	if err != nil {
		h.log.Errorf("history append %s: %v", requestID, err)
		return
	}
	r.Offer.History = append(r.Offer.History, entry)
	if err := h.requests.Update(ctx, r); err != nil {
		h.log.Errorf("history append %s: %v", requestID, err)
	}
}

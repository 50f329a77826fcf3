package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/notify"
	"github.com/petriage/petriage/core/pricing"
	"github.com/petriage/petriage/core/store"
)

// Service is the inbound boundary of the dispatch engine. It persists
// requests, ranks candidates, starts sessions and routes vet and requester
// actions to the owning session.
type Service struct {
	deps    Deps
	pricing pricing.Config
	history *HistoryRecorder
}

// NewService creates the dispatch service.
func NewService(deps Deps, pricingCfg pricing.Config) (*Service, error) {
	if deps.Requests == nil || deps.Vets == nil || deps.Finder == nil || deps.Notifier == nil || deps.Registry == nil || deps.Log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewService")
	}
	deps.Cfg.SetDefaults()
	pricingCfg.SetDefaults()
	return &Service{
		deps:    deps,
		pricing: pricingCfg,
		history: NewHistoryRecorder(deps.Requests, deps.Log),
	}, nil
}

// CreateParams carries the submission payload.
type CreateParams struct {
	UserID         string
	PetID          string
	Mode           model.ServiceMode
	Strategy       model.Strategy
	PreferredVetID string
	Location       geo.Point
	Address        string
	Triage         model.Triage
}

// Create persists a new dispatch request, ranks candidates and starts the
// matching session. With no eligible candidate the request is created already
// cancelled and ErrNoCandidates is returned alongside it.
func (s *Service) Create(ctx context.Context, p CreateParams) (model.DispatchRequest, error) {
	if p.Strategy == "" {
		p.Strategy = model.StrategyAuto
	}
	r := model.DispatchRequest{
		UserID:         p.UserID,
		PetID:          p.PetID,
		Mode:           p.Mode,
		Strategy:       p.Strategy,
		PreferredVetID: p.PreferredVetID,
		Location:       p.Location,
		Address:        p.Address,
		Triage:         p.Triage,
		Status:         model.StatusPending,
		Phase:          model.PhasePending,
		Offer:          model.Offer{Status: model.OfferIdle, Round: 1},
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return model.DispatchRequest{}, err
	}
	if !p.Location.Valid() {
		return model.DispatchRequest{}, fmt.Errorf("invalid request coordinates")
	}
	if _, err := s.deps.Requests.ActiveForPet(ctx, p.UserID, p.PetID); err == nil {
		return model.DispatchRequest{}, ErrDuplicateRequest
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.DispatchRequest{}, err
	}

	queue, err := s.buildQueue(ctx, r)
	if err != nil && !errors.Is(err, ErrNoCandidates) {
		return model.DispatchRequest{}, err
	}

	if len(queue) > 0 {
		r.Pricing = s.pricing.Quote(queue[0].DistanceKm)
	} else {
		r.Pricing = s.pricing.Quote(0)
	}
	if err := s.deps.Requests.Create(ctx, &r); err != nil {
		return model.DispatchRequest{}, err
	}

	if len(queue) == 0 {
		// No session is registered: the request is born cancelled and
		// the requester is prompted to switch modality.
		now := time.Now().UTC()
		r.Status = model.StatusCancelled
		r.Phase = model.PhaseCancelled
		r.Offer.Status = model.OfferCancelled
		r.CancelReason = reasonNoVets
		r.CancelCode = "no_vets"
		r.CancelledAt = &now
		if uerr := s.deps.Requests.Update(ctx, r); uerr != nil {
			s.deps.Log.Errorf("persist no-vets cancellation %s: %v", r.ID, uerr)
		}
		payload := map[string]any{"reason": reasonNoVets, "code": "no_vets"}
		s.deps.Notifier.Publish(notify.Event{
			Type: notify.EventNoVets, Topic: notify.UserTopic(r.UserID),
			RequestID: r.ID, Payload: payload, Timestamp: time.Now().UTC(),
		})
		requestsResolved.WithLabelValues("no_candidates").Inc()
		return r, ErrNoCandidates
	}

	sess := NewSession(r, queue, p.Strategy == model.StrategyManual, s.deps)
	if err := sess.Start(); err != nil {
		return r, err
	}
	return s.deps.Requests.Get(ctx, r.ID)
}

// buildQueue ranks candidates for the request according to its strategy.
func (s *Service) buildQueue(ctx context.Context, r model.DispatchRequest) ([]model.CandidateRef, error) {
	if r.Strategy == model.StrategyManual {
		if r.PreferredVetID == "" {
			return nil, fmt.Errorf("manual strategy requires a preferred vet")
		}
		refs := s.deps.Finder.Revalidate(ctx, r.Location, r.Mode, []string{r.PreferredVetID})
		if len(refs) == 0 {
			// Persisted born-cancelled like the auto path, so the
			// requester still gets the modality-switch prompt.
			return nil, ErrNoCandidates
		}
		return refs, nil
	}
	queue := s.deps.Finder.Find(ctx, r.Location, s.deps.Cfg.SearchRadiusKm, r.Mode)
	if len(queue) == 0 {
		return nil, ErrNoCandidates
	}
	return queue, nil
}

// ExpandSearch converts a manual request whose attempts ran out to automatic
// ranking and restarts the matching session. Valid only from the
// manual-exhausted state.
func (s *Service) ExpandSearch(ctx context.Context, requestID string) (model.DispatchRequest, error) {
	r, err := s.deps.Requests.Get(ctx, requestID)
	if err != nil {
		return model.DispatchRequest{}, err
	}
	if r.Strategy != model.StrategyManual || r.Offer.Status != model.OfferExhausted || r.Status.Terminal() {
		return model.DispatchRequest{}, ErrNotExhausted
	}

	queue := s.deps.Finder.Find(ctx, r.Location, s.deps.Cfg.SearchRadiusKm, r.Mode)
	// An explicit rejection from the manual phase still binds.
	filtered := queue[:0]
	for _, c := range queue {
		if !r.Offer.Rejected(c.VetID) {
			filtered = append(filtered, c)
		}
	}
	queue = filtered
	if len(queue) == 0 {
		return r, ErrNoCandidates
	}

	r.Strategy = model.StrategyAuto
	r.Offer.Status = model.OfferIdle
	r.Offer.Round = 1
	r.Offer.ManualAttempts = 0
	r.Offer.CurrentVetID = ""
	r.Offer.ExpiresAt = nil
	r.Offer.Queue = queue
	if err := s.deps.Requests.Update(ctx, r); err != nil {
		return model.DispatchRequest{}, err
	}

	sess := NewSession(r, queue, false, s.deps)
	if err := sess.Start(); err != nil {
		return r, err
	}
	return s.deps.Requests.Get(ctx, requestID)
}

// Accept routes a vet's acceptance to the owning session.
func (s *Service) Accept(ctx context.Context, requestID, vetID string) error {
	sess, ok := s.deps.Registry.Get(requestID)
	if !ok {
		return s.staleOrMissing(ctx, requestID)
	}
	return sess.Accept(ctx, vetID)
}

// Reject routes a vet's explicit rejection to the owning session.
func (s *Service) Reject(ctx context.Context, requestID, vetID, reason string) error {
	sess, ok := s.deps.Registry.Get(requestID)
	if !ok {
		return s.staleOrMissing(ctx, requestID)
	}
	return sess.Reject(ctx, vetID, reason)
}

// Cancel ends the request on behalf of the requester, applying the
// cancellation fee policy. Works both while matching is live and after
// assignment.
func (s *Service) Cancel(ctx context.Context, requestID, reason, code string) (model.DispatchRequest, error) {
	r, err := s.deps.Requests.Get(ctx, requestID)
	if err != nil {
		return model.DispatchRequest{}, err
	}
	if r.Status.Terminal() {
		return model.DispatchRequest{}, fmt.Errorf("request %s already %s", requestID, r.Status)
	}
	fee := s.pricing.CancellationFee(r, time.Now().UTC())

	if sess, ok := s.deps.Registry.Get(requestID); ok {
		if err := sess.Cancel(ctx, reason, code, fee); err != nil {
			return model.DispatchRequest{}, err
		}
		return s.deps.Requests.Get(ctx, requestID)
	}

	// No live session: either assigned or parked manual-exhausted.
	now := time.Now().UTC()
	assignedVet := r.AssignedVetID
	r.Status = model.StatusCancelled
	r.Phase = model.PhaseCancelled
	r.Offer.Status = model.OfferCancelled
	r.CancelReason = reason
	r.CancelCode = code
	r.CancellationFee = fee
	r.CancelledAt = &now
	if err := s.deps.Requests.Update(ctx, r); err != nil {
		return model.DispatchRequest{}, err
	}
	s.history.Append(ctx, requestID, assignedVet, model.OutcomeCancelled, reason)
	if assignedVet != "" {
		if err := s.deps.Vets.SetStatus(ctx, assignedVet, model.VetAvailable, ""); err != nil {
			s.deps.Log.Errorf("release vet %s: %v", assignedVet, err)
		}
		s.deps.Notifier.Publish(notify.Event{
			Type: notify.EventOfferCancelled, Topic: notify.VetTopic(assignedVet),
			RequestID: requestID, Payload: map[string]any{"reason": reason},
			Timestamp: now,
		})
	}
	s.deps.Notifier.Publish(notify.Event{
		Type: notify.EventCancelled, Topic: notify.RequestTopic(requestID),
		RequestID: requestID,
		Payload:   map[string]any{"reason": reason, "code": code, "fee": fee},
		Timestamp: now,
	})
	requestsResolved.WithLabelValues("cancelled").Inc()
	return s.deps.Requests.Get(ctx, requestID)
}

// Get returns the last committed state of the request.
func (s *Service) Get(ctx context.Context, requestID string) (model.DispatchRequest, error) {
	return s.deps.Requests.Get(ctx, requestID)
}

// staleOrMissing distinguishes a vanished request from a finished session.
func (s *Service) staleOrMissing(ctx context.Context, requestID string) error {
	if _, err := s.deps.Requests.Get(ctx, requestID); err != nil {
		return err
	}
	return ErrStaleAction
}

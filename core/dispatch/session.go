package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/logger"
	"github.com/petriage/petriage/core/match"
	coremetrics "github.com/petriage/petriage/core/metrics"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/notify"
	"github.com/petriage/petriage/core/store"
)

const (
	reasonNoVets          = "no vets available"
	reasonTwoRounds       = "no vets after two rounds"
	reasonUnavailable     = "no longer available"
	reasonGlobalTimeout   = "no vets - timeout"
	reasonAcceptedOther   = "accepted a different request"
	reasonGlobalDeadline  = "global timeout"
	reasonManualExhausted = "manual attempts exhausted"
)

// Deps bundles the collaborators a session drives.
type Deps struct {
	Requests store.RequestStore
	Vets     store.VetStore
	Chat     store.ChatStore
	Finder   *match.Finder
	Notifier notify.Dispatcher
	Sink     coremetrics.Sink
	Registry *Registry
	Log      logger.Logger
	Cfg      Config
}

// Session is the live matching process for one dispatch request. It owns the
// candidate queue, cursor, round counter and both timers. All state mutation
// happens under the session mutex; a timer firing after teardown is a guarded
// no-op.
type Session struct {
	requestID string
	userID    string
	mode      model.ServiceMode
	origin    geo.Point
	triage    model.Triage
	total     float64
	manual    bool

	deps Deps

	mu             sync.Mutex
	queue          []model.CandidateRef
	cursor         int
	round          int
	manualAttempts int
	currentVet     string
	offeredAt      time.Time
	offerSeq       int
	offerTimer     *time.Timer
	globalTimer    *time.Timer
	done           bool
}

// NewSession builds a session for the request. The queue must already be
// ranked; Start arbitrates from its head.
func NewSession(r model.DispatchRequest, queue []model.CandidateRef, manual bool, deps Deps) *Session {
	return &Session{
		requestID: r.ID,
		userID:    r.UserID,
		mode:      r.Mode,
		origin:    r.Location,
		triage:    r.Triage,
		total:     r.Pricing.Total,
		manual:    manual,
		deps:      deps,
		queue:     queue,
		cursor:    -1,
		round:     1,
	}
}

// RequestID returns the request this session matches.
func (s *Session) RequestID() string { return s.requestID }

// Start registers the session, arms the global deadline and publishes the
// first offer. An empty queue is the caller's problem: the service cancels
// the request before a session exists.
func (s *Session) Start() error {
	if len(s.queue) == 0 {
		return ErrNoCandidates
	}
	if !s.deps.Registry.Register(s) {
		return fmt.Errorf("dispatch: session already active for request %s", s.requestID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalTimer = time.AfterFunc(s.deps.Cfg.GlobalTTL(), s.onGlobalTimeout)
	s.advanceLocked(context.Background())
	return nil
}

// Accept finalizes the assignment for the vet currently holding the offer.
// Acceptance from any other vet returns ErrStaleAction. A vet already tied to
// an active assignment is rejected and the queue advances past them.
func (s *Session) Accept(ctx context.Context, vetID string) error {
	s.mu.Lock()
	if s.done || s.currentVet != vetID {
		s.mu.Unlock()
		return ErrStaleAction
	}

	// Re-check the active-assignment guard before finalizing.
	vet, err := s.deps.Vets.Get(ctx, vetID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("vet lookup: %w", err)
	}
	if vet.ActiveRequestID != "" && vet.ActiveRequestID != s.requestID {
		s.deps.Log.Warnf("vet %s accepted %s while already assigned to %s", vetID, s.requestID, vet.ActiveRequestID)
		s.appendAndPersist(ctx, vetID, model.OutcomeRejected, "already assigned elsewhere", nil)
		s.advanceLocked(ctx)
		s.mu.Unlock()
		return ErrVetUnavailable
	}

	s.observeOutcome(model.OutcomeAccepted)
	s.clearTimersLocked()
	remaining := s.remainingLocked()
	now := time.Now().UTC()
	s.appendAndPersist(ctx, vetID, model.OutcomeAccepted, "", func(r *model.DispatchRequest) {
		r.Status = model.StatusAssigned
		r.Phase = model.PhaseVetAssigned
		r.AssignedVetID = vetID
		r.AssignedAt = &now
		r.Offer.Status = model.OfferAccepted
		r.Offer.CurrentVetID = vetID
		r.Offer.ExpiresAt = nil
	})
	if err := s.deps.Vets.SetStatus(ctx, vetID, model.VetBusy, s.requestID); err != nil {
		s.deps.Log.Errorf("mark vet %s busy: %v", vetID, err)
	}
	if s.deps.Chat != nil {
		if ch, err := s.deps.Chat.Ensure(ctx, s.requestID, s.userID, vetID); err != nil {
			s.deps.Log.Errorf("chat channel for %s: %v", s.requestID, err)
		} else if err := s.mutateRequest(ctx, func(r *model.DispatchRequest) {
			r.ChatChannelID = ch
		}); err != nil {
			s.deps.Log.Errorf("persist chat channel for %s: %v", s.requestID, err)
		}
	}
	s.done = true
	s.mu.Unlock()

	// Pre-empt every other session where this vet holds an offer.
	for _, other := range s.deps.Registry.SessionsOffering(vetID, s.requestID) {
		other.rejectAuto(ctx, vetID, reasonAcceptedOther)
	}
	s.deps.Registry.Deregister(s.requestID)

	for _, c := range remaining {
		s.publish(notify.EventOfferWithdrawn, notify.VetTopic(c.VetID), map[string]any{
			"reason": "request was assigned",
		})
	}
	payload := map[string]any{"vet_id": vetID}
	s.publish(notify.EventAccepted, notify.RequestTopic(s.requestID), payload)
	s.publish(notify.EventAccepted, notify.UserTopic(s.userID), payload)
	s.publish(notify.EventAccepted, notify.VetTopic(vetID), payload)

	offerOutcomes.WithLabelValues(string(model.OutcomeAccepted)).Inc()
	requestsResolved.WithLabelValues("assigned").Inc()
	s.recordOffer(vetID, model.OutcomeAccepted, "")
	return nil
}

// Reject records an explicit rejection from the vet currently holding the
// offer. Rejected vets are never re-offered this request.
func (s *Session) Reject(ctx context.Context, vetID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.currentVet != vetID {
		return ErrStaleAction
	}
	s.observeOutcome(model.OutcomeRejected)
	s.handleFailureLocked(ctx, vetID, model.OutcomeRejected, reason)
	return nil
}

// Cancel tears the session down on behalf of the requester. The fee has
// already been computed by the service.
func (s *Session) Cancel(ctx context.Context, reason, code string, fee float64) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	current := s.currentVet
	remaining := s.remainingLocked()
	s.clearTimersLocked()
	now := time.Now().UTC()
	s.appendAndPersist(ctx, current, model.OutcomeCancelled, reason, func(r *model.DispatchRequest) {
		r.Status = model.StatusCancelled
		r.Phase = model.PhaseCancelled
		r.Offer.Status = model.OfferCancelled
		r.Offer.CurrentVetID = ""
		r.Offer.ExpiresAt = nil
		r.CancelReason = reason
		r.CancelCode = code
		r.CancellationFee = fee
		r.CancelledAt = &now
	})
	s.done = true
	s.mu.Unlock()
	s.deps.Registry.Deregister(s.requestID)

	if current != "" {
		s.publish(notify.EventOfferCancelled, notify.VetTopic(current), map[string]any{
			"reason": reason,
		})
		s.releaseVet(ctx, current)
	}
	for _, c := range remaining {
		s.publish(notify.EventOfferWithdrawn, notify.VetTopic(c.VetID), map[string]any{
			"reason": "request was cancelled",
		})
	}
	s.publish(notify.EventCancelled, notify.RequestTopic(s.requestID), map[string]any{
		"reason": reason,
		"code":   code,
		"fee":    fee,
	})
	requestsResolved.WithLabelValues("cancelled").Inc()
	return nil
}

// rejectAuto is invoked when the current vet accepted a different request.
// The rejection is recorded and the queue advances immediately.
func (s *Session) rejectAuto(ctx context.Context, vetID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.currentVet != vetID {
		return
	}
	s.publish(notify.EventOfferRejectedAuto, notify.VetTopic(vetID), map[string]any{
		"request_id": s.requestID,
		"reason":     reason,
	})
	s.handleFailureLocked(ctx, vetID, model.OutcomeRejected, reason)
}

// onOfferTimeout fires when the per-candidate response window elapses.
func (s *Session) onOfferTimeout(seq int) func() {
	return func() {
		ctx := context.Background()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.done || seq != s.offerSeq || s.currentVet == "" {
			return
		}
		vetID := s.currentVet
		s.observeOutcome(model.OutcomeTimeout)
		s.publish(notify.EventOfferExpired, notify.VetTopic(vetID), map[string]any{
			"request_id": s.requestID,
		})
		s.releaseVet(ctx, vetID)
		s.handleFailureLocked(ctx, vetID, model.OutcomeTimeout, "response window elapsed")
	}
}

// onGlobalTimeout fires when the overall matching deadline elapses,
// regardless of per-offer progress.
func (s *Session) onGlobalTimeout() {
	ctx := context.Background()
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	current := s.currentVet
	remaining := s.remainingLocked()
	s.clearTimersLocked()
	if current != "" {
		s.appendAndPersist(ctx, current, model.OutcomeTimeout, reasonGlobalDeadline, nil)
		s.releaseVet(ctx, current)
		s.publish(notify.EventOfferExpired, notify.VetTopic(current), map[string]any{
			"request_id": s.requestID,
		})
	}
	now := time.Now().UTC()
	s.appendAndPersist(ctx, "", model.OutcomeCancelled, reasonGlobalTimeout, func(r *model.DispatchRequest) {
		r.Status = model.StatusCancelled
		r.Phase = model.PhaseCancelled
		r.Offer.Status = model.OfferCancelled
		r.Offer.CurrentVetID = ""
		r.Offer.ExpiresAt = nil
		r.CancelReason = reasonGlobalTimeout
		r.CancelCode = "dispatch_timeout"
		r.CancelledAt = &now
	})
	s.done = true
	s.mu.Unlock()
	s.deps.Registry.Deregister(s.requestID)

	for _, c := range remaining {
		s.publish(notify.EventOfferWithdrawn, notify.VetTopic(c.VetID), map[string]any{
			"reason": "request was cancelled",
		})
	}
	payload := map[string]any{"reason": reasonGlobalTimeout, "code": "dispatch_timeout"}
	s.publish(notify.EventNoVets, notify.UserTopic(s.userID), payload)
	s.publish(notify.EventCancelled, notify.RequestTopic(s.requestID), payload)
	requestsResolved.WithLabelValues("global_timeout").Inc()
}

// handleFailureLocked routes a failed offer to the manual retry branch or to
// queue advancement. Caller holds the lock.
func (s *Session) handleFailureLocked(ctx context.Context, vetID string, outcome model.OfferOutcome, reason string) {
	s.stopOfferTimerLocked()
	s.appendAndPersist(ctx, vetID, outcome, reason, nil)
	s.recordOffer(vetID, outcome, reason)
	offerOutcomes.WithLabelValues(string(outcome)).Inc()
	if s.manual {
		s.manualRetryLocked(ctx)
		return
	}
	s.advanceLocked(ctx)
}

// manualRetryLocked re-offers the hand-picked vet while attempts remain, then
// parks the request in the exhausted sub-state. It never falls back to
// automatic ranking on its own.
func (s *Session) manualRetryLocked(ctx context.Context) {
	if s.manualAttempts < s.deps.Cfg.MaxManualAttempts {
		s.cursor = -1
		s.advanceLocked(ctx)
		return
	}
	s.clearTimersLocked()
	s.appendAndPersist(ctx, s.queue[0].VetID, model.OutcomeExhausted, reasonManualExhausted, func(r *model.DispatchRequest) {
		r.Offer.Status = model.OfferExhausted
		r.Offer.CurrentVetID = ""
		r.Offer.ExpiresAt = nil
	})
	s.done = true
	s.deps.Registry.Deregister(s.requestID)
	payload := map[string]any{
		"vet_id":   s.queue[0].VetID,
		"attempts": s.manualAttempts,
	}
	s.publish(notify.EventManualExhausted, notify.UserTopic(s.userID), payload)
	s.publish(notify.EventManualExhausted, notify.RequestTopic(s.requestID), payload)
	requestsResolved.WithLabelValues("manual_exhausted").Inc()
}

// advanceLocked moves the cursor to the next candidate, escalating to the
// fallback round or terminating when the queue runs out. Caller holds the
// lock.
func (s *Session) advanceLocked(ctx context.Context) {
	if s.done {
		return
	}
	s.stopOfferTimerLocked()
	s.cursor++
	for s.cursor < len(s.queue) && !s.offerableLocked(ctx, s.queue[s.cursor].VetID) {
		s.cursor++
	}
	if s.cursor >= len(s.queue) {
		if s.round == 1 && !s.manual {
			if fallback := s.fallbackQueueLocked(ctx); len(fallback) > 0 {
				s.queue = fallback
				s.cursor = -1
				s.round = 2
				s.advanceLocked(ctx)
				return
			}
		}
		s.exhaustLocked(ctx)
		return
	}

	next := s.queue[s.cursor]
	expiry := time.Now().UTC().Add(s.deps.Cfg.OfferTTL())
	s.currentVet = next.VetID
	s.offeredAt = time.Now()
	if s.manual {
		s.manualAttempts++
	}
	s.offerSeq++
	s.offerTimer = time.AfterFunc(s.deps.Cfg.OfferTTL(), s.onOfferTimeout(s.offerSeq))
	s.deps.Registry.trackOffer(next.VetID, s)

	s.appendAndPersist(ctx, next.VetID, model.OutcomeOffered, "", func(r *model.DispatchRequest) {
		r.Offer.Status = model.OfferOffering
		r.Offer.CurrentVetID = next.VetID
		r.Offer.ExpiresAt = &expiry
		r.Offer.Queue = s.queue[s.cursor+1:]
		r.Offer.Round = s.round
		r.Offer.ManualAttempts = s.manualAttempts
	})

	s.publish(notify.EventOffer, notify.VetTopic(next.VetID), map[string]any{
		"request_id":  s.requestID,
		"distance_km": next.DistanceKm,
		"eta_minutes": next.ETAMinutes,
		"position":    s.cursor + 1,
		"round":       s.round,
		"total":       s.total,
		"expires_at":  expiry,
		"triage":      s.triage,
	})
	s.publish(notify.EventStatusUpdated, notify.RequestTopic(s.requestID), map[string]any{
		"offer_status": model.OfferOffering,
		"vet_id":       next.VetID,
		"round":        s.round,
	})
	offersPublished.WithLabelValues(strconv.Itoa(s.round)).Inc()
	s.recordOffer(next.VetID, model.OutcomeOffered, "")
	s.deps.Log.Infof("request %s: offered to vet %s (round %d, position %d)", s.requestID, next.VetID, s.round, s.cursor+1)
}

// offerableLocked re-checks a queued candidate against the roster right
// before the offer would go out. The queue snapshot goes stale while earlier
// candidates hold the offer: a vet who picked up another assignment meanwhile
// is recorded as rejected so the fallback round never revisits them.
func (s *Session) offerableLocked(ctx context.Context, vetID string) bool {
	v, err := s.deps.Vets.Get(ctx, vetID)
	if err != nil {
		s.deps.Log.Warnf("candidate lookup %s: %v", vetID, err)
		s.appendAndPersist(ctx, vetID, model.OutcomeRejected, reasonUnavailable, nil)
		return false
	}
	if v.Assignable() {
		return true
	}
	s.appendAndPersist(ctx, vetID, model.OutcomeRejected, reasonUnavailable, nil)
	return false
}

// fallbackQueueLocked rebuilds the queue for round 2 from candidates whose
// only negative outcome was a timeout, revalidated against the roster.
func (s *Session) fallbackQueueLocked(ctx context.Context) []model.CandidateRef {
	r, err := s.deps.Requests.Get(ctx, s.requestID)
	if err != nil {
		s.deps.Log.Errorf("fallback lookup %s: %v", s.requestID, err)
		return nil
	}
	ids := r.Offer.TimedOutOnly()
	if len(ids) == 0 {
		return nil
	}
	return s.deps.Finder.Revalidate(ctx, s.origin, s.mode, ids)
}

// exhaustLocked terminates the session once no further candidate can be
// offered, whether round 2 ran dry or round 1 left nothing to fall back to.
// The born-empty queue never reaches here; the service cancels that request
// before a session starts.
func (s *Session) exhaustLocked(ctx context.Context) {
	s.clearTimersLocked()
	reason := reasonTwoRounds
	now := time.Now().UTC()
	s.appendAndPersist(ctx, "", model.OutcomeExhausted, reason, func(r *model.DispatchRequest) {
		r.Status = model.StatusCancelled
		r.Phase = model.PhaseCancelled
		r.Offer.Status = model.OfferExhausted
		r.Offer.CurrentVetID = ""
		r.Offer.ExpiresAt = nil
		r.CancelReason = reason
		r.CancelCode = "no_vets"
		r.CancelledAt = &now
	})
	s.done = true
	s.deps.Registry.Deregister(s.requestID)
	payload := map[string]any{"reason": reason, "code": "no_vets"}
	s.publish(notify.EventNoVets, notify.UserTopic(s.userID), payload)
	s.publish(notify.EventCancelled, notify.RequestTopic(s.requestID), payload)
	requestsResolved.WithLabelValues("exhausted").Inc()
	s.deps.Log.Warnf("request %s: candidate queue exhausted (%s)", s.requestID, reason)
}

// remainingLocked returns the queued candidates past the cursor.
func (s *Session) remainingLocked() []model.CandidateRef {
	if s.cursor+1 >= len(s.queue) {
		return nil
	}
	out := make([]model.CandidateRef, len(s.queue[s.cursor+1:]))
	copy(out, s.queue[s.cursor+1:])
	return out
}

// clearTimersLocked stops both timers. Every path ending a session goes
// through here before any further asynchronous step.
func (s *Session) clearTimersLocked() {
	s.stopOfferTimerLocked()
	if s.globalTimer != nil {
		s.globalTimer.Stop()
		s.globalTimer = nil
	}
}

func (s *Session) stopOfferTimerLocked() {
	if s.offerTimer != nil {
		s.offerTimer.Stop()
		s.offerTimer = nil
	}
	s.offerSeq++
	if s.currentVet != "" {
		s.deps.Registry.untrackOffer(s.currentVet, s)
	}
	s.currentVet = ""
}

// appendAndPersist writes one history entry plus any extra mutation in a
// single committed step. Lookup failures abort the write without corrupting
// in-memory session state.
func (s *Session) appendAndPersist(ctx context.Context, vetID string, outcome model.OfferOutcome, reason string, mutate func(*model.DispatchRequest)) {
	err := s.mutateRequest(ctx, func(r *model.DispatchRequest) {
		r.Offer.History = append(r.Offer.History, model.HistoryEntry{
			VetID:     vetID,
			Outcome:   outcome,
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		})
		if mutate != nil {
			mutate(r)
		}
	})
	if err != nil {
		s.deps.Log.Errorf("persist request %s: %v", s.requestID, err)
	}
}

func (s *Session) mutateRequest(ctx context.Context, mutate func(*model.DispatchRequest)) error {
	r, err := s.deps.Requests.Get(ctx, s.requestID)
	if err != nil {
		return err
	}
	mutate(&r)
	return s.deps.Requests.Update(ctx, r)
}

// releaseVet reverts a vet with no active assignment back to available.
func (s *Session) releaseVet(ctx context.Context, vetID string) {
	v, err := s.deps.Vets.Get(ctx, vetID)
	if err != nil {
		s.deps.Log.Warnf("release vet %s: %v", vetID, err)
		return
	}
	if v.ActiveRequestID != "" || v.Status == model.VetAvailable {
		return
	}
	if err := s.deps.Vets.SetStatus(ctx, vetID, model.VetAvailable, ""); err != nil {
		s.deps.Log.Warnf("release vet %s: %v", vetID, err)
	}
}

func (s *Session) publish(t notify.EventType, topic string, payload map[string]any) {
	s.deps.Notifier.Publish(notify.Event{
		Type:      t,
		Topic:     topic,
		RequestID: s.requestID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Session) observeOutcome(outcome model.OfferOutcome) {
	if s.offeredAt.IsZero() {
		return
	}
	offerLatency.WithLabelValues(string(outcome)).Observe(time.Since(s.offeredAt).Seconds())
}

func (s *Session) recordOffer(vetID string, outcome model.OfferOutcome, reason string) {
	if s.deps.Sink == nil {
		return
	}
	var dist float64
	if s.cursor >= 0 && s.cursor < len(s.queue) {
		dist = s.queue[s.cursor].DistanceKm
	}
	if err := s.deps.Sink.RecordOffer(coremetrics.OfferEvent{
		RequestID:  s.requestID,
		VetID:      vetID,
		Outcome:    outcome,
		Round:      s.round,
		DistanceKm: dist,
		Reason:     reason,
		Time:       time.Now().UTC(),
	}); err != nil {
		s.deps.Log.Errorf("metrics sink: %v", err)
	}
}

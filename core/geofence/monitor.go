package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/logger"
	coremetrics "github.com/petriage/petriage/core/metrics"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/notify"
	"github.com/petriage/petriage/core/store"
)

// Config defines the geofencing thresholds.
type Config struct {
	// ArrivalRadiusM is the distance to the requester below which the vet
	// counts as arrived.
	ArrivalRadiusM float64 `json:"arrival_radius_m"`
	// ServiceGraceSeconds is the delay after arrival before the
	// consultation is auto-confirmed.
	ServiceGraceSeconds int `json:"service_grace_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ArrivalRadiusM <= 0 {
		c.ArrivalRadiusM = 50
	}
	if c.ServiceGraceSeconds <= 0 {
		c.ServiceGraceSeconds = 30
	}
}

// ErrNotAssignedVet is returned when a phase transition comes from a vet who
// does not hold the assignment.
var ErrNotAssignedVet = errors.New("geofence: vet does not hold this assignment")

// Monitor consumes location pings from assigned vets and drives the
// post-assignment lifecycle to completion. Manual confirmation always takes
// precedence over the auto-confirm grace timer.
type Monitor struct {
	requests store.RequestStore
	vets     store.VetStore
	notifier notify.Dispatcher
	sink     coremetrics.Sink
	log      logger.Logger
	cfg      Config

	mu    sync.Mutex
	grace map[string]*time.Timer
}

func NewMonitor(requests store.RequestStore, vets store.VetStore, notifier notify.Dispatcher, sink coremetrics.Sink, log logger.Logger, cfg Config) *Monitor {
	cfg.SetDefaults()
	return &Monitor{
		requests: requests,
		vets:     vets,
		notifier: notifier,
		sink:     sink,
		log:      log,
		cfg:      cfg,
		grace:    map[string]*time.Timer{},
	}
}

// Ping processes one location sample from a vet. requestID may be empty, in
// which case the vet's active assignment is used.
func (m *Monitor) Ping(ctx context.Context, vetID string, at geo.Point, requestID string) error {
	if requestID == "" {
		v, err := m.vets.Get(ctx, vetID)
		if err != nil {
			return err
		}
		requestID = v.ActiveRequestID
	}
	if requestID == "" {
		return nil
	}
	r, err := m.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if r.AssignedVetID != vetID || r.Status.Terminal() {
		return nil
	}

	dist := geo.DistanceM(at, r.Location)
	switch r.Phase {
	case model.PhaseOnWay:
		if dist <= m.cfg.ArrivalRadiusM {
			return m.markArrived(ctx, r, true)
		}
	case model.PhaseArrived:
		if dist <= m.cfg.ArrivalRadiusM && !r.ServiceAutoConfirmed && r.ServiceConfirmedAt == nil {
			m.armGrace(r.ID, vetID)
		}
	}
	return nil
}

// OnWay records that the vet departed towards the requester.
func (m *Monitor) OnWay(ctx context.Context, requestID, vetID string, etaMinutes int) error {
	r, err := m.loadAssigned(ctx, requestID, vetID)
	if err != nil {
		return err
	}
	if r.Phase != model.PhaseVetAssigned {
		return fmt.Errorf("geofence: cannot start travel from phase %s", r.Phase)
	}
	now := time.Now().UTC()
	r.Phase = model.PhaseOnWay
	r.OnWayAt = &now
	if err := m.requests.Update(ctx, r); err != nil {
		return err
	}
	if err := m.vets.SetStatus(ctx, vetID, model.VetOnWay, requestID); err != nil {
		m.log.Warnf("vet %s on-way status: %v", vetID, err)
	}
	m.broadcast(r, notify.EventOnWay, map[string]any{"eta_minutes": etaMinutes})
	m.recordPhase(r, false)
	return nil
}

// Arrived records a manual arrival report from the vet.
func (m *Monitor) Arrived(ctx context.Context, requestID, vetID string) error {
	r, err := m.loadAssigned(ctx, requestID, vetID)
	if err != nil {
		return err
	}
	if r.Phase != model.PhaseOnWay {
		return fmt.Errorf("geofence: cannot arrive from phase %s", r.Phase)
	}
	return m.markArrived(ctx, r, false)
}

// ConfirmService is the requester's manual confirmation that the consultation
// started. It cancels any pending auto-confirm.
func (m *Monitor) ConfirmService(ctx context.Context, requestID string) error {
	m.cancelGrace(requestID)
	r, err := m.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if r.Phase != model.PhaseArrived {
		return fmt.Errorf("geofence: cannot confirm service from phase %s", r.Phase)
	}
	return m.startService(ctx, r, false)
}

// Complete finishes the consultation and releases the vet.
func (m *Monitor) Complete(ctx context.Context, requestID, vetID, notes string) error {
	m.cancelGrace(requestID)
	r, err := m.loadAssigned(ctx, requestID, vetID)
	if err != nil {
		return err
	}
	if r.Phase != model.PhaseInService && r.Phase != model.PhaseArrived {
		return fmt.Errorf("geofence: cannot complete from phase %s", r.Phase)
	}
	now := time.Now().UTC()
	r.Phase = model.PhaseCompleted
	r.Status = model.StatusCompleted
	r.CompletedAt = &now
	if notes != "" {
		r.Triage.Notes = notes
	}
	if err := m.requests.Update(ctx, r); err != nil {
		return err
	}
	if err := m.vets.SetStatus(ctx, vetID, model.VetAvailable, ""); err != nil {
		m.log.Warnf("release vet %s: %v", vetID, err)
	}
	m.broadcast(r, notify.EventCompleted, nil)
	m.recordPhase(r, false)
	return nil
}

// Stop cancels all pending grace timers.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.grace {
		t.Stop()
		delete(m.grace, id)
	}
}

func (m *Monitor) markArrived(ctx context.Context, r model.DispatchRequest, auto bool) error {
	now := time.Now().UTC()
	r.Phase = model.PhaseArrived
	r.ArrivedAt = &now
	if err := m.requests.Update(ctx, r); err != nil {
		return err
	}
	m.broadcast(r, notify.EventArrived, map[string]any{"autoDetected": auto})
	m.recordPhase(r, auto)
	return nil
}

// armGrace schedules the auto-confirmation once per request.
func (m *Monitor) armGrace(requestID, vetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grace[requestID]; ok {
		return
	}
	m.grace[requestID] = time.AfterFunc(time.Duration(m.cfg.ServiceGraceSeconds)*time.Second, func() {
		m.autoConfirm(requestID, vetID)
	})
}

func (m *Monitor) cancelGrace(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.grace[requestID]; ok {
		t.Stop()
		delete(m.grace, requestID)
	}
}

// autoConfirm fires after the grace period. The request is re-read: a manual
// confirmation recorded meanwhile wins.
func (m *Monitor) autoConfirm(requestID, vetID string) {
	ctx := context.Background()
	m.cancelGrace(requestID)
	r, err := m.requests.Get(ctx, requestID)
	if err != nil {
		m.log.Errorf("auto-confirm lookup %s: %v", requestID, err)
		return
	}
	if r.Phase != model.PhaseArrived || r.AssignedVetID != vetID || r.ServiceConfirmedAt != nil {
		return
	}
	if err := m.startService(ctx, r, true); err != nil {
		m.log.Errorf("auto-confirm %s: %v", requestID, err)
	}
}

func (m *Monitor) startService(ctx context.Context, r model.DispatchRequest, auto bool) error {
	now := time.Now().UTC()
	r.Phase = model.PhaseInService
	r.Status = model.StatusInProgress
	r.ServiceAutoConfirmed = auto
	r.ServiceConfirmedAt = &now
	if err := m.requests.Update(ctx, r); err != nil {
		return err
	}
	m.broadcast(r, notify.EventInService, map[string]any{"autoConfirmed": auto})
	m.recordPhase(r, auto)
	return nil
}

func (m *Monitor) loadAssigned(ctx context.Context, requestID, vetID string) (model.DispatchRequest, error) {
	r, err := m.requests.Get(ctx, requestID)
	if err != nil {
		return model.DispatchRequest{}, err
	}
	if r.AssignedVetID != vetID {
		return model.DispatchRequest{}, ErrNotAssignedVet
	}
	if r.Status.Terminal() {
		return model.DispatchRequest{}, fmt.Errorf("geofence: request %s already %s", requestID, r.Status)
	}
	return r, nil
}

func (m *Monitor) broadcast(r model.DispatchRequest, t notify.EventType, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["phase"] = r.Phase
	now := time.Now().UTC()
	for _, topic := range []string{
		notify.RequestTopic(r.ID),
		notify.UserTopic(r.UserID),
		notify.VetTopic(r.AssignedVetID),
	} {
		m.notifier.Publish(notify.Event{
			Type: t, Topic: topic, RequestID: r.ID,
			Payload: payload, Timestamp: now,
		})
	}
}

func (m *Monitor) recordPhase(r model.DispatchRequest, auto bool) {
	if m.sink == nil {
		return
	}
	rec, ok := m.sink.(coremetrics.AssignmentRecorder)
	if !ok {
		return
	}
	if err := rec.RecordAssignment(coremetrics.AssignmentEvent{
		RequestID:     r.ID,
		VetID:         r.AssignedVetID,
		Mode:          r.Mode,
		Phase:         r.Phase,
		AutoTriggered: auto,
		Time:          time.Now().UTC(),
	}); err != nil {
		m.log.Errorf("metrics sink: %v", err)
	}
}

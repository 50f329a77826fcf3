package requests

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/petriage/petriage/core/dispatch"
	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/geofence"
	"github.com/petriage/petriage/core/logger"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/store"
)

// Handler exposes the dispatch engine over HTTP.
type Handler struct {
	svc     *dispatch.Service
	monitor *geofence.Monitor
	log     logger.Logger
}

func NewHandler(svc *dispatch.Service, monitor *geofence.Monitor, log logger.Logger) *Handler {
	return &Handler{svc: svc, monitor: monitor, log: log}
}

// Mux returns the request router.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/requests", h.create)
	mux.HandleFunc("GET /api/requests/{id}", h.get)
	mux.HandleFunc("POST /api/requests/{id}/expand", h.expand)
	mux.HandleFunc("POST /api/requests/{id}/accept", h.accept)
	mux.HandleFunc("POST /api/requests/{id}/reject", h.reject)
	mux.HandleFunc("POST /api/requests/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /api/requests/{id}/on-way", h.onWay)
	mux.HandleFunc("POST /api/requests/{id}/arrived", h.arrived)
	mux.HandleFunc("POST /api/requests/{id}/confirm-service", h.confirmService)
	mux.HandleFunc("POST /api/requests/{id}/complete", h.complete)
	mux.HandleFunc("POST /api/vets/{id}/location", h.location)
	return mux
}

type createBody struct {
	UserID         string       `json:"user_id"`
	PetID          string       `json:"pet_id"`
	Mode           string       `json:"mode"`
	Strategy       string       `json:"strategy,omitempty"`
	PreferredVetID string       `json:"preferred_vet_id,omitempty"`
	Location       geo.Point    `json:"location"`
	Address        string       `json:"address,omitempty"`
	Triage         model.Triage `json:"triage"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req, err := h.svc.Create(r.Context(), dispatch.CreateParams{
		UserID:         body.UserID,
		PetID:          body.PetID,
		Mode:           model.ServiceMode(body.Mode),
		Strategy:       model.Strategy(body.Strategy),
		PreferredVetID: body.PreferredVetID,
		Location:       body.Location,
		Address:        body.Address,
		Triage:         body.Triage,
	})
	if errors.Is(err, dispatch.ErrNoCandidates) {
		// The request exists but was cancelled: prompt a modality switch.
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"request": req,
			"code":    "no_vets",
			"message": "no vets available, try another service mode",
		})
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) expand(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.ExpandSearch(r.Context(), r.PathValue("id"))
	if errors.Is(err, dispatch.ErrNoCandidates) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"request": req,
			"code":    "no_vets",
			"message": "no vets available for an expanded search",
		})
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type vetActionBody struct {
	VetID  string `json:"vet_id"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	var body vetActionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.svc.Accept(r.Context(), r.PathValue("id"), body.VetID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	req, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var body vetActionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.svc.Reject(r.Context(), r.PathValue("id"), body.VetID, body.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type cancelBody struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req, err := h.svc.Cancel(r.Context(), r.PathValue("id"), body.Reason, body.Code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type onWayBody struct {
	VetID      string `json:"vet_id"`
	ETAMinutes int    `json:"eta_minutes"`
}

func (h *Handler) onWay(w http.ResponseWriter, r *http.Request) {
	var body onWayBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.monitor.OnWay(r.Context(), r.PathValue("id"), body.VetID, body.ETAMinutes); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(model.PhaseOnWay)})
}

func (h *Handler) arrived(w http.ResponseWriter, r *http.Request) {
	var body vetActionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.monitor.Arrived(r.Context(), r.PathValue("id"), body.VetID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(model.PhaseArrived)})
}

func (h *Handler) confirmService(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.ConfirmService(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(model.PhaseInService)})
}

type completeBody struct {
	VetID string `json:"vet_id"`
	Notes string `json:"notes,omitempty"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var body completeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.monitor.Complete(r.Context(), r.PathValue("id"), body.VetID, body.Notes); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(model.PhaseCompleted)})
}

type locationBody struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	RequestID string  `json:"request_id,omitempty"`
}

func (h *Handler) location(w http.ResponseWriter, r *http.Request) {
	var body locationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := h.monitor.Ping(r.Context(), r.PathValue("id"), geo.Point{Lat: body.Lat, Lng: body.Lng}, body.RequestID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// writeServiceError maps engine errors to HTTP status and reason codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "request not found")
	case errors.Is(err, dispatch.ErrStaleAction), errors.Is(err, dispatch.ErrSessionClosed):
		writeError(w, http.StatusConflict, "stale_action", err.Error())
	case errors.Is(err, dispatch.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate_request", err.Error())
	case errors.Is(err, dispatch.ErrNotExhausted):
		writeError(w, http.StatusConflict, "not_exhausted", err.Error())
	case errors.Is(err, dispatch.ErrVetUnavailable):
		writeError(w, http.StatusConflict, "vet_unavailable", err.Error())
	case errors.Is(err, geofence.ErrNotAssignedVet):
		writeError(w, http.StatusForbidden, "not_assigned", err.Error())
	default:
		h.log.Errorf("request handler: %v", err)
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

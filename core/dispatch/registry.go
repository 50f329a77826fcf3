package dispatch

import "sync"

// Registry is the process-wide collection of active matching sessions. It
// also maintains a secondary index from vet to the sessions currently
// offering to that vet, so acceptance pre-emption needs no linear scan.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byVet    map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		byVet:    map[string]map[string]*Session{},
	}
}

// Register adds the session. Returns false if one already exists for the
// request.
func (r *Registry) Register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.requestID]; ok {
		return false
	}
	r.sessions[s.requestID] = s
	activeSessions.Set(float64(len(r.sessions)))
	return true
}

// Deregister removes the session and any offer index entries pointing at it.
func (r *Registry) Deregister(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, requestID)
	for vetID, set := range r.byVet {
		delete(set, requestID)
		if len(set) == 0 {
			delete(r.byVet, vetID)
		}
	}
	activeSessions.Set(float64(len(r.sessions)))
}

// Get returns the active session for the request, if any.
func (r *Registry) Get(requestID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[requestID]
	return s, ok
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// trackOffer records that the session currently offers to the vet. Any
// previous index entry for the session is dropped first: a session offers to
// at most one vet at a time.
func (r *Registry) trackOffer(vetID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, set := range r.byVet {
		delete(set, s.requestID)
		if len(set) == 0 {
			delete(r.byVet, id)
		}
	}
	set, ok := r.byVet[vetID]
	if !ok {
		set = map[string]*Session{}
		r.byVet[vetID] = set
	}
	set[s.requestID] = s
}

// untrackOffer drops the session's offer index entry for the vet.
func (r *Registry) untrackOffer(vetID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.byVet[vetID]; ok {
		delete(set, s.requestID)
		if len(set) == 0 {
			delete(r.byVet, vetID)
		}
	}
}

// SessionsOffering returns every session (other than the excluded request)
// whose current offer targets the vet.
func (r *Registry) SessionsOffering(vetID, exceptRequestID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for id, s := range r.byVet[vetID] {
		if id == exceptRequestID {
			continue
		}
		out = append(out, s)
	}
	return out
}

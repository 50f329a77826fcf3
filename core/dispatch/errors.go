package dispatch

import "errors"

var (
	// ErrNoCandidates means no eligible vet exists for the request. The
	// request is cancelled with a typed reason and the requester is
	// prompted to switch modality.
	ErrNoCandidates = errors.New("dispatch: no vets available")

	// ErrStaleAction means an accept or reject arrived from a vet who no
	// longer holds the offer. Always reported explicitly, never dropped.
	ErrStaleAction = errors.New("dispatch: offer no longer held by this vet")

	// ErrDuplicateRequest means the (user, pet) pair already has an open
	// request.
	ErrDuplicateRequest = errors.New("dispatch: an open request already exists for this pet")

	// ErrNotExhausted means expand-search was called outside the
	// manual-exhausted state.
	ErrNotExhausted = errors.New("dispatch: request is not awaiting an expanded search")

	// ErrVetUnavailable means the targeted vet cannot take the request.
	ErrVetUnavailable = errors.New("dispatch: vet cannot take this request")

	// ErrSessionClosed means the matching process for the request already
	// ended.
	ErrSessionClosed = errors.New("dispatch: no active matching session for this request")
)

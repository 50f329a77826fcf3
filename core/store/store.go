package store

import (
	"context"
	"errors"

	"github.com/petriage/petriage/core/model"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("store: not found")

// RequestStore persists dispatch requests together with their offer sub-record.
// A read at any time reflects the last committed write.
type RequestStore interface {
	Create(ctx context.Context, r *model.DispatchRequest) error
	Get(ctx context.Context, id string) (model.DispatchRequest, error)
	Update(ctx context.Context, r model.DispatchRequest) error
	// ActiveForPet returns the non-terminal request for the (user, pet)
	// pair, if any. Enforces the one-open-request invariant at creation.
	ActiveForPet(ctx context.Context, userID, petID string) (model.DispatchRequest, error)
	Close() error
}

// VetStore persists the provider roster consumed by the candidate finder.
type VetStore interface {
	Get(ctx context.Context, id string) (model.Vet, error)
	List(ctx context.Context) ([]model.Vet, error)
	Put(ctx context.Context, v model.Vet) error
	// SetStatus updates the operational status and active assignment
	// reference in one step.
	SetStatus(ctx context.Context, id string, status model.VetStatus, activeRequestID string) error
}

// ChatStore creates or reuses the communication channel opened between the
// requester and the accepted vet. Message storage lives elsewhere.
type ChatStore interface {
	Ensure(ctx context.Context, requestID, userID, vetID string) (channelID string, err error)
}

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/notify"
	"github.com/petriage/petriage/core/store"
)

func TestService_CreateQuotesFromNearest(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2), testVet("b", 5))
	r, err := env.svc.Create(context.Background(), createParams("u1", "p1"))
	require.NoError(t, err)

	require.Equal(t, model.StatusPending, r.Status)
	require.Equal(t, "EUR", r.Pricing.Currency)
	// base 80 + 2 km * 2/km
	require.InDelta(t, 84.0, r.Pricing.Total, 0.01)
	require.Len(t, r.Offer.Queue, 1, "queue holds the not-yet-offered tail")
}

func TestService_CreateRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))
	_, err := env.svc.Create(context.Background(), createParams("u1", "p1"))
	require.NoError(t, err)

	_, err = env.svc.Create(context.Background(), createParams("u1", "p1"))
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestService_CreateNoCandidates(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30})
	r, err := env.svc.Create(context.Background(), createParams("u1", "p1"))
	require.ErrorIs(t, err, ErrNoCandidates)

	// The request is still persisted, born cancelled, so the client can
	// show the outcome.
	require.NotEmpty(t, r.ID)
	cur := env.load(t, r.ID)
	require.Equal(t, model.StatusCancelled, cur.Status)
	require.Equal(t, "no_vets", cur.CancelCode)
	require.NotEmpty(t, env.rec.ofType(notify.EventNoVets))
}

func TestService_CreateValidatesInput(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))

	p := createParams("u1", "p1")
	p.Location = geo.Point{}
	_, err := env.svc.Create(context.Background(), p)
	require.Error(t, err)

	p = createParams("", "p1")
	_, err = env.svc.Create(context.Background(), p)
	require.Error(t, err)
}

func TestService_ManualUnavailablePreferredVetCancels(t *testing.T) {
	offline := testVet("a", 2)
	offline.Available = false
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, offline)

	p := createParams("u1", "p1")
	p.Strategy = model.StrategyManual
	p.PreferredVetID = "a"
	r, err := env.svc.Create(context.Background(), p)
	require.ErrorIs(t, err, ErrNoCandidates)

	// Same outcome as the automatic no-candidate path: the request lands
	// born cancelled so the client can offer a modality switch.
	require.NotEmpty(t, r.ID)
	cur := env.load(t, r.ID)
	require.Equal(t, model.StatusCancelled, cur.Status)
	require.Equal(t, "no_vets", cur.CancelCode)
	require.NotEmpty(t, env.rec.ofType(notify.EventNoVets))
}

func TestService_ExpandSearchOnlyAfterExhaustion(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))
	p := createParams("u1", "p1")
	p.Strategy = model.StrategyManual
	p.PreferredVetID = "a"
	r, err := env.svc.Create(context.Background(), p)
	require.NoError(t, err)

	_, err = env.svc.ExpandSearch(context.Background(), r.ID)
	require.ErrorIs(t, err, ErrNotExhausted)

	// Automatic requests never qualify either.
	auto, err := env.svc.Create(context.Background(), createParams("u2", "p2"))
	require.NoError(t, err)
	_, err = env.svc.ExpandSearch(context.Background(), auto.ID)
	require.ErrorIs(t, err, ErrNotExhausted)
}

func TestService_CancelAfterAssignmentChargesFee(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))
	p := createParams("u1", "p1")
	p.Mode = model.ModeClinic
	r, err := env.svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, env.svc.Accept(context.Background(), r.ID, "a"))

	out, err := env.svc.Cancel(context.Background(), r.ID, "found closer clinic", "user_cancel")
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, out.Status)
	// Clinic cancellations after assignment charge half the quoted total.
	require.InDelta(t, out.Pricing.Total/2, out.CancellationFee, 0.01)

	// The assigned vet is released.
	vet, err := env.vets.Get(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, model.VetAvailable, vet.Status)
	require.Empty(t, vet.ActiveRequestID)
}

func TestService_CancelBeforeAcceptIsFree(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))
	r, err := env.svc.Create(context.Background(), createParams("u1", "p1"))
	require.NoError(t, err)

	out, err := env.svc.Cancel(context.Background(), r.ID, "panic over", "user_cancel")
	require.NoError(t, err)
	require.Zero(t, out.CancellationFee)
}

func TestService_CancelTerminalRequestFails(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))
	r, err := env.svc.Create(context.Background(), createParams("u1", "p1"))
	require.NoError(t, err)
	_, err = env.svc.Cancel(context.Background(), r.ID, "first", "user_cancel")
	require.NoError(t, err)

	_, err = env.svc.Cancel(context.Background(), r.ID, "again", "user_cancel")
	require.Error(t, err)
}

func TestService_GetUnknownRequest(t *testing.T) {
	env := newTestEnv(t, Config{OfferTimeoutSeconds: 30}, testVet("a", 2))
	_, err := env.svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, env.svc.Accept(context.Background(), "nope", "a"), store.ErrNotFound)
}

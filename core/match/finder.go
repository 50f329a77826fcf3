package match

import (
	"context"
	"sort"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/logger"
	"github.com/petriage/petriage/core/model"
	"github.com/petriage/petriage/core/store"
)

// Finder ranks eligible vets around a point. Stateless aside from the roster
// store; errors yield an empty result and the caller applies the
// no-candidates policy.
type Finder struct {
	vets store.VetStore
	log  logger.Logger
}

func NewFinder(vets store.VetStore, log logger.Logger) *Finder {
	return &Finder{vets: vets, log: log}
}

// Find returns assignable vets within radiusKm of origin, ordered ascending by
// great-circle distance. Clinic mode additionally requires walk-in support.
func (f *Finder) Find(ctx context.Context, origin geo.Point, radiusKm float64, mode model.ServiceMode) []model.CandidateRef {
	all, err := f.vets.List(ctx)
	if err != nil {
		f.log.Errorf("vet lookup failed: %v", err)
		return nil
	}
	var refs []model.CandidateRef
	for _, v := range all {
		if !v.Assignable() {
			continue
		}
		if mode == model.ModeClinic && !v.InPersonCapable {
			continue
		}
		d := geo.DistanceKm(origin, v.Location)
		if d > radiusKm {
			continue
		}
		refs = append(refs, model.CandidateRef{
			VetID:      v.ID,
			DistanceKm: d,
			ETAMinutes: geo.ETAMinutes(d),
		})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].DistanceKm < refs[j].DistanceKm })
	return refs
}

// Revalidate re-checks a set of vets against the roster and recomputes
// distances. Used when rebuilding the queue for the fallback round.
func (f *Finder) Revalidate(ctx context.Context, origin geo.Point, mode model.ServiceMode, vetIDs []string) []model.CandidateRef {
	var refs []model.CandidateRef
	for _, id := range vetIDs {
		v, err := f.vets.Get(ctx, id)
		if err != nil {
			f.log.Warnf("revalidate vet %s: %v", id, err)
			continue
		}
		if !v.Assignable() {
			continue
		}
		if mode == model.ModeClinic && !v.InPersonCapable {
			continue
		}
		d := geo.DistanceKm(origin, v.Location)
		refs = append(refs, model.CandidateRef{
			VetID:      v.ID,
			DistanceKm: d,
			ETAMinutes: geo.ETAMinutes(d),
		})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].DistanceKm < refs[j].DistanceKm })
	return refs
}

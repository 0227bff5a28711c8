// Package reconcile classifies a run's observations against the persisted
// state and computes the next state.
package reconcile

import (
	"sort"

	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/state"
)

// Result is the next state and the transitions that lead to it, sorted by
// identity with at most one entry per identity.
type Result struct {
	Next        state.PersistedState
	Transitions []models.Transition
}

// Notifiable returns the transitions that should reach the notifier.
func (r Result) Notifiable() []models.Transition {
	var out []models.Transition
	for _, t := range r.Transitions {
		if t.Kind.Notifies() {
			out = append(out, t)
		}
	}
	return out
}

// Counts tallies transitions by kind.
func (r Result) Counts() map[models.TransitionKind]int {
	out := make(map[models.TransitionKind]int)
	for _, t := range r.Transitions {
		out[t.Kind]++
	}
	return out
}

// Reconcile is pure: prior is not modified. Identities held in Available but
// missing from obs are left alone, since absence may just mean a failed
// fetch.
func Reconcile(prior state.PersistedState, obs models.RunObservation) Result {
	next := prior.Clone()

	ids := make([]models.Identity, 0, len(obs))
	for id := range obs {
		ids = append(ids, id)
	}
	sortIdentities(ids)

	transitions := make([]models.Transition, 0, len(ids))
	for _, id := range ids {
		rec := obs[id]
		kind := classify(prior, id, rec)

		switch kind {
		case models.NewProduct:
			next.Seen[id] = rec.Name
			if rec.Purchasable() || rec.Availability == models.Preorderable {
				next.Available[id] = rec.Name
			}
		case models.BackInStock, models.BecamePreorderable:
			next.Available[id] = rec.Name
		case models.RemovedSoldOut:
			delete(next.Available, id)
		}

		transitions = append(transitions, models.Transition{
			Kind:     kind,
			Identity: id,
			Name:     rec.Name,
			Record:   rec,
		})
	}

	return Result{Next: next, Transitions: transitions}
}

func classify(prior state.PersistedState, id models.Identity, rec models.RawProductRecord) models.TransitionKind {
	if _, seen := prior.Seen[id]; !seen {
		return models.NewProduct
	}
	_, available := prior.Available[id]
	switch {
	case rec.Purchasable() && !available:
		return models.BackInStock
	case rec.Availability == models.Preorderable && !available:
		return models.BecamePreorderable
	case rec.Availability == models.SoldOut && !rec.ForcedAvailable && available:
		return models.RemovedSoldOut
	default:
		return models.Unchanged
	}
}

// SweepAbsent drops every Available identity that no site reported in obs.
// Callers must only use it after a run in which every site reported without
// errors.
func SweepAbsent(res Result, obs models.RunObservation) Result {
	next := res.Next.Clone()
	transitions := append([]models.Transition(nil), res.Transitions...)

	for id, name := range res.Next.Available {
		if _, ok := obs[id]; ok {
			continue
		}
		delete(next.Available, id)
		transitions = append(transitions, models.Transition{
			Kind:     models.RemovedMissing,
			Identity: id,
			Name:     name,
		})
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Identity < transitions[j].Identity
	})
	return Result{Next: next, Transitions: transitions}
}

func sortIdentities(ids []models.Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

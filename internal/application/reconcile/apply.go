// Package reconcile applies pushed change events and expiry sweeps to client-held collections.
//
// Apply, Sweep and Rebase never write to their input slices and always return a fresh slice, so
// a held collection can be shared with readers while the owner reconciles against it.
package reconcile

import (
	"github.com/lostfound-sync/internal/domain"
)

// MergeFunc combines the held state of an entity with its incoming state.
type MergeFunc[T domain.Entity] func(old, incoming T) T

// Replace is the default merge: the incoming state wins.
func Replace[T domain.Entity](_, incoming T) T { return incoming }

// Apply reconciles ev into c with Replace semantics.
func Apply[T domain.Entity](c []T, ev domain.Event[T]) []T {
	return ApplyMerge(c, ev, Replace[T])
}

// ApplyMerge reconciles ev into c.
//
// Insert of a known id is an update. Update of an unknown id is an insert. Inserts prepend so the
// collection stays newest first. Delete of an unknown id leaves the collection unchanged.
func ApplyMerge[T domain.Entity](c []T, ev domain.Event[T], merge MergeFunc[T]) []T {
	idx := indexOf(c, ev.Key())
	switch ev.Kind {
	case domain.EventInsert, domain.EventUpdate:
		if idx < 0 {
			out := make([]T, 0, len(c)+1)
			out = append(out, ev.Entity)
			return append(out, c...)
		}
		out := clone(c)
		out[idx] = merge(c[idx], ev.Entity)
		return out
	case domain.EventDelete:
		if idx < 0 {
			return clone(c)
		}
		out := make([]T, 0, len(c)-1)
		out = append(out, c[:idx]...)
		return append(out, c[idx+1:]...)
	default:
		return clone(c)
	}
}

func indexOf[T domain.Entity](c []T, id string) int {
	for i, v := range c {
		if v.EntityID() == id {
			return i
		}
	}
	return -1
}

func clone[T any](c []T) []T {
	out := make([]T, len(c))
	copy(out, c)
	return out
}

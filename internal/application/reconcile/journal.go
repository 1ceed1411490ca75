package reconcile

import "github.com/lostfound-sync/internal/domain"

// Journal remembers which ids pushed events touched, in arrival order. A full fetch started at
// mark m is rebased against it: anything an event did after m is newer than the fetch.
type Journal struct {
	seq     uint64
	touched map[string]uint64
	deleted map[string]uint64
}

func NewJournal() *Journal {
	return &Journal{touched: make(map[string]uint64), deleted: make(map[string]uint64)}
}

// Mark returns the current position. Fetches record it before they start.
func (j *Journal) Mark() uint64 { return j.seq }

// Record notes that ev was applied.
func Record[T domain.Entity](j *Journal, ev domain.Event[T]) {
	j.seq++
	id := ev.Key()
	if ev.Kind == domain.EventDelete {
		j.deleted[id] = j.seq
		delete(j.touched, id)
		return
	}
	j.touched[id] = j.seq
	delete(j.deleted, id)
}

// Forget drops entries at or before mark. Call it only when no fetch started at or before mark
// is still in flight.
func (j *Journal) Forget(mark uint64) {
	for id, s := range j.touched {
		if s <= mark {
			delete(j.touched, id)
		}
	}
	for id, s := range j.deleted {
		if s <= mark {
			delete(j.deleted, id)
		}
	}
}

// Len is the number of ids tracked.
func (j *Journal) Len() int { return len(j.touched) + len(j.deleted) }

// Rebase replaces c with a full fetch that started at mark, keeping whatever events changed
// after mark:
//   - rows deleted after mark stay deleted even if the fetch still returned them;
//   - rows updated after mark keep their held state;
//   - rows inserted after mark that the fetch missed are kept, ahead of the fetched rows;
//   - held rows no event touched since mark and missing from the fetch are dropped.
//
// Other fetched rows are merged onto their held state with merge.
func Rebase[T domain.Entity](c, fetched []T, j *Journal, mark uint64, merge MergeFunc[T]) []T {
	held := make(map[string]T, len(c))
	for _, v := range c {
		held[v.EntityID()] = v
	}
	newer := func(id string) bool { return j != nil && j.touched[id] > mark }
	gone := func(id string) bool { return j != nil && j.deleted[id] > mark }

	seen := make(map[string]struct{}, len(fetched))
	for _, v := range fetched {
		seen[v.EntityID()] = struct{}{}
	}

	out := make([]T, 0, len(fetched)+len(c))
	for _, v := range c {
		id := v.EntityID()
		if _, ok := seen[id]; !ok && newer(id) {
			out = append(out, v)
		}
	}
	emitted := make(map[string]struct{}, len(fetched))
	for _, v := range fetched {
		id := v.EntityID()
		if _, dup := emitted[id]; dup || gone(id) {
			continue
		}
		emitted[id] = struct{}{}
		if old, ok := held[id]; ok {
			if newer(id) {
				v = old
			} else {
				v = merge(old, v)
			}
		}
		out = append(out, v)
	}
	return out
}

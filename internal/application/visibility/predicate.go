package visibility

import (
	"strings"

	"github.com/lostfound-sync/internal/domain"
)

// Predicate decides whether an item is part of the view.
type Predicate func(domain.Item) bool

func Any() Predicate { return func(domain.Item) bool { return true } }

// All is the conjunction of ps. Nil predicates are skipped.
func All(ps ...Predicate) Predicate {
	return func(it domain.Item) bool {
		for _, p := range ps {
			if p != nil && !p(it) {
				return false
			}
		}
		return true
	}
}

func Rare(want bool) Predicate {
	return func(it domain.Item) bool { return it.Rare == want }
}

func StatusIn(statuses ...string) Predicate {
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return func(it domain.Item) bool {
		_, ok := set[it.Status]
		return ok
	}
}

// Visible keeps found items still available and lost requests still searching.
func Visible() Predicate {
	return StatusIn(domain.StatusAvailable, domain.StatusSearching)
}

func CategoryIs(category string) Predicate {
	return func(it domain.Item) bool { return strings.EqualFold(it.Category, category) }
}

func OriginIs(o domain.Origin) Predicate {
	return func(it domain.Item) bool { return it.Origin == o }
}

// Query is the caller's view configuration: which items, and how to rank them.
type Query struct {
	Rare     *bool
	Statuses []string
	Category string
	Origin   domain.Origin
	Near     NearOptions
}

// Predicate builds the filter described by q.
func (q Query) Predicate() Predicate {
	var ps []Predicate
	if q.Rare != nil {
		ps = append(ps, Rare(*q.Rare))
	}
	if len(q.Statuses) > 0 {
		ps = append(ps, StatusIn(q.Statuses...))
	}
	if q.Category != "" {
		ps = append(ps, CategoryIs(q.Category))
	}
	if q.Origin != "" {
		ps = append(ps, OriginIs(q.Origin))
	}
	return All(ps...)
}

// Run merges found and lost under q.
func (q Query) Run(found, lost []domain.Item) []Entry {
	return MergeNear(found, lost, q.Predicate(), q.Near)
}

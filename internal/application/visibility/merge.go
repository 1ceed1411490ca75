// Package visibility merges found items and lost requests into one ranked list.
//
// The merge is recomputed in full whenever either source changes. Working sets are tens to low
// hundreds of rows, so there is no incremental path.
package visibility

import (
	"sort"

	"github.com/golang/geo/s2"
	"github.com/lostfound-sync/internal/domain"
)

// Entry is one row of the merged view. Distance is set only when a reference point was given and
// the item has a location.
type Entry struct {
	domain.Item
	Key        string   `json:"key"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Merge filters both sources with pred, tags origins, drops duplicate keys and orders the result
// newest first. Equal timestamps order found before lost, then by id.
func Merge(found, lost []domain.Item, pred Predicate) []Entry {
	out := collect(found, lost, pred)
	sort.SliceStable(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out
}

// NearOptions configures distance ranking.
type NearOptions struct {
	Ref *domain.Location
	// NearMe keeps only items with a location, within RadiusKm when it is positive.
	NearMe   bool
	RadiusKm float64
}

// MergeNear is Merge ranked by great-circle distance from opts.Ref. Items without a location sort
// after every located item, and are dropped entirely in near-me mode. Without a reference point
// it is Merge.
func MergeNear(found, lost []domain.Item, pred Predicate, opts NearOptions) []Entry {
	if opts.Ref == nil {
		return Merge(found, lost, pred)
	}
	all := collect(found, lost, pred)
	out := all[:0]
	for _, e := range all {
		if e.Location != nil {
			d := DistanceKm(*opts.Ref, *e.Location)
			e.DistanceKm = &d
		}
		if opts.NearMe {
			if e.DistanceKm == nil {
				continue
			}
			if opts.RadiusKm > 0 && *e.DistanceKm > opts.RadiusKm {
				continue
			}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.DistanceKm == nil && b.DistanceKm == nil:
			return newer(a, b)
		case a.DistanceKm == nil:
			return false
		case b.DistanceKm == nil:
			return true
		case *a.DistanceKm != *b.DistanceKm:
			return *a.DistanceKm < *b.DistanceKm
		default:
			return newer(a, b)
		}
	})
	return out
}

func collect(found, lost []domain.Item, pred Predicate) []Entry {
	if pred == nil {
		pred = Any()
	}
	seen := make(map[string]struct{}, len(found)+len(lost))
	out := make([]Entry, 0, len(found)+len(lost))
	add := func(items []domain.Item, origin domain.Origin) {
		for _, it := range items {
			it.Origin = origin
			if !pred(it) {
				continue
			}
			k := it.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, Entry{Item: it, Key: k})
		}
	}
	add(found, domain.OriginFound)
	add(lost, domain.OriginLost)
	return out
}

func newer(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Origin != b.Origin {
		return originRank(a.Origin) < originRank(b.Origin)
	}
	return a.ID < b.ID
}

func originRank(o domain.Origin) int {
	if o == domain.OriginFound {
		return 0
	}
	return 1
}

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0088

// DistanceKm returns the great-circle distance between a and b in kilometres.
func DistanceKm(a, b domain.Location) float64 {
	angle := s2.LatLngFromDegrees(a.Lat, a.Lon).Distance(s2.LatLngFromDegrees(b.Lat, b.Lon))
	return angle.Radians() * earthRadiusKm
}

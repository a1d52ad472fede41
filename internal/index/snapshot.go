package index

import (
	"sort"
	"strings"

	"propertylist/server/internal/models"
)

// Snapshot is the serialisable form of a Set: dimension -> key -> sorted IDs
type Snapshot map[Dimension]map[string][]string

func (s *Set) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.dims))
	for dim, buckets := range s.dims {
		out := make(map[string][]string, len(buckets))
		for key, ids := range buckets {
			out[key] = sortedIDs(ids)
		}
		snap[dim] = out
	}
	return snap
}

// Rebuild discards the set and replays every record
func (s *Set) Rebuild(records []*models.PropertyRecord) {
	s.Reset()
	for _, p := range records {
		s.Add(p)
	}
}

// Diff lists the buckets whose contents differ between two snapshots, as
// sorted "dimension=key" strings. An empty result means they agree.
func Diff(a, b Snapshot) []string {
	seen := make(map[string]struct{})
	var out []string
	mark := func(dim Dimension, key string) {
		t := Term{Dim: dim, Key: key}.String()
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	compare := func(x, y Snapshot) {
		for dim, buckets := range x {
			for key, ids := range buckets {
				other := y[dim][key]
				if len(ids) == 0 && len(other) == 0 {
					continue
				}
				if !sameIDs(ids, other) {
					mark(dim, key)
				}
			}
		}
	}
	compare(a, b)
	compare(b, a)

	sort.Strings(out)
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return strings.Join(x, "\x00") == strings.Join(y, "\x00")
}

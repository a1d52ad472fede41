// Package index holds the inverted attribute indexes over the property store.
// A Set only ever stores record IDs; the store remains the source of truth and
// a Set can always be rebuilt by replaying every record through Add.
//
// Set is not safe for concurrent use on its own. The store serializes writers
// and readers with its own lock.
package index

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"propertylist/server/internal/models"
)

type Dimension string

const (
	DimCity          Dimension = "city"
	DimType          Dimension = "type"
	DimLocation      Dimension = "location"
	DimPriceBucket   Dimension = "price_bucket"
	DimNeighbourhood Dimension = "neighbourhood"
	DimUrbanisation  Dimension = "urbanisation"
	DimZone          Dimension = "zone"
	DimCondition     Dimension = "condition"
	DimStyle         Dimension = "style"
	DimSize          Dimension = "size"
	DimAge           Dimension = "age"
	DimView          Dimension = "view"
	DimDevelopment   Dimension = "development"
	DimFeature       Dimension = "feature"

	// Transaction partitions, each keyed by city
	DimSale      Dimension = "sale"
	DimRental    Dimension = "rental"
	DimShortTerm Dimension = "short_term"
	DimLongTerm  Dimension = "long_term"
)

// PriceBucketWidth is the width of one price bucket in currency units
const PriceBucketWidth = 100000

// Term selects one bucket of one dimension
type Term struct {
	Dim Dimension
	Key string
}

func (t Term) String() string { return fmt.Sprintf("%s=%s", t.Dim, t.Key) }

type idSet map[string]struct{}

type Set struct {
	dims        map[Dimension]map[string]idSet
	terms       map[string][]Term
	lastUpdated time.Time
	now         func() time.Time
}

func NewSet(now func() time.Time) *Set {
	if now == nil {
		now = time.Now
	}
	return &Set{
		dims:  make(map[Dimension]map[string]idSet),
		terms: make(map[string][]Term),
		now:   now,
	}
}

// PriceBucket returns the bucket key for a price
func PriceBucket(price float64) string {
	return strconv.Itoa(int(price / PriceBucketWidth))
}

// TermsFor lists every bucket a record belongs to
func TermsFor(p *models.PropertyRecord) []Term {
	var terms []Term
	add := func(d Dimension, key string) {
		if key != "" {
			terms = append(terms, Term{Dim: d, Key: key})
		}
	}

	city := models.NormalizeKey(p.City)
	add(DimCity, city)
	add(DimType, string(p.PropertyType))
	add(DimLocation, p.LocationHash)
	if p.Price > 0 {
		add(DimPriceBucket, PriceBucket(p.Price))
	}
	add(DimNeighbourhood, models.NormalizeKey(p.Neighbourhood))
	add(DimUrbanisation, models.NormalizeKey(p.Urbanisation))
	add(DimZone, models.NormalizeKey(p.Zone))
	add(DimDevelopment, models.NormalizeKey(p.Development))
	add(DimCondition, string(p.Condition))
	add(DimStyle, string(p.ArchitecturalStyle))
	add(DimSize, string(p.SizeCategory))
	add(DimAge, string(p.AgeCategory))
	add(DimView, string(p.ViewType))
	for _, f := range p.Features {
		add(DimFeature, string(f))
	}

	if p.IsSale {
		add(DimSale, city)
	}
	if p.IsRental() {
		add(DimRental, city)
	}
	if p.IsShortTermRental {
		add(DimShortTerm, city)
	}
	if p.IsLongTermRental {
		add(DimLongTerm, city)
	}
	return terms
}

// Add indexes a record, replacing whatever was indexed under its ID before
func (s *Set) Add(p *models.PropertyRecord) {
	s.remove(p.ID)
	terms := TermsFor(p)
	for _, t := range terms {
		buckets, ok := s.dims[t.Dim]
		if !ok {
			buckets = make(map[string]idSet)
			s.dims[t.Dim] = buckets
		}
		ids, ok := buckets[t.Key]
		if !ok {
			ids = make(idSet)
			buckets[t.Key] = ids
		}
		ids[p.ID] = struct{}{}
	}
	s.terms[p.ID] = terms
	s.lastUpdated = s.now()
}

// Remove drops every index entry of a record
func (s *Set) Remove(id string) {
	if s.remove(id) {
		s.lastUpdated = s.now()
	}
}

func (s *Set) remove(id string) bool {
	terms, ok := s.terms[id]
	if !ok {
		return false
	}
	for _, t := range terms {
		buckets := s.dims[t.Dim]
		if ids, ok := buckets[t.Key]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(buckets, t.Key)
			}
		}
	}
	delete(s.terms, id)
	return true
}

// Reset empties the set
func (s *Set) Reset() {
	s.dims = make(map[Dimension]map[string]idSet)
	s.terms = make(map[string][]Term)
	s.lastUpdated = s.now()
}

// Lookup returns the sorted IDs in one bucket
func (s *Set) Lookup(dim Dimension, key string) []string {
	return sortedIDs(s.dims[dim][key])
}

func (s *Set) Count(dim Dimension, key string) int {
	return len(s.dims[dim][key])
}

func (s *Set) Contains(dim Dimension, key, id string) bool {
	_, ok := s.dims[dim][key][id]
	return ok
}

// Len is the number of indexed records
func (s *Set) Len() int { return len(s.terms) }

func (s *Set) LastUpdated() time.Time { return s.lastUpdated }

// Keys returns the sorted bucket keys of a dimension
func (s *Set) Keys(dim Dimension) []string {
	keys := make([]string, 0, len(s.dims[dim]))
	for k := range s.dims[dim] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Intersect returns the sorted IDs present in every term's bucket, at most
// limit of them (limit <= 0 means unbounded). The smallest bucket drives the
// scan.
func (s *Set) Intersect(limit int, terms ...Term) []string {
	if len(terms) == 0 {
		return nil
	}
	sets := make([]idSet, len(terms))
	for i, t := range terms {
		sets[i] = s.dims[t.Dim][t.Key]
		if len(sets[i]) == 0 {
			return nil
		}
	}
	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })

	var out []string
	for _, id := range sortedIDs(sets[0]) {
		match := true
		for _, other := range sets[1:] {
			if _, ok := other[id]; !ok {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func sortedIDs(ids idSet) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

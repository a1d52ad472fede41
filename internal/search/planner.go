package search

import (
	"propertylist/server/internal/index"
	"propertylist/server/internal/models"
)

// Scope is the location dimension a strategy draws its candidates from
type Scope string

const (
	ScopeUrbanisation  Scope = "urbanisation"
	ScopeNeighbourhood Scope = "neighbourhood"
	ScopeCity          Scope = "city"
)

// Strategy is one relaxation step of a comparable search. Criteria carries
// the relaxed constraints the filter pipeline applies; the query's
// urbanisation and neighbourhood are kept on it for tolerance decisions even
// when the scope is city-wide.
type Strategy struct {
	Name        string
	Scope       Scope
	MaxDistance float64
	Criteria    models.SearchCriteria
}

// Plan lists the strategies for a query, most specific first. Location-scoped
// strategies are only produced when the query names that location.
func Plan(c models.SearchCriteria) []Strategy {
	var out []Strategy
	add := func(name string, scope Scope, radius float64, relax func(*models.SearchCriteria)) {
		rc := c
		if relax != nil {
			relax(&rc)
		}
		out = append(out, Strategy{
			Name:        name,
			Scope:       scope,
			MaxDistance: radiusFor(c.MaxDistance, radius),
			Criteria:    rc,
		})
	}
	dropRooms := func(rc *models.SearchCriteria) {
		rc.Bedrooms = 0
		rc.Bathrooms = 0
	}

	hasUrb := models.NormalizeKey(c.Urbanisation) != ""
	hasNeigh := models.NormalizeKey(c.Neighbourhood) != ""

	if hasUrb {
		add("urbanisation_exact", ScopeUrbanisation, 1, nil)
	}
	if hasNeigh {
		add("neighbourhood_exact", ScopeNeighbourhood, 2, nil)
	}
	if hasUrb {
		add("urbanisation_relaxed", ScopeUrbanisation, 2, dropRooms)
	}
	if hasNeigh {
		add("neighbourhood_relaxed", ScopeNeighbourhood, 3, dropRooms)
	}
	add("city_wide", ScopeCity, 5, func(rc *models.SearchCriteria) {
		rc.Zone = ""
	})
	add("city_wide_relaxed", ScopeCity, 5, func(rc *models.SearchCriteria) {
		rc.Zone = ""
		dropRooms(rc)
		rc.MinArea = 0
		rc.MaxArea = 0
	})
	return out
}

// radiusFor keeps a caller-supplied distance limit when it is tighter than the
// strategy radius
func radiusFor(requested, radius float64) float64 {
	if requested > 0 && requested < radius {
		return requested
	}
	return radius
}

// Terms returns the index buckets a strategy intersects
func (s Strategy) Terms() []index.Term {
	c := s.Criteria
	city := models.NormalizeKey(c.City)
	if city == "" {
		return nil
	}
	terms := []index.Term{{Dim: index.DimCity, Key: city}}
	if c.PropertyType != "" {
		terms = append(terms, index.Term{Dim: index.DimType, Key: string(c.PropertyType)})
	}

	switch s.Scope {
	case ScopeUrbanisation:
		terms = append(terms, index.Term{Dim: index.DimUrbanisation, Key: models.NormalizeKey(c.Urbanisation)})
	case ScopeNeighbourhood:
		terms = append(terms, index.Term{Dim: index.DimNeighbourhood, Key: models.NormalizeKey(c.Neighbourhood)})
	}
	if zone := models.NormalizeKey(c.Zone); zone != "" {
		terms = append(terms, index.Term{Dim: index.DimZone, Key: zone})
	}

	if c.IsShortTermRental != nil && *c.IsShortTermRental {
		terms = append(terms, index.Term{Dim: index.DimShortTerm, Key: city})
	}
	if c.IsLongTermRental != nil && *c.IsLongTermRental {
		terms = append(terms, index.Term{Dim: index.DimLongTerm, Key: city})
	}
	if c.IsSale != nil && *c.IsSale {
		terms = append(terms, index.Term{Dim: index.DimSale, Key: city})
	}
	return terms
}

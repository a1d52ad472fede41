package search

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"propertylist/server/config"
	"propertylist/server/internal/models"
)

// Reason names the filter that rejected a candidate
type Reason string

const (
	ReasonSelf        Reason = "self"
	ReasonProvince    Reason = "province"
	ReasonTransaction Reason = "transaction"
	ReasonBedrooms    Reason = "bedrooms"
	ReasonBathrooms   Reason = "bathrooms"
	ReasonPrice       Reason = "price"
	ReasonArea        Reason = "area"
	ReasonDistance    Reason = "distance"
	ReasonCondition   Reason = "condition"
	ReasonStyle       Reason = "style"
	ReasonSize        Reason = "size_category"
	ReasonAge         Reason = "age_category"
	ReasonView        Reason = "view"
	ReasonDevelopment Reason = "development"
	ReasonYearBuilt   Reason = "year_built"
	ReasonListingDate Reason = "listing_date"
	ReasonFeatures    Reason = "features"
)

// Rejections counts rejected candidates per reason
type Rejections map[Reason]int

func (r Rejections) add(other Rejections) {
	for k, v := range other {
		r[k] += v
	}
}

// Candidate is a record that passed filtering. Distance is only meaningful
// when HasDistance is set.
type Candidate struct {
	Record      *models.PropertyRecord
	Distance    float64
	HasDistance bool
}

// DistanceKm is the haversine distance between two coordinates
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}) / 1000
}

// sameLocation compares two free-text location names by their index key
func sameLocation(query, candidate string) bool {
	q := models.NormalizeKey(query)
	return q != "" && q == models.NormalizeKey(candidate)
}

// AreaTolerance returns the lower-bound multiplier of the area band for a
// candidate: the band is [minArea*f, maxArea*(2-f)]. Small villas get the
// widest band, then any candidate in the query's urbanisation.
func AreaTolerance(p *models.PropertyRecord, area float64, sameUrbanisation bool) float64 {
	switch {
	case p.PropertyType == models.TypeVilla && area < 100:
		return 0.0
	case p.PropertyType == models.TypeVilla && area < 150:
		return 0.25
	case sameUrbanisation:
		return 0.5
	default:
		return 0.7
	}
}

// Filter runs the candidate pipeline for one strategy. Checks run in a fixed
// order and stop at the first failure.
func Filter(s Strategy, p *models.PropertyRecord) (Candidate, Reason, bool) {
	c := &s.Criteria
	cand := Candidate{Record: p}

	if c.ExcludeID != "" && p.ID == c.ExcludeID {
		return cand, ReasonSelf, false
	}
	if c.Province != "" && !config.SameProvince(c.Province, p.Province) {
		return cand, ReasonProvince, false
	}
	if !transactionMatches(c, p) {
		return cand, ReasonTransaction, false
	}

	sameUrb := sameLocation(c.Urbanisation, p.Urbanisation)

	if c.Bedrooms > 0 {
		tol := 1
		if sameUrb {
			tol = 2
		}
		if diff := p.Bedrooms - c.Bedrooms; diff > tol || diff < -tol {
			return cand, ReasonBedrooms, false
		}
	}
	if c.Bathrooms > 0 {
		tol := 0.5
		if sameUrb {
			tol = 1
		}
		if math.Abs(p.Bathrooms-c.Bathrooms) > tol {
			return cand, ReasonBathrooms, false
		}
	}

	if c.MinPrice > 0 && p.Price < c.MinPrice {
		return cand, ReasonPrice, false
	}
	if c.MaxPrice > 0 && p.Price > c.MaxPrice {
		return cand, ReasonPrice, false
	}

	if c.MinArea > 0 || c.MaxArea > 0 {
		// Candidates without any known area are not judged on it
		if area, _ := p.RelevantArea(); area > 0 {
			f := AreaTolerance(p, area, sameUrb)
			if c.MinArea > 0 && area < c.MinArea*f {
				return cand, ReasonArea, false
			}
			if c.MaxArea > 0 && area > c.MaxArea*(2-f) {
				return cand, ReasonArea, false
			}
		}
	}

	if c.HasCoordinates() && p.HasCoordinates() {
		cand.Distance = DistanceKm(*c.Latitude, *c.Longitude, *p.Latitude, *p.Longitude)
		cand.HasDistance = true
		if s.MaxDistance > 0 && cand.Distance > s.MaxDistance {
			return cand, ReasonDistance, false
		}
	}

	if reason, ok := optionalFilters(c, p); !ok {
		return cand, reason, false
	}
	return cand, "", true
}

func transactionMatches(c *models.SearchCriteria, p *models.PropertyRecord) bool {
	if c.IsSale != nil && *c.IsSale != p.IsSale {
		return false
	}
	if c.IsShortTermRental != nil && *c.IsShortTermRental != p.IsShortTermRental {
		return false
	}
	if c.IsLongTermRental != nil && *c.IsLongTermRental != p.IsLongTermRental {
		return false
	}
	return true
}

func optionalFilters(c *models.SearchCriteria, p *models.PropertyRecord) (Reason, bool) {
	if len(c.Conditions) > 0 && !contains(c.Conditions, p.Condition) {
		return ReasonCondition, false
	}
	if len(c.Styles) > 0 && !contains(c.Styles, p.ArchitecturalStyle) {
		return ReasonStyle, false
	}
	if len(c.SizeCategories) > 0 && !contains(c.SizeCategories, p.SizeCategory) {
		return ReasonSize, false
	}
	if len(c.AgeCategories) > 0 && !contains(c.AgeCategories, p.AgeCategory) {
		return ReasonAge, false
	}
	if len(c.ViewTypes) > 0 && !contains(c.ViewTypes, p.ViewType) {
		return ReasonView, false
	}
	if c.Development != "" && !sameLocation(c.Development, p.Development) {
		return ReasonDevelopment, false
	}

	if c.MinYearBuilt > 0 || c.MaxYearBuilt > 0 {
		if p.YearBuilt == nil {
			return ReasonYearBuilt, false
		}
		if c.MinYearBuilt > 0 && *p.YearBuilt < c.MinYearBuilt {
			return ReasonYearBuilt, false
		}
		if c.MaxYearBuilt > 0 && *p.YearBuilt > c.MaxYearBuilt {
			return ReasonYearBuilt, false
		}
	}

	if c.ListedAfter != nil && p.DateListed.Before(*c.ListedAfter) {
		return ReasonListingDate, false
	}
	if c.ListedBefore != nil && p.DateListed.After(*c.ListedBefore) {
		return ReasonListingDate, false
	}

	if len(c.Features) > 0 && !featuresOverlap(c.Features, p.Features) {
		return ReasonFeatures, false
	}
	return "", true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func featureKey(s string) string {
	return strings.ReplaceAll(models.NormalizeKey(s), "_", " ")
}

// featuresOverlap reports whether any requested feature is a case-insensitive
// substring of one of the candidate's feature codes or labels
func featuresOverlap(requested []string, have []models.Feature) bool {
	for _, r := range requested {
		rk := featureKey(r)
		if rk == "" {
			continue
		}
		for _, f := range have {
			if strings.Contains(featureKey(string(f)), rk) || strings.Contains(featureKey(f.Label()), rk) {
				return true
			}
		}
	}
	return false
}

package models

import "time"

// SearchCriteria describes the subject property a set of comparables is wanted for.
// Zero values and nil pointers mean "not constrained".
type SearchCriteria struct {
	City          string       `json:"city"`
	Province      string       `json:"province,omitempty"`
	PropertyType  PropertyType `json:"property_type,omitempty"`
	Urbanisation  string       `json:"urbanisation,omitempty"`
	Neighbourhood string       `json:"neighbourhood,omitempty"`
	Zone          string       `json:"zone,omitempty"`

	Bedrooms  int     `json:"bedrooms,omitempty"`
	Bathrooms float64 `json:"bathrooms,omitempty"`
	MinPrice  float64 `json:"min_price,omitempty"`
	MaxPrice  float64 `json:"max_price,omitempty"`
	MinArea   float64 `json:"min_area,omitempty"`
	MaxArea   float64 `json:"max_area,omitempty"`

	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	MaxDistance float64  `json:"max_distance,omitempty"`

	IsSale            *bool `json:"is_sale,omitempty"`
	IsShortTermRental *bool `json:"is_short_term_rental,omitempty"`
	IsLongTermRental  *bool `json:"is_long_term_rental,omitempty"`

	ExcludeID string `json:"exclude_id,omitempty"`

	Conditions     []Condition          `json:"conditions,omitempty"`
	Styles         []ArchitecturalStyle `json:"styles,omitempty"`
	SizeCategories []SizeCategory       `json:"size_categories,omitempty"`
	AgeCategories  []AgeCategory        `json:"age_categories,omitempty"`
	ViewTypes      []ViewType           `json:"view_types,omitempty"`
	Development    string               `json:"development,omitempty"`
	MinYearBuilt   int                  `json:"min_year_built,omitempty"`
	MaxYearBuilt   int                  `json:"max_year_built,omitempty"`
	ListedAfter    *time.Time           `json:"listed_after,omitempty"`
	ListedBefore   *time.Time           `json:"listed_before,omitempty"`
	Features       []string             `json:"features,omitempty"`

	// Keywords restricts candidates to records whose search text matches
	Keywords string `json:"keywords,omitempty"`

	MaxResults int `json:"max_results,omitempty"`
}

func (c *SearchCriteria) HasCoordinates() bool {
	if c.Latitude == nil || c.Longitude == nil {
		return false
	}
	return !(*c.Latitude == 0 && *c.Longitude == 0)
}

// Contradictory reports criteria no record can satisfy
func (c *SearchCriteria) Contradictory() bool {
	if c.MinPrice > 0 && c.MaxPrice > 0 && c.MinPrice > c.MaxPrice {
		return true
	}
	if c.MinArea > 0 && c.MaxArea > 0 && c.MinArea > c.MaxArea {
		return true
	}
	if c.MinYearBuilt > 0 && c.MaxYearBuilt > 0 && c.MinYearBuilt > c.MaxYearBuilt {
		return true
	}
	if c.ListedAfter != nil && c.ListedBefore != nil && c.ListedAfter.After(*c.ListedBefore) {
		return true
	}
	return c.MinPrice < 0 || c.MaxPrice < 0 || c.MinArea < 0 || c.MaxArea < 0
}

// Normalize resolves free-form enum values to their canonical form, the same
// way feed listings are parsed. Values that match no known alias are dropped
// from the criteria and returned. Slices are replaced, never edited in place.
func (c *SearchCriteria) Normalize() []string {
	var unknown []string
	if c.PropertyType != "" {
		if t, ok := ParsePropertyType(string(c.PropertyType)); ok {
			c.PropertyType = t
		} else {
			unknown = append(unknown, string(c.PropertyType))
			c.PropertyType = ""
		}
	}
	c.Conditions = parseAll(c.Conditions, ParseCondition, &unknown)
	c.Styles = parseAll(c.Styles, ParseStyle, &unknown)
	c.ViewTypes = parseAll(c.ViewTypes, ParseViewType, &unknown)
	return unknown
}

func parseAll[T ~string](values []T, parse func(string) (T, bool), unknown *[]string) []T {
	if len(values) == 0 {
		return values
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		if parsed, ok := parse(string(v)); ok {
			out = append(out, parsed)
		} else {
			*unknown = append(*unknown, string(v))
		}
	}
	return out
}

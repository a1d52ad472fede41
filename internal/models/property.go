package models

import (
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"

	"propertylist/server/internal/pricehistory"
)

// geohashPrecision of 6 gives cells of roughly 1.2km x 0.6km
const geohashPrecision = 6

// PropertyRecord is one listing from one feed source
type PropertyRecord struct {
	ID         string `json:"id"`
	FeedSource string `json:"feed_source"`
	Reference  string `json:"reference"`

	Address       string   `json:"address"`
	City          string   `json:"city"`
	Province      string   `json:"province"`
	Neighbourhood string   `json:"neighbourhood,omitempty"`
	Urbanisation  string   `json:"urbanisation,omitempty"`
	Zone          string   `json:"zone,omitempty"`
	Development   string   `json:"development,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`

	PropertyType       PropertyType       `json:"property_type"`
	Bedrooms           int                `json:"bedrooms"`
	Bathrooms          float64            `json:"bathrooms"`
	BuildArea          float64            `json:"build_area,omitempty"`
	PlotArea           float64            `json:"plot_area,omitempty"`
	TerraceArea        float64            `json:"terrace_area,omitempty"`
	Condition          Condition          `json:"condition,omitempty"`
	ArchitecturalStyle ArchitecturalStyle `json:"architectural_style,omitempty"`
	ViewType           ViewType           `json:"view_type,omitempty"`
	Features           []Feature          `json:"features,omitempty"`
	YearBuilt          *int               `json:"year_built,omitempty"`

	Price             float64   `json:"price"`
	IsSale            bool      `json:"is_sale"`
	IsShortTermRental bool      `json:"is_short_term_rental"`
	IsLongTermRental  bool      `json:"is_long_term_rental"`
	DateListed        time.Time `json:"date_listed"`
	LastUpdated       time.Time `json:"last_updated"`

	// Derived on every upsert
	PricePerArea float64      `json:"price_per_area"`
	LocationHash string       `json:"location_hash"`
	SizeCategory SizeCategory `json:"size_category,omitempty"`
	AgeCategory  AgeCategory  `json:"age_category,omitempty"`
	SearchText   string       `json:"search_text"`

	PriceHistory *pricehistory.History `json:"price_history"`
}

// RelevantArea applies the area-selection rule to this record
func (p *PropertyRecord) RelevantArea() (float64, AreaKind) {
	return RelevantArea(p.PropertyType, p.BuildArea, p.PlotArea, p.TerraceArea)
}

func (p *PropertyRecord) HasCoordinates() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	return !(*p.Latitude == 0 && *p.Longitude == 0)
}

// IsRental reports whether the listing is offered for any kind of rent
func (p *PropertyRecord) IsRental() bool {
	return p.IsShortTermRental || p.IsLongTermRental
}

// Derive recomputes the cached attributes from the ingested fields
func (p *PropertyRecord) Derive(now time.Time) {
	area, _ := p.RelevantArea()
	p.PricePerArea = 0
	if area > 0 && p.Price > 0 {
		p.PricePerArea = p.Price / area
	}
	p.SizeCategory = SizeCategoryFor(area)
	p.AgeCategory = AgeCategoryFor(p.YearBuilt, now.Year())
	p.LocationHash = p.locationHash()
	p.SearchText = p.searchText()
}

func (p *PropertyRecord) locationHash() string {
	if p.HasCoordinates() {
		return geohash.EncodeWithPrecision(*p.Latitude, *p.Longitude, geohashPrecision)
	}
	area := p.Urbanisation
	if area == "" {
		area = p.Neighbourhood
	}
	return NormalizeKey(p.City) + ":" + NormalizeKey(area)
}

func (p *PropertyRecord) searchText() string {
	parts := []string{
		p.Address, p.City, p.Province, p.Neighbourhood, p.Urbanisation,
		p.Zone, p.Development, string(p.PropertyType),
		string(p.Condition), string(p.ArchitecturalStyle), string(p.ViewType),
	}
	parts = append(parts, FeatureLabels(p.Features)...)
	var kept []string
	for _, part := range parts {
		if k := NormalizeKey(part); k != "" {
			kept = append(kept, k)
		}
	}
	return strings.Join(kept, " ")
}

// Clone returns a deep copy safe to hand out of the store
func (p *PropertyRecord) Clone() *PropertyRecord {
	c := *p
	if p.Latitude != nil {
		lat := *p.Latitude
		c.Latitude = &lat
	}
	if p.Longitude != nil {
		lng := *p.Longitude
		c.Longitude = &lng
	}
	if p.YearBuilt != nil {
		yb := *p.YearBuilt
		c.YearBuilt = &yb
	}
	c.Features = append([]Feature(nil), p.Features...)
	c.PriceHistory = p.PriceHistory.Clone()
	return &c
}

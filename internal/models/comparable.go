package models

import (
	"time"

	"propertylist/server/internal/pricehistory"
)

// recentHistoryPoints is how much of the price timeline a comparable carries
const recentHistoryPoints = 6

// ComparableView is the display projection of a comparable record
type ComparableView struct {
	ID            string       `json:"id"`
	FeedSource    string       `json:"feed_source"`
	Reference     string       `json:"reference"`
	Address       string       `json:"address"`
	City          string       `json:"city"`
	Province      string       `json:"province"`
	Neighbourhood string       `json:"neighbourhood,omitempty"`
	Urbanisation  string       `json:"urbanisation,omitempty"`
	Development   string       `json:"development,omitempty"`
	PropertyType  PropertyType `json:"property_type"`
	Bedrooms      int          `json:"bedrooms"`
	Bathrooms     float64      `json:"bathrooms"`
	Price         float64      `json:"price"`
	IsSale        bool         `json:"is_sale"`

	Area         float64  `json:"area"`
	AreaType     AreaKind `json:"area_type"`
	AreaLabel    string   `json:"area_label"`
	PricePerArea float64  `json:"price_per_area"`

	Condition    Condition    `json:"condition,omitempty"`
	SizeCategory SizeCategory `json:"size_category,omitempty"`
	AgeCategory  AgeCategory  `json:"age_category,omitempty"`
	Features     []string     `json:"features"`
	YearBuilt    *int         `json:"year_built,omitempty"`
	DateListed   time.Time    `json:"date_listed"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Distance  *float64 `json:"distance_km,omitempty"`

	Score           float64                   `json:"score"`
	LocationMatched bool                      `json:"location_matched"`
	PriceHistory    []pricehistory.PricePoint `json:"price_history"`
}

// NewComparableView projects a record for display. distance is nil when either
// side lacks coordinates.
func NewComparableView(p *PropertyRecord, score float64, distance *float64, locationMatched bool) ComparableView {
	area, kind := p.RelevantArea()
	v := ComparableView{
		ID:              p.ID,
		FeedSource:      p.FeedSource,
		Reference:       p.Reference,
		Address:         p.Address,
		City:            p.City,
		Province:        p.Province,
		Neighbourhood:   p.Neighbourhood,
		Urbanisation:    p.Urbanisation,
		Development:     p.Development,
		PropertyType:    p.PropertyType,
		Bedrooms:        p.Bedrooms,
		Bathrooms:       p.Bathrooms,
		Price:           p.Price,
		IsSale:          p.IsSale,
		Area:            area,
		AreaType:        kind,
		AreaLabel:       kind.Label(),
		PricePerArea:    p.PricePerArea,
		Condition:       p.Condition,
		SizeCategory:    p.SizeCategory,
		AgeCategory:     p.AgeCategory,
		Features:        FeatureLabels(p.Features),
		YearBuilt:       p.YearBuilt,
		DateListed:      p.DateListed,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Distance:        distance,
		Score:           score,
		LocationMatched: locationMatched,
		PriceHistory:    p.PriceHistory.Latest(recentHistoryPoints),
	}
	return v
}

// DatabaseStats summarises the store contents
type DatabaseStats struct {
	TotalCount       int            `json:"total_count"`
	ByFeedSource     map[string]int `json:"by_feed_source"`
	ByCity           map[string]int `json:"by_city"`
	ByPropertyType   map[string]int `json:"by_property_type"`
	IndexLastUpdated time.Time      `json:"index_last_updated"`
}

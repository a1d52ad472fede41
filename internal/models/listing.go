package models

import "time"

// Listing is a property as delivered by a feed, before enum values are
// resolved. Free-text enum fields accept codes or labels.
type Listing struct {
	FeedSource string `json:"feed_source" validate:"required"`
	Reference  string `json:"reference"`

	Address       string   `json:"address"`
	City          string   `json:"city" validate:"required"`
	Province      string   `json:"province" validate:"required"`
	Neighbourhood string   `json:"neighbourhood"`
	Urbanisation  string   `json:"urbanisation"`
	Zone          string   `json:"zone"`
	Development   string   `json:"development"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,longitude"`

	PropertyType       string   `json:"property_type" validate:"required"`
	Bedrooms           int      `json:"bedrooms" validate:"gte=0"`
	Bathrooms          float64  `json:"bathrooms" validate:"gte=0"`
	BuildArea          float64  `json:"build_area" validate:"gte=0"`
	PlotArea           float64  `json:"plot_area" validate:"gte=0"`
	TerraceArea        float64  `json:"terrace_area" validate:"gte=0"`
	Condition          string   `json:"condition"`
	ArchitecturalStyle string   `json:"architectural_style"`
	ViewType           string   `json:"view_type"`
	Features           []string `json:"features"`
	YearBuilt          *int     `json:"year_built"`

	Price             float64    `json:"price" validate:"gte=0"`
	IsSale            bool       `json:"is_sale"`
	IsShortTermRental bool       `json:"is_short_term_rental"`
	IsLongTermRental  bool       `json:"is_long_term_rental"`
	DateListed        *time.Time `json:"date_listed"`
}

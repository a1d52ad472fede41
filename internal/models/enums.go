package models

import "sort"

type PropertyType string

const (
	TypeApartment    PropertyType = "apartment"
	TypePenthouse    PropertyType = "penthouse"
	TypeStudio       PropertyType = "studio"
	TypeDuplex       PropertyType = "duplex"
	TypeTownhouse    PropertyType = "townhouse"
	TypeVilla        PropertyType = "villa"
	TypeBungalow     PropertyType = "bungalow"
	TypeCountryHouse PropertyType = "country_house"
	TypePlot         PropertyType = "plot"
	TypeCommercial   PropertyType = "commercial"
)

var propertyTypeAliases = map[string]PropertyType{
	"apartment":      TypeApartment,
	"flat":           TypeApartment,
	"piso":           TypeApartment,
	"apartamento":    TypeApartment,
	"penthouse":      TypePenthouse,
	"atico":          TypePenthouse,
	"studio":         TypeStudio,
	"estudio":        TypeStudio,
	"duplex":         TypeDuplex,
	"townhouse":      TypeTownhouse,
	"town_house":     TypeTownhouse,
	"adosado":        TypeTownhouse,
	"villa":          TypeVilla,
	"detached_villa": TypeVilla,
	"chalet":         TypeVilla,
	"bungalow":       TypeBungalow,
	"country_house":  TypeCountryHouse,
	"finca":          TypeCountryHouse,
	"cortijo":        TypeCountryHouse,
	"plot":           TypePlot,
	"land":           TypePlot,
	"parcela":        TypePlot,
	"commercial":     TypeCommercial,
	"local":          TypeCommercial,
}

// ParsePropertyType resolves a feed value to a known type
func ParsePropertyType(s string) (PropertyType, bool) {
	t, ok := propertyTypeAliases[enumKey(s)]
	return t, ok
}

type Condition string

const (
	ConditionNew             Condition = "new"
	ConditionExcellent       Condition = "excellent"
	ConditionGood            Condition = "good"
	ConditionFair            Condition = "fair"
	ConditionNeedsRenovation Condition = "needs_renovation"
)

var conditionAliases = map[string]Condition{
	"new":                 ConditionNew,
	"new_build":           ConditionNew,
	"excellent":           ConditionExcellent,
	"good":                ConditionGood,
	"fair":                ConditionFair,
	"average":             ConditionFair,
	"needs_renovation":    ConditionNeedsRenovation,
	"renovation_required": ConditionNeedsRenovation,
	"to_renovate":         ConditionNeedsRenovation,
}

func ParseCondition(s string) (Condition, bool) {
	c, ok := conditionAliases[enumKey(s)]
	return c, ok
}

type ArchitecturalStyle string

const (
	StyleModern        ArchitecturalStyle = "modern"
	StyleContemporary  ArchitecturalStyle = "contemporary"
	StyleTraditional   ArchitecturalStyle = "traditional"
	StyleAndalusian    ArchitecturalStyle = "andalusian"
	StyleMediterranean ArchitecturalStyle = "mediterranean"
	StyleRustic        ArchitecturalStyle = "rustic"
	StyleColonial      ArchitecturalStyle = "colonial"
)

var styleAliases = map[string]ArchitecturalStyle{
	"modern":        StyleModern,
	"contemporary":  StyleContemporary,
	"traditional":   StyleTraditional,
	"andalusian":    StyleAndalusian,
	"andaluz":       StyleAndalusian,
	"mediterranean": StyleMediterranean,
	"rustic":        StyleRustic,
	"colonial":      StyleColonial,
}

func ParseStyle(s string) (ArchitecturalStyle, bool) {
	st, ok := styleAliases[enumKey(s)]
	return st, ok
}

type ViewType string

const (
	ViewSea       ViewType = "sea"
	ViewMountain  ViewType = "mountain"
	ViewGolf      ViewType = "golf"
	ViewGarden    ViewType = "garden"
	ViewPool      ViewType = "pool"
	ViewCity      ViewType = "city"
	ViewPanoramic ViewType = "panoramic"
)

var viewAliases = map[string]ViewType{
	"sea":            ViewSea,
	"sea_views":      ViewSea,
	"mountain":       ViewMountain,
	"mountain_views": ViewMountain,
	"golf":           ViewGolf,
	"golf_views":     ViewGolf,
	"garden":         ViewGarden,
	"pool":           ViewPool,
	"city":           ViewCity,
	"urban":          ViewCity,
	"panoramic":      ViewPanoramic,
}

func ParseViewType(s string) (ViewType, bool) {
	v, ok := viewAliases[enumKey(s)]
	return v, ok
}

type SizeCategory string

const (
	SizeSmall  SizeCategory = "small"
	SizeMedium SizeCategory = "medium"
	SizeLarge  SizeCategory = "large"
	SizeLuxury SizeCategory = "luxury"
)

// SizeCategoryFor buckets a relevant area; zero area has no category
func SizeCategoryFor(area float64) SizeCategory {
	switch {
	case area <= 0:
		return ""
	case area < 80:
		return SizeSmall
	case area < 150:
		return SizeMedium
	case area < 300:
		return SizeLarge
	default:
		return SizeLuxury
	}
}

type AgeCategory string

const (
	AgeNew       AgeCategory = "new"
	AgeOneToFive AgeCategory = "1-5"
	AgeFiveToTen AgeCategory = "5-10"
	AgeOverTen   AgeCategory = "10+"
)

// AgeCategoryFor buckets a build year relative to the current year
func AgeCategoryFor(yearBuilt *int, currentYear int) AgeCategory {
	if yearBuilt == nil || *yearBuilt <= 0 {
		return ""
	}
	age := currentYear - *yearBuilt
	switch {
	case age <= 1:
		return AgeNew
	case age <= 5:
		return AgeOneToFive
	case age <= 10:
		return AgeFiveToTen
	default:
		return AgeOverTen
	}
}

type PriceBracket string

const (
	BracketLow    PriceBracket = "low"
	BracketMedium PriceBracket = "medium"
	BracketHigh   PriceBracket = "high"
	BracketLuxury PriceBracket = "luxury"
)

func PriceBracketFor(price float64) PriceBracket {
	switch {
	case price < 250000:
		return BracketLow
	case price < 500000:
		return BracketMedium
	case price < 1000000:
		return BracketHigh
	default:
		return BracketLuxury
	}
}

// Feature is a closed set of amenity codes
type Feature string

// featureLabels is the code to display label table
var featureLabels = map[Feature]string{
	"pool_private":       "Private Pool",
	"pool_communal":      "Communal Pool",
	"pool_heated":        "Heated Pool",
	"garden_private":     "Private Garden",
	"garden_communal":    "Communal Garden",
	"garage":             "Garage",
	"parking":            "Parking",
	"lift":               "Lift",
	"air_conditioning":   "Air Conditioning",
	"underfloor_heating": "Underfloor Heating",
	"fireplace":          "Fireplace",
	"terrace":            "Terrace",
	"solarium":           "Solarium",
	"storage_room":       "Storage Room",
	"gated_community":    "Gated Community",
	"security_24h":       "24h Security",
	"gym":                "Gym",
	"spa":                "Spa",
	"sauna":              "Sauna",
	"jacuzzi":            "Jacuzzi",
	"tennis_court":       "Tennis Court",
	"padel_court":        "Padel Court",
	"beachfront":         "Beachfront",
	"frontline_golf":     "Frontline Golf",
	"sea_views":          "Sea Views",
	"mountain_views":     "Mountain Views",
	"guest_apartment":    "Guest Apartment",
	"home_automation":    "Home Automation",
	"fitted_wardrobes":   "Fitted Wardrobes",
	"furnished":          "Furnished",
	"wine_cellar":        "Wine Cellar",
}

var featureByLabel = func() map[string]Feature {
	m := make(map[string]Feature, len(featureLabels))
	for code, label := range featureLabels {
		m[enumKey(label)] = code
	}
	return m
}()

// ParseFeature accepts a feature code or its label
func ParseFeature(s string) (Feature, bool) {
	k := enumKey(s)
	if k == "elevator" {
		return "lift", true
	}
	if _, ok := featureLabels[Feature(k)]; ok {
		return Feature(k), true
	}
	f, ok := featureByLabel[k]
	return f, ok
}

// Label returns the human-readable name of a feature code
func (f Feature) Label() string {
	if l, ok := featureLabels[f]; ok {
		return l
	}
	return string(f)
}

// FeatureLabels maps codes to labels preserving order
func FeatureLabels(features []Feature) []string {
	labels := make([]string, len(features))
	for i, f := range features {
		labels[i] = f.Label()
	}
	return labels
}

// ParseFeatures resolves feed features, returning the known codes sorted and
// de-duplicated together with the raw values that did not resolve.
func ParseFeatures(raw []string) ([]Feature, []string) {
	seen := make(map[Feature]bool)
	var known []Feature
	var unknown []string
	for _, r := range raw {
		f, ok := ParseFeature(r)
		if !ok {
			if r != "" {
				unknown = append(unknown, r)
			}
			continue
		}
		if !seen[f] {
			seen[f] = true
			known = append(known, f)
		}
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })
	return known, unknown
}

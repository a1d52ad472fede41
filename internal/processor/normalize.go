package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"propertylist/server/config"
	"propertylist/server/internal/models"
)

var ErrInvalidListing = errors.New("invalid listing")

// Normalizer turns feed listings into store records. Mandatory identity
// fields are enforced; unknown optional enum values are logged and dropped.
type Normalizer struct {
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{
		validate: validator.New(),
		logger:   logger,
	}
}

func (n *Normalizer) Normalize(l *models.Listing) (*models.PropertyRecord, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: empty listing", ErrInvalidListing)
	}
	if err := n.validate.Struct(l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}

	propertyType, ok := models.ParsePropertyType(l.PropertyType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown property type %q", ErrInvalidListing, l.PropertyType)
	}

	p := &models.PropertyRecord{
		FeedSource:        l.FeedSource,
		Reference:         strings.TrimSpace(l.Reference),
		Address:           strings.TrimSpace(l.Address),
		City:              strings.TrimSpace(l.City),
		Province:          config.CanonicalProvince(strings.TrimSpace(l.Province)),
		Neighbourhood:     strings.TrimSpace(l.Neighbourhood),
		Urbanisation:      strings.TrimSpace(l.Urbanisation),
		Zone:              strings.TrimSpace(l.Zone),
		Development:       strings.TrimSpace(l.Development),
		Latitude:          l.Latitude,
		Longitude:         l.Longitude,
		PropertyType:      propertyType,
		Bedrooms:          l.Bedrooms,
		Bathrooms:         l.Bathrooms,
		BuildArea:         l.BuildArea,
		PlotArea:          l.PlotArea,
		TerraceArea:       l.TerraceArea,
		YearBuilt:         l.YearBuilt,
		Price:             l.Price,
		IsSale:            l.IsSale,
		IsShortTermRental: l.IsShortTermRental,
		IsLongTermRental:  l.IsLongTermRental,
	}
	if l.DateListed != nil {
		p.DateListed = l.DateListed.UTC()
	}

	fields := logrus.Fields{"feed_source": l.FeedSource, "reference": l.Reference}
	if l.Condition != "" {
		if c, ok := models.ParseCondition(l.Condition); ok {
			p.Condition = c
		} else {
			n.logger.WithFields(fields).WithField("condition", l.Condition).Warn("Dropping unknown condition")
		}
	}
	if l.ArchitecturalStyle != "" {
		if s, ok := models.ParseStyle(l.ArchitecturalStyle); ok {
			p.ArchitecturalStyle = s
		} else {
			n.logger.WithFields(fields).WithField("style", l.ArchitecturalStyle).Warn("Dropping unknown architectural style")
		}
	}
	if l.ViewType != "" {
		if v, ok := models.ParseViewType(l.ViewType); ok {
			p.ViewType = v
		} else {
			n.logger.WithFields(fields).WithField("view_type", l.ViewType).Warn("Dropping unknown view type")
		}
	}

	features, unknown := models.ParseFeatures(l.Features)
	p.Features = features
	if len(unknown) > 0 {
		n.logger.WithFields(fields).WithField("features", unknown).Warn("Dropping unknown features")
	}
	return p, nil
}

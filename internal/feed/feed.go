// Package feed reads listings that the feed parsers stage in a SQLite
// database. Rows stay pending until the batch they were handed out in is
// acknowledged, so a batch the caller could not deliver is read again on the
// next poll.
package feed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"propertylist/server/internal/models"
)

// Row is one staged listing in the feed_listings table
type Row struct {
	ID         uint   `gorm:"primaryKey"`
	FeedSource string `gorm:"index:idx_feed_pending,priority:1;not null"`
	Reference  string

	Address       string
	City          string
	Province      string
	Neighbourhood string
	Urbanisation  string
	Zone          string
	Development   string
	Latitude      *float64
	Longitude     *float64

	PropertyType       string
	Bedrooms           int
	Bathrooms          float64
	BuildArea          float64
	PlotArea           float64
	TerraceArea        float64
	Condition          string
	ArchitecturalStyle string
	ViewType           string
	// Comma separated feature codes or labels
	Features  string
	YearBuilt *int

	Price             float64
	IsSale            bool
	IsShortTermRental bool
	IsLongTermRental  bool
	DateListed        *time.Time

	ImportedAt time.Time `gorm:"autoCreateTime"`
	Consumed   bool      `gorm:"index:idx_feed_pending,priority:2;default:false"`
}

func (Row) TableName() string { return "feed_listings" }

// Listing converts a staged row to the ingestion shape
func (r *Row) Listing() *models.Listing {
	var features []string
	for _, f := range strings.Split(r.Features, ",") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	return &models.Listing{
		FeedSource:         r.FeedSource,
		Reference:          r.Reference,
		Address:            r.Address,
		City:               r.City,
		Province:           r.Province,
		Neighbourhood:      r.Neighbourhood,
		Urbanisation:       r.Urbanisation,
		Zone:               r.Zone,
		Development:        r.Development,
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		PropertyType:       r.PropertyType,
		Bedrooms:           r.Bedrooms,
		Bathrooms:          r.Bathrooms,
		BuildArea:          r.BuildArea,
		PlotArea:           r.PlotArea,
		TerraceArea:        r.TerraceArea,
		Condition:          r.Condition,
		ArchitecturalStyle: r.ArchitecturalStyle,
		ViewType:           r.ViewType,
		Features:           features,
		YearBuilt:          r.YearBuilt,
		Price:              r.Price,
		IsSale:             r.IsSale,
		IsShortTermRental:  r.IsShortTermRental,
		IsLongTermRental:   r.IsLongTermRental,
		DateListed:         r.DateListed,
	}
}

type Reader struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open connects to the staging database at path and migrates the table
func Open(path string, logger *logrus.Logger) (*Reader, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open feed database: %w", err)
	}
	return NewReader(db, logger)
}

func NewReader(db *gorm.DB, logger *logrus.Logger) (*Reader, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("failed to migrate feed schema: %w", err)
	}
	return &Reader{db: db, logger: logger}, nil
}

// Batch is a set of pending rows of one source handed out by Poll
type Batch struct {
	Source   string
	IDs      []uint
	Listings []*models.Listing
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Listings)
}

// Poll returns up to limit pending rows of one source, oldest first. The rows
// stay pending until the batch is acknowledged.
func (r *Reader) Poll(ctx context.Context, source string, limit int) (*Batch, error) {
	var rows []Row
	q := r.db.WithContext(ctx).Where("feed_source = ? AND consumed = ?", source, false).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to poll feed %s: %w", source, err)
	}

	batch := &Batch{
		Source:   source,
		IDs:      make([]uint, len(rows)),
		Listings: make([]*models.Listing, len(rows)),
	}
	for i := range rows {
		batch.IDs[i] = rows[i].ID
		batch.Listings[i] = rows[i].Listing()
	}
	return batch, nil
}

// Ack marks the rows of a delivered batch consumed
func (r *Reader) Ack(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&Row{}).
		Where("id IN ?", batch.IDs).
		Update("consumed", true).Error
	if err != nil {
		return fmt.Errorf("failed to acknowledge feed %s batch: %w", batch.Source, err)
	}

	r.logger.WithFields(logrus.Fields{
		"feed_source": batch.Source,
		"count":       len(batch.IDs),
	}).Info("Consumed staged listings")
	return nil
}

// Stage inserts rows, mainly for parsers and tests sharing the process
func (r *Reader) Stage(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to stage listings: %w", err)
	}
	return nil
}

// Pending counts unconsumed rows of a source
func (r *Reader) Pending(ctx context.Context, source string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Row{}).
		Where("feed_source = ? AND consumed = ?", source, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending listings: %w", err)
	}
	return n, nil
}

func (r *Reader) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

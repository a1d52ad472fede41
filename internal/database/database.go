// Package database is the authoritative in-memory property store. Records are
// kept in a map owned by the Database, the attribute indexes hold IDs only,
// and one RWMutex covers both so readers never see a half-applied upsert.
// Snapshots are written to disk in the background.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"propertylist/server/internal/index"
	"propertylist/server/internal/models"
	"propertylist/server/internal/pricehistory"
	"propertylist/server/internal/search"
)

var (
	ErrNotFound      = errors.New("property not found")
	ErrInvalidRecord = errors.New("invalid property record")
	ErrClosed        = errors.New("database is closed")
)

type Options struct {
	DataDir       string
	FlushBatch    int
	FlushInterval time.Duration
	GzipLevel     int
	Search        search.Options

	// Now is the ingestion clock; defaults to time.Now
	Now func() time.Time
}

type Database struct {
	mu      sync.RWMutex
	records map[string]*models.PropertyRecord
	index   *index.Set
	text    *index.TextIndex
	closed  bool

	history *pricehistory.Manager
	engine  *search.Engine
	files   *snapshotFiles // nil keeps the store in memory only
	flusher *flusher
	saveMu  sync.Mutex

	now    func() time.Time
	logger *logrus.Logger
}

// NewDatabase loads the snapshot in DataDir, if any, and starts the
// background flusher. A missing or unreadable snapshot leaves an empty store.
func NewDatabase(opts Options, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GzipLevel == 0 {
		opts.GzipLevel = 6
	}

	text, err := index.NewTextIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	d := &Database{
		records: make(map[string]*models.PropertyRecord),
		index:   index.NewSet(opts.Now),
		text:    text,
		history: pricehistory.NewManager(opts.Now),
		engine:  search.NewEngine(opts.Search, logger),
		now:     opts.Now,
		logger:  logger,
	}
	if opts.DataDir != "" {
		d.files = &snapshotFiles{dir: opts.DataDir, level: opts.GzipLevel, logger: logger}
	}
	d.flusher = newFlusher(opts.FlushBatch, opts.FlushInterval, d.Flush, logger)

	if err := d.load(); err != nil {
		text.Close()
		return nil, err
	}
	d.flusher.start()
	return d, nil
}

// Upsert stores a listing from feedSource and returns its ID. An existing
// record keeps its price history, gaining an observation when the price
// changed; every other field is replaced by the ingested values.
func (d *Database) Upsert(record *models.PropertyRecord, feedSource string) (string, error) {
	if record == nil || feedSource == "" {
		return "", ErrInvalidRecord
	}

	rec := record.Clone()
	rec.FeedSource = feedSource
	rec.ID = RecordID(feedSource, rec)
	now := d.now()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrClosed
	}

	existing, ok := d.records[rec.ID]
	if ok {
		rec.PriceHistory = existing.PriceHistory
		if rec.Price > 0 && rec.Price != existing.Price {
			rec.PriceHistory = d.history.AddObservation(rec.PriceHistory, rec.Price, now, feedSource)
		}
		if rec.DateListed.IsZero() {
			rec.DateListed = existing.DateListed
		}
	} else {
		rec.PriceHistory = pricehistory.New()
		if rec.Price > 0 {
			rec.PriceHistory = d.history.AddObservation(rec.PriceHistory, rec.Price, now, feedSource)
		}
		if rec.DateListed.IsZero() {
			rec.DateListed = now
		}
	}
	rec.LastUpdated = now
	rec.Derive(now)

	d.records[rec.ID] = rec
	d.index.Add(rec)
	textErr := d.text.Index(rec)
	d.mu.Unlock()

	if textErr != nil {
		d.logger.WithFields(logrus.Fields{
			"id":    rec.ID,
			"error": textErr,
		}).Warn("Keyword index update failed")
	}
	d.flusher.changed()

	d.logger.WithFields(logrus.Fields{
		"id":          rec.ID,
		"feed_source": feedSource,
		"city":        rec.City,
		"new":         !ok,
	}).Debug("Upserted property")
	return rec.ID, nil
}

// Get returns a copy of a record
func (d *Database) Get(id string) (*models.PropertyRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// RemoveStaleRecords deletes the records of feedSource last seen before
// cutoff and returns how many were removed
func (d *Database) RemoveStaleRecords(feedSource string, cutoff time.Time) int {
	d.mu.Lock()
	var stale []string
	for id, p := range d.records {
		if p.FeedSource == feedSource && p.LastUpdated.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		d.index.Remove(id)
		if err := d.text.Delete(id); err != nil {
			d.logger.WithFields(logrus.Fields{
				"id":    id,
				"error": err,
			}).Warn("Keyword index removal failed")
		}
		delete(d.records, id)
	}
	d.mu.Unlock()

	if len(stale) > 0 {
		d.flusher.changed()
		d.logger.WithFields(logrus.Fields{
			"feed_source": feedSource,
			"cutoff":      cutoff,
			"removed":     len(stale),
		}).Info("Removed stale properties")
	}
	return len(stale)
}

func (d *Database) Stats() models.DatabaseStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := models.DatabaseStats{
		TotalCount:       len(d.records),
		ByFeedSource:     make(map[string]int),
		ByCity:           make(map[string]int),
		ByPropertyType:   make(map[string]int),
		IndexLastUpdated: d.index.LastUpdated(),
	}
	for _, p := range d.records {
		stats.ByFeedSource[p.FeedSource]++
		stats.ByCity[p.City]++
		stats.ByPropertyType[string(p.PropertyType)]++
	}
	return stats
}

// FindComparables runs a comparable search under the read lock
func (d *Database) FindComparables(ctx context.Context, criteria models.SearchCriteria) (*search.Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	res, err := d.engine.Find(ctx, storeView{d}, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to find comparables: %w", err)
	}
	return res, nil
}

// GetPriceTrend returns nil without error when the record has fewer than two
// price points
func (d *Database) GetPriceTrend(id string) (*pricehistory.Trend, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return pricehistory.ComputeTrend(p.PriceHistory), nil
}

// GetPriceHistory returns the reconstructed chronological price series
func (d *Database) GetPriceHistory(id string) ([]pricehistory.PricePoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	tl := p.PriceHistory.Timeline()
	if tl == nil {
		tl = []pricehistory.PricePoint{}
	}
	return tl, nil
}

// Rebuild recomputes every index from the records
func (d *Database) Rebuild() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rebuildLocked()
}

func (d *Database) rebuildLocked() error {
	records := d.sortedRecordsLocked()
	d.index.Rebuild(records)

	text, err := index.NewTextIndex()
	if err != nil {
		return fmt.Errorf("failed to rebuild keyword index: %w", err)
	}
	for _, p := range records {
		if err := text.Index(p); err != nil {
			text.Close()
			return fmt.Errorf("failed to rebuild keyword index: %w", err)
		}
	}
	old := d.text
	d.text = text
	if old != nil {
		old.Close()
	}
	return nil
}

// VerifyIndex compares the live indexes with a fresh rebuild and replaces
// them when they differ. It returns the buckets that were out of sync.
func (d *Database) VerifyIndex() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := index.NewSet(d.now)
	fresh.Rebuild(d.sortedRecordsLocked())
	diff := index.Diff(d.index.Snapshot(), fresh.Snapshot())
	if len(diff) == 0 {
		return nil, nil
	}

	d.logger.WithFields(logrus.Fields{
		"buckets": len(diff),
	}).Warn("Index out of sync with store, rebuilding")
	if err := d.rebuildLocked(); err != nil {
		return diff, err
	}
	return diff, nil
}

func (d *Database) sortedRecordsLocked() []*models.PropertyRecord {
	records := make([]*models.PropertyRecord, 0, len(d.records))
	for _, p := range d.records {
		records = append(records, p)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// Flush writes both snapshots synchronously
func (d *Database) Flush() error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	if d.files == nil {
		d.flusher.clean()
		return nil
	}

	d.mu.RLock()
	d.flusher.clean()
	props, err := json.Marshal(d.sortedRecordsLocked())
	if err != nil {
		d.mu.RUnlock()
		d.flusher.restore()
		return fmt.Errorf("failed to encode properties snapshot: %w", err)
	}
	idx, err := json.Marshal(indexSnapshot{
		LastUpdated: d.index.LastUpdated(),
		Dimensions:  d.index.Snapshot(),
	})
	count := len(d.records)
	d.mu.RUnlock()
	if err != nil {
		d.flusher.restore()
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}

	if err := d.files.write(propertiesFile, props); err != nil {
		d.flusher.restore()
		return fmt.Errorf("failed to save properties: %w", err)
	}
	if err := d.files.write(indexFile, idx); err != nil {
		d.flusher.restore()
		return fmt.Errorf("failed to save index: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"path":       d.files.dir,
		"properties": count,
	}).Debug("Saved snapshots")
	return nil
}

// Close stops the flusher and writes a final snapshot
func (d *Database) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.flusher.stop()
	err := d.Flush()

	d.mu.Lock()
	if cerr := d.text.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close keyword index: %w", cerr)
	}
	d.mu.Unlock()
	return err
}

// load restores the store from disk. Only an index rebuild failure is fatal.
func (d *Database) load() error {
	if d.files == nil {
		return nil
	}
	data, err := d.files.read(propertiesFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.logger.WithField("path", d.files.dir).Info("No snapshot found, starting with an empty store")
		} else {
			d.logger.WithFields(logrus.Fields{
				"path":  d.files.dir,
				"error": err,
			}).Error("Failed to read snapshot, starting with an empty store")
		}
		return nil
	}

	records, migrated, err := decodeRecords(data, d.history)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"path":  d.files.dir,
			"error": err,
		}).Error("Corrupt snapshot, starting with an empty store")
		return nil
	}

	now := d.now()
	for _, p := range records {
		if p.ID == "" {
			continue
		}
		p.Derive(now)
		d.records[p.ID] = p
	}
	if err := d.rebuildLocked(); err != nil {
		return fmt.Errorf("failed to index loaded snapshot: %w", err)
	}
	d.compareIndexSnapshot()

	d.logger.WithFields(logrus.Fields{
		"path":       d.files.dir,
		"properties": len(d.records),
		"migrated":   migrated,
	}).Info("Loaded snapshot")

	if migrated > 0 {
		if err := d.Flush(); err != nil {
			d.logger.WithError(err).Error("Failed to save migrated snapshot")
		}
	}
	return nil
}

// compareIndexSnapshot checks the persisted index against the rebuilt one.
// The rebuild is always kept; a mismatch is only reported.
func (d *Database) compareIndexSnapshot() {
	data, err := d.files.read(indexFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.WithError(err).Warn("Failed to read index snapshot, using rebuilt index")
		}
		return
	}
	var snap indexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		d.logger.WithError(err).Warn("Corrupt index snapshot, using rebuilt index")
		return
	}
	if diff := index.Diff(snap.Dimensions, d.index.Snapshot()); len(diff) > 0 {
		d.logger.WithFields(logrus.Fields{
			"buckets": len(diff),
		}).Warn("Index snapshot differs from store, using rebuilt index")
	}
}

// storeView exposes the locked store to the search engine
type storeView struct {
	d *Database
}

func (v storeView) Record(id string) (*models.PropertyRecord, bool) {
	p, ok := v.d.records[id]
	return p, ok
}

func (v storeView) Intersect(limit int, terms ...index.Term) []string {
	return v.d.index.Intersect(limit, terms...)
}

func (v storeView) MatchKeywords(keywords string) (map[string]struct{}, error) {
	return v.d.text.Match(keywords, 0)
}

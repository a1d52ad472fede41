package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"propertylist/server/internal/index"
	"propertylist/server/internal/models"
	"propertylist/server/internal/pricehistory"
)

const (
	propertiesFile = "properties.json"
	indexFile      = "index.json"
	gzipSuffix     = ".gz"
)

// snapshotFiles reads and writes the snapshot artifacts in one directory.
// Writes go to a temporary file that is renamed into place.
type snapshotFiles struct {
	dir    string
	level  int
	logger *logrus.Logger
}

type indexSnapshot struct {
	LastUpdated time.Time      `json:"last_updated"`
	Dimensions  index.Snapshot `json:"dimensions"`
}

// write stores data gzip-compressed, or as plain JSON when compression or the
// compressed write fails. Whichever variant is not written is removed so a
// reader never picks up a stale copy.
func (s *snapshotFiles) write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	plain := filepath.Join(s.dir, name)
	compressed := plain + gzipSuffix

	buf, err := s.compress(data)
	if err == nil {
		err = writeAtomic(compressed, buf)
	}
	if err == nil {
		removeIfExists(plain)
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"path":  compressed,
		"error": err,
	}).Error("Failed to write compressed snapshot, writing uncompressed copy")

	if err := writeAtomic(plain, data); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", plain, err)
	}
	removeIfExists(compressed)
	return nil
}

func (s *snapshotFiles) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, s.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// read returns the snapshot contents, preferring the compressed file. It
// returns an error wrapping os.ErrNotExist when neither file exists.
func (s *snapshotFiles) read(name string) ([]byte, error) {
	plain := filepath.Join(s.dir, name)
	compressed := plain + gzipSuffix

	data, gzErr := readGzip(compressed)
	if gzErr == nil {
		return data, nil
	}
	if !errors.Is(gzErr, os.ErrNotExist) {
		s.logger.WithFields(logrus.Fields{
			"path":  compressed,
			"error": gzErr,
		}).Warn("Failed to read compressed snapshot, trying uncompressed copy")
	}

	data, err := os.ReadFile(plain)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !errors.Is(gzErr, os.ErrNotExist) {
			return nil, gzErr
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", plain, err)
	}
	return data, nil
}

func readGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithField("path", path).WithError(err).Warn("Failed to remove stale snapshot")
	}
}

// storedRecord reads a snapshot entry while leaving price_history raw, since
// older snapshots stored it as a flat list of observations
type storedRecord struct {
	models.PropertyRecord
	PriceHistory json.RawMessage `json:"price_history"`
}

type legacyObservation struct {
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Source string  `json:"source"`
}

var legacyDateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseLegacyDate(s string) (time.Time, error) {
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// decodeRecords parses a properties snapshot. Legacy price histories are
// replayed into the tiered form; the second return value counts them.
func decodeRecords(data []byte, history *pricehistory.Manager) ([]*models.PropertyRecord, int, error) {
	var raw []storedRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse properties snapshot: %w", err)
	}

	migrated := 0
	records := make([]*models.PropertyRecord, 0, len(raw))
	for i := range raw {
		p := raw[i].PropertyRecord
		trimmed := bytes.TrimSpace(raw[i].PriceHistory)

		switch {
		case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
			p.PriceHistory = pricehistory.New()
		case trimmed[0] == '[':
			var legacy []legacyObservation
			if err := json.Unmarshal(trimmed, &legacy); err != nil {
				return nil, 0, fmt.Errorf("failed to parse legacy price history of %s: %w", p.ID, err)
			}
			points := make([]pricehistory.PricePoint, 0, len(legacy))
			for _, o := range legacy {
				date, err := parseLegacyDate(o.Date)
				if err != nil {
					return nil, 0, fmt.Errorf("failed to parse legacy price history of %s: %w", p.ID, err)
				}
				source := o.Source
				if source == "" {
					source = p.FeedSource
				}
				points = append(points, pricehistory.PricePoint{Date: date, Price: o.Price, Source: source})
			}
			p.PriceHistory = history.Migrate(points)
			migrated++
		default:
			h := pricehistory.New()
			if err := json.Unmarshal(trimmed, h); err != nil {
				return nil, 0, fmt.Errorf("failed to parse price history of %s: %w", p.ID, err)
			}
			p.PriceHistory = h
		}
		records = append(records, &p)
	}
	return records, migrated, nil
}

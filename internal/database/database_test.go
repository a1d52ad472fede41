package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertylist/server/internal/index"
	"propertylist/server/internal/models"
	"propertylist/server/internal/pricehistory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestDatabase(t *testing.T, dir string, clock *testClock) *Database {
	t.Helper()
	d, err := NewDatabase(Options{
		DataDir:    dir,
		FlushBatch: 1000,
		Now:        clock.Now,
	}, nil)
	require.NoError(t, err)
	return d
}

func listing(ref, urbanisation string, area, price float64) *models.PropertyRecord {
	return &models.PropertyRecord{
		Reference:    ref,
		Address:      "Calle " + ref,
		City:         "Marbella",
		Province:     "Málaga",
		Urbanisation: urbanisation,
		PropertyType: models.TypeVilla,
		Bedrooms:     3,
		Bathrooms:    2,
		BuildArea:    area,
		Price:        price,
		IsSale:       true,
	}
}

func TestUpsert_DeterministicID(t *testing.T) {
	clock := newTestClock(day(2024, time.May, 1))
	d := newTestDatabase(t, "", clock)
	defer d.Close()

	id1, err := d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	id2, err := d.Upsert(listing("R-1", "X", 210, 790000), "feed-a")
	require.NoError(t, err)
	id3, err := d.Upsert(listing("R-1", "X", 200, 800000), "feed-b")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, 2, d.Stats().TotalCount)

	// Without a reference the address identifies the listing
	a := listing("", "X", 200, 800000)
	b := listing("", "X", 200, 800000)
	b.Address = "Calle Otra"
	assert.NotEqual(t, RecordID("feed-a", a), RecordID("feed-a", b))
	assert.Equal(t, RecordID("feed-a", a), RecordID("FEED-A ", a))
}

func TestUpsert_ReplacesAttributes(t *testing.T) {
	clock := newTestClock(day(2024, time.May, 1))
	d := newTestDatabase(t, "", clock)
	defer d.Close()

	id, err := d.Upsert(listing("R-1", "Old Urb", 200, 800000), "feed-a")
	require.NoError(t, err)

	clock.Set(day(2024, time.May, 2))
	updated := listing("R-1", "New Urb", 250, 800000)
	_, err = d.Upsert(updated, "feed-a")
	require.NoError(t, err)

	got, err := d.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "New Urb", got.Urbanisation)
	assert.Equal(t, 250.0, got.BuildArea)
	assert.InDelta(t, 3200.0, got.PricePerArea, 0.0001)
	assert.Equal(t, day(2024, time.May, 2), got.LastUpdated)
	assert.Equal(t, day(2024, time.May, 1), got.DateListed)

	d.mu.RLock()
	assert.Empty(t, d.index.Lookup(index.DimUrbanisation, "old urb"))
	assert.Equal(t, []string{id}, d.index.Lookup(index.DimUrbanisation, "new urb"))
	d.mu.RUnlock()

	// The caller's record is not retained
	updated.City = "Changed"
	got, err = d.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Marbella", got.City)
}

func TestUpsert_PriceHistory(t *testing.T) {
	clock := newTestClock(day(2023, time.January, 1))
	d := newTestDatabase(t, "", clock)
	defer d.Close()

	id, err := d.Upsert(listing("R-1", "X", 200, 100000), "feed-a")
	require.NoError(t, err)

	clock.Set(day(2023, time.February, 1))
	_, err = d.Upsert(listing("R-1", "X", 200, 115000), "feed-a")
	require.NoError(t, err)

	clock.Set(day(2023, time.March, 1))
	_, err = d.Upsert(listing("R-1", "X", 200, 116000), "feed-a")
	require.NoError(t, err)

	// Unchanged price is not a new observation
	clock.Set(day(2023, time.March, 10))
	_, err = d.Upsert(listing("R-1", "X", 200, 116000), "feed-a")
	require.NoError(t, err)

	got, err := d.Get(id)
	require.NoError(t, err)
	require.Len(t, got.PriceHistory.MajorChanges, 1)
	assert.Equal(t, 115000.0, got.PriceHistory.MajorChanges[0].Price)
	assert.Equal(t, 3, got.PriceHistory.TotalObservationCount)

	points, err := d.GetPriceHistory(id)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, day(2023, time.January, 1), points[0].Date)

	trend, err := d.GetPriceTrend(id)
	require.NoError(t, err)
	require.NotNil(t, trend)
	assert.Equal(t, pricehistory.DirectionUp, trend.Direction)
	assert.Greater(t, trend.CombinedTrendPct, 0.0)
}

func TestUpsert_ZeroPriceHasNoHistory(t *testing.T) {
	clock := newTestClock(day(2024, time.May, 1))
	d := newTestDatabase(t, "", clock)
	defer d.Close()

	id, err := d.Upsert(listing("R-1", "X", 200, 0), "feed-a")
	require.NoError(t, err)

	points, err := d.GetPriceHistory(id)
	require.NoError(t, err)
	assert.Empty(t, points)

	trend, err := d.GetPriceTrend(id)
	require.NoError(t, err)
	assert.Nil(t, trend)
}

func TestUpsert_Invalid(t *testing.T) {
	d := newTestDatabase(t, "", newTestClock(day(2024, time.May, 1)))
	defer d.Close()

	_, err := d.Upsert(nil, "feed-a")
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = d.Upsert(listing("R-1", "X", 200, 1), "")
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestNotFound(t *testing.T) {
	d := newTestDatabase(t, "", newTestClock(day(2024, time.May, 1)))
	defer d.Close()

	_, err := d.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.GetPriceTrend("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.GetPriceHistory("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveStaleRecords(t *testing.T) {
	clock := newTestClock(day(2024, time.May, 1))
	d := newTestDatabase(t, "", clock)
	defer d.Close()

	stale, err := d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	_, err = d.Upsert(listing("R-2", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	other, err := d.Upsert(listing("R-3", "X", 200, 800000), "feed-b")
	require.NoError(t, err)

	clock.Set(day(2024, time.May, 10))
	_, err = d.Upsert(listing("R-2", "X", 200, 800000), "feed-a")
	require.NoError(t, err)

	removed := d.RemoveStaleRecords("feed-a", day(2024, time.May, 5))
	assert.Equal(t, 1, removed)

	_, err = d.Get(stale)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.Get(other)
	assert.NoError(t, err)

	d.mu.RLock()
	assert.False(t, d.index.Contains(index.DimCity, "marbella", stale))
	d.mu.RUnlock()

	assert.Equal(t, 0, d.RemoveStaleRecords("feed-a", day(2024, time.May, 5)))
}

func TestStats(t *testing.T) {
	clock := newTestClock(day(2024, time.May, 1))
	d := newTestDatabase(t, "", clock)
	defer d.Close()

	_, err := d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	apt := listing("R-2", "X", 90, 300000)
	apt.PropertyType = models.TypeApartment
	apt.City = "Estepona"
	_, err = d.Upsert(apt, "feed-b")
	require.NoError(t, err)

	stats := d.Stats()
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, map[string]int{"feed-a": 1, "feed-b": 1}, stats.ByFeedSource)
	assert.Equal(t, map[string]int{"Marbella": 1, "Estepona": 1}, stats.ByCity)
	assert.Equal(t, map[string]int{"villa": 1, "apartment": 1}, stats.ByPropertyType)
	assert.Equal(t, day(2024, time.May, 1), stats.IndexLastUpdated)
}

func TestFindComparables_ThreeVillas(t *testing.T) {
	d := newTestDatabase(t, "", newTestClock(day(2024, time.May, 1)))
	defer d.Close()

	for i, v := range []struct{ area, price float64 }{{90, 300000}, {140, 500000}, {300, 1200000}} {
		_, err := d.Upsert(listing(fmt.Sprintf("V-%d", i), "Urbanisation X", v.area, v.price), "feed-a")
		require.NoError(t, err)
	}

	res, err := d.FindComparables(context.Background(), models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Urbanisation: "Urbanisation X",
		Bedrooms:     3,
		MaxResults:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFound)
	require.Len(t, res.Comparables, 2)
	for _, c := range res.Comparables {
		assert.True(t, c.LocationMatched)
		require.Len(t, c.PriceHistory, 1)
	}
}

func seedAndQuery(t *testing.T, d *Database) []byte {
	t.Helper()
	res, err := d.FindComparables(context.Background(), models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Urbanisation: "Nueva Andalucía",
		Bedrooms:     3,
		MinArea:      150,
		MaxArea:      300,
	})
	require.NoError(t, err)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	return out
}

func TestPersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	clock := newTestClock(day(2024, time.May, 1))
	d := newTestDatabase(t, dir, clock)

	for i := 0; i < 12; i++ {
		urb := "Nueva Andalucía"
		if i%3 == 0 {
			urb = "Aloha"
		}
		p := listing(fmt.Sprintf("R-%02d", i), urb, float64(150+i*15), float64(600000+i*40000))
		p.Latitude = ptr(36.49 + float64(i)*0.002)
		p.Longitude = ptr(-4.95)
		p.Features = []models.Feature{"pool_private"}
		_, err := d.Upsert(p, "feed-a")
		require.NoError(t, err)
	}
	clock.Set(day(2024, time.May, 20))
	_, err := d.Upsert(listing("R-01", "Nueva Andalucía", 165, 700000), "feed-a")
	require.NoError(t, err)

	before := seedAndQuery(t, d)
	require.NoError(t, d.Flush())
	require.NoError(t, d.Close())

	assert.FileExists(t, filepath.Join(dir, "properties.json.gz"))
	assert.FileExists(t, filepath.Join(dir, "index.json.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "properties.json"))

	reopened := newTestDatabase(t, dir, clock)
	defer reopened.Close()

	assert.Equal(t, 12, reopened.Stats().TotalCount)
	assert.JSONEq(t, string(before), string(seedAndQuery(t, reopened)))
	assert.Equal(t, before, seedAndQuery(t, reopened))
}

func TestPersistence_UncompressedFallback(t *testing.T) {
	dir := t.TempDir()
	clock := newTestClock(day(2024, time.May, 1))

	stale := filepath.Join(dir, "properties.json.gz")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	d, err := NewDatabase(Options{DataDir: dir, GzipLevel: 42, Now: clock.Now}, nil)
	require.NoError(t, err)
	_, err = d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	assert.FileExists(t, filepath.Join(dir, "properties.json"))
	assert.NoFileExists(t, stale)

	reopened := newTestDatabase(t, dir, clock)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Stats().TotalCount)
}

func TestPersistence_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "properties.json.gz"), []byte("not gzip at all"), 0o644))

	d := newTestDatabase(t, dir, newTestClock(day(2024, time.May, 1)))
	defer d.Close()

	assert.Equal(t, 0, d.Stats().TotalCount)
	_, err := d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().TotalCount)
}

func TestPersistence_LegacyPriceHistory(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{
		"id":            "legacy-1",
		"feed_source":   "feed-a",
		"reference":     "L-1",
		"city":          "Marbella",
		"province":      "MA",
		"property_type": "villa",
		"bedrooms":      4,
		"build_area":    250,
		"price":         116000,
		"is_sale":       true,
		"price_history": [
			{"date": "2023-02-01", "price": 115000},
			{"date": "2023-01-01", "price": 100000},
			{"date": "2023-03-01T00:00:00Z", "price": 116000}
		]
	}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "properties.json"), []byte(legacy), 0o644))

	d := newTestDatabase(t, dir, newTestClock(day(2023, time.March, 15)))
	defer d.Close()

	got, err := d.Get("legacy-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.PriceHistory.TotalObservationCount)
	require.Len(t, got.PriceHistory.MajorChanges, 1)
	assert.Equal(t, 115000.0, got.PriceHistory.MajorChanges[0].Price)
	assert.Equal(t, "feed-a", got.PriceHistory.Recent[0].Source)

	// Migration is saved straight away in the tiered form
	data, err := d.files.read(propertiesFile)
	require.NoError(t, err)
	var saved []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Len(t, saved, 1)
	assert.Contains(t, string(saved[0]["price_history"]), `"recent"`)
	assert.NoFileExists(t, filepath.Join(dir, "properties.json"))
}

func TestVerifyIndex(t *testing.T) {
	d := newTestDatabase(t, "", newTestClock(day(2024, time.May, 1)))
	defer d.Close()

	id, err := d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)

	diff, err := d.VerifyIndex()
	require.NoError(t, err)
	assert.Empty(t, diff)

	d.mu.Lock()
	d.index.Remove(id)
	d.mu.Unlock()

	diff, err = d.VerifyIndex()
	require.NoError(t, err)
	assert.NotEmpty(t, diff)

	res, err := d.FindComparables(context.Background(), models.SearchCriteria{City: "Marbella"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
}

func TestFlusher_BatchTriggersSave(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDatabase(Options{
		DataDir:    dir,
		FlushBatch: 2,
		Now:        newTestClock(day(2024, time.May, 1)).Now,
	}, nil)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Upsert(listing("R-1", "X", 200, 800000), "feed-a")
	require.NoError(t, err)
	_, err = d.Upsert(listing("R-2", "X", 200, 800000), "feed-a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "properties.json.gz"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentUpsertAndSearch(t *testing.T) {
	d := newTestDatabase(t, "", newTestClock(day(2024, time.May, 1)))
	defer d.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := d.Upsert(listing(fmt.Sprintf("W%d-%d", w, i), "X", 200, float64(500000+i)), "feed-a")
				assert.NoError(t, err)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := d.FindComparables(context.Background(), models.SearchCriteria{City: "Marbella", Urbanisation: "X"})
				assert.NoError(t, err)
				d.Stats()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, d.Stats().TotalCount)
}

func ptr[T any](v T) *T { return &v }

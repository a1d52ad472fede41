package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertylist/server/internal/index"
	"propertylist/server/internal/models"
)

var testNow = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

type memorySource struct {
	records map[string]*models.PropertyRecord
	set     *index.Set
	text    *index.TextIndex
}

func newMemorySource(t *testing.T, records ...*models.PropertyRecord) *memorySource {
	t.Helper()
	text, err := index.NewTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { text.Close() })

	src := &memorySource{
		records: make(map[string]*models.PropertyRecord),
		set:     index.NewSet(nil),
		text:    text,
	}
	for _, p := range records {
		p.Derive(testNow)
		src.records[p.ID] = p
		src.set.Add(p)
		require.NoError(t, text.Index(p))
	}
	return src
}

func (m *memorySource) Record(id string) (*models.PropertyRecord, bool) {
	p, ok := m.records[id]
	return p, ok
}

func (m *memorySource) Intersect(limit int, terms ...index.Term) []string {
	return m.set.Intersect(limit, terms...)
}

func (m *memorySource) MatchKeywords(keywords string) (map[string]struct{}, error) {
	return m.text.Match(keywords, 0)
}

func villa(id, urbanisation string, bedrooms int, area, price float64) *models.PropertyRecord {
	return &models.PropertyRecord{
		ID:           id,
		City:         "Marbella",
		Province:     "Málaga",
		Urbanisation: urbanisation,
		PropertyType: models.TypeVilla,
		Bedrooms:     bedrooms,
		Bathrooms:    2,
		BuildArea:    area,
		Price:        price,
		IsSale:       true,
	}
}

func ptr[T any](v T) *T { return &v }

func TestFind_ThreeVillaScenario(t *testing.T) {
	src := newMemorySource(t,
		villa("v1", "Urbanisation X", 3, 90, 300000),
		villa("v2", "Urbanisation X", 3, 140, 500000),
		villa("v3", "Urbanisation X", 3, 300, 1200000),
	)
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
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
		assert.Equal(t, "Urbanisation X", c.Urbanisation)
		assert.True(t, c.LocationMatched)
		// base + urbanisation + type + exact bedrooms
		assert.InDelta(t, 9.5, c.Score, 0.0001)
	}
	assert.Equal(t, "urbanisation_exact", res.Strategies[0].Name)
	assert.Equal(t, 3, res.Strategies[0].Added)
}

func TestFind_LocationPriority(t *testing.T) {
	var records []*models.PropertyRecord
	for i := 0; i < 5; i++ {
		records = append(records, villa(fmt.Sprintf("in-%d", i), "Sierra Blanca", 4, 250, 2000000))
	}
	for i := 0; i < 10; i++ {
		// Better fits on every soft criterion, but elsewhere in the city
		records = append(records, villa(fmt.Sprintf("out-%02d", i), "Nagüeles", 3, 200, 1500000))
	}
	src := newMemorySource(t, records...)
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Urbanisation: "sierra blanca",
		Bedrooms:     3,
		MinPrice:     1000000,
		MaxPrice:     2000000,
		MaxResults:   4,
	})
	require.NoError(t, err)

	assert.Equal(t, 15, res.TotalFound)
	require.Len(t, res.Comparables, 4)
	for _, c := range res.Comparables {
		assert.Equal(t, "Sierra Blanca", c.Urbanisation)
	}

	// Fewer matches than slots: all matches first, then the best of the rest
	res, err = e.Find(context.Background(), src, models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Urbanisation: "Sierra Blanca",
		MaxResults:   8,
	})
	require.NoError(t, err)
	require.Len(t, res.Comparables, 8)
	for i, c := range res.Comparables {
		assert.Equal(t, i < 5, c.LocationMatched, "position %d", i)
	}
}

func TestFind_UrbanisationBeforeNeighbourhood(t *testing.T) {
	neighbour := villa("n1", "", 3, 200, 1500000)
	neighbour.Neighbourhood = "Nueva Andalucía"
	src := newMemorySource(t,
		villa("u1", "Urb X", 5, 200, 1000000),
		villa("u2", "Urb X", 5, 200, 1000000),
		neighbour,
	)
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
		City:          "Marbella",
		PropertyType:  models.TypeVilla,
		Urbanisation:  "Urb X",
		Neighbourhood: "Nueva Andalucia",
		Bedrooms:      3,
		Bathrooms:     2,
		MinPrice:      1000000,
		MaxPrice:      2000000,
		MaxResults:    2,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalFound)
	require.Len(t, res.Comparables, 2)
	assert.Equal(t, "u1", res.Comparables[0].ID)
	assert.Equal(t, "u2", res.Comparables[1].ID)

	res, err = e.Find(context.Background(), src, models.SearchCriteria{
		City:          "Marbella",
		Urbanisation:  "Urb X",
		Neighbourhood: "Nueva Andalucia",
		MaxResults:    3,
	})
	require.NoError(t, err)
	require.Len(t, res.Comparables, 3)
	assert.Equal(t, "n1", res.Comparables[2].ID)
	assert.True(t, res.Comparables[2].LocationMatched)
}

func TestFind_NormalizesCriteriaValues(t *testing.T) {
	src := newMemorySource(t,
		villa("v1", "Sierra Blanca", 4, 300, 2000000),
		villa("v2", "Sierra Blanca", 4, 320, 2100000),
	)
	e := NewEngine(Options{}, nil)

	tests := []struct {
		name     string
		criteria models.SearchCriteria
		want     int
	}{
		{name: "Mixed case type", criteria: models.SearchCriteria{City: "Marbella", PropertyType: "Villa"}, want: 2},
		{name: "Type alias", criteria: models.SearchCriteria{City: "Marbella", PropertyType: "CHALET"}, want: 2},
		{name: "Other type", criteria: models.SearchCriteria{City: "Marbella", PropertyType: "Apartment"}, want: 0},
		{name: "Unknown type is ignored", criteria: models.SearchCriteria{City: "Marbella", PropertyType: "castle"}, want: 2},
		{name: "Unknown view is ignored", criteria: models.SearchCriteria{City: "Marbella", ViewTypes: []models.ViewType{"moon"}}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Find(context.Background(), src, tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.TotalFound)
		})
	}
}

func TestFind_ExcludesSelf(t *testing.T) {
	src := newMemorySource(t,
		villa("subject", "La Zagaleta", 5, 600, 6000000),
		villa("other", "La Zagaleta", 5, 650, 6500000),
	)
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Urbanisation: "La Zagaleta",
		ExcludeID:    "subject",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalFound)
	for _, c := range res.Comparables {
		assert.NotEqual(t, "subject", c.ID)
	}
	assert.Positive(t, res.Rejections[ReasonSelf])
}

func TestFind_ContradictoryCriteria(t *testing.T) {
	src := newMemorySource(t, villa("v1", "X", 3, 200, 500000))
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
		City:     "Marbella",
		MinPrice: 900000,
		MaxPrice: 100000,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalFound)
	assert.Empty(t, res.Comparables)
}

func TestFind_NoCandidates(t *testing.T) {
	src := newMemorySource(t, villa("v1", "X", 3, 200, 500000))
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{City: "Estepona"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalFound)
	assert.NotNil(t, res.Comparables)
}

func TestFind_DistanceHandling(t *testing.T) {
	near := villa("near", "", 3, 200, 800000)
	near.Latitude, near.Longitude = ptr(36.5100), ptr(-4.8850)
	far := villa("far", "", 3, 200, 800000)
	far.Latitude, far.Longitude = ptr(36.6000), ptr(-4.8850) // about 10 km north
	unknown := villa("unknown", "", 3, 200, 800000)

	src := newMemorySource(t, near, far, unknown)
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Latitude:     ptr(36.5100),
		Longitude:    ptr(-4.8800),
	})
	require.NoError(t, err)

	ids := make(map[string]models.ComparableView)
	for _, c := range res.Comparables {
		ids[c.ID] = c
	}
	assert.Equal(t, 2, res.TotalFound)
	assert.NotContains(t, ids, "far")
	require.Contains(t, ids, "unknown")
	assert.Nil(t, ids["unknown"].Distance)
	require.Contains(t, ids, "near")
	require.NotNil(t, ids["near"].Distance)
	assert.Less(t, *ids["near"].Distance, 1.0)
	// Only the located candidate gets the distance bonus
	assert.Greater(t, ids["near"].Score, ids["unknown"].Score)
	assert.Equal(t, "near", res.Comparables[0].ID)
	assert.Positive(t, res.Rejections[ReasonDistance])
}

func TestFind_Keywords(t *testing.T) {
	a := villa("a", "", 3, 200, 800000)
	a.Features = []models.Feature{"pool_private"}
	b := villa("b", "", 3, 200, 800000)
	src := newMemorySource(t, a, b)
	e := NewEngine(Options{}, nil)

	res, err := e.Find(context.Background(), src, models.SearchCriteria{
		City:     "Marbella",
		Keywords: "Private Pool",
	})
	require.NoError(t, err)
	require.Len(t, res.Comparables, 1)
	assert.Equal(t, "a", res.Comparables[0].ID)
}

func TestFind_Deterministic(t *testing.T) {
	var records []*models.PropertyRecord
	for i := 0; i < 30; i++ {
		records = append(records, villa(fmt.Sprintf("v%02d", i), "Los Monteros", 3+i%3, float64(150+i*10), float64(700000+i*25000)))
	}
	src := newMemorySource(t, records...)
	e := NewEngine(Options{}, nil)
	criteria := models.SearchCriteria{
		City:         "Marbella",
		PropertyType: models.TypeVilla,
		Urbanisation: "Los Monteros",
		Bedrooms:     4,
		MinArea:      200,
		MaxArea:      300,
	}

	first, err := e.Find(context.Background(), src, criteria)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Find(context.Background(), src, criteria)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

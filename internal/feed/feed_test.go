package feed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestReader(t *testing.T) *Reader {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "feed.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRow_Listing(t *testing.T) {
	lat, lon := 36.51, -4.88
	year := 2004
	listed := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)
	row := Row{
		FeedSource:   "feed-a",
		Reference:    "R-1",
		City:         "Marbella",
		Province:     "MA",
		Latitude:     &lat,
		Longitude:    &lon,
		PropertyType: "villa",
		Bedrooms:     4,
		Features:     " pool_private, lift ,,",
		YearBuilt:    &year,
		Price:        1250000,
		IsSale:       true,
		DateListed:   &listed,
	}

	l := row.Listing()
	assert.Equal(t, "feed-a", l.FeedSource)
	assert.Equal(t, []string{"pool_private", "lift"}, l.Features)
	assert.Equal(t, &lat, l.Latitude)
	assert.Equal(t, 2004, *l.YearBuilt)
	assert.Equal(t, listed, *l.DateListed)
	assert.True(t, l.IsSale)
}

func TestReader_PollAndAck(t *testing.T) {
	r := openTestReader(t)
	ctx := context.Background()

	require.NoError(t, r.Stage(ctx, []Row{
		{FeedSource: "feed-a", Reference: "A-1", City: "Marbella", Province: "MA", PropertyType: "villa"},
		{FeedSource: "feed-b", Reference: "B-1", City: "Estepona", Province: "MA", PropertyType: "apartment"},
		{FeedSource: "feed-a", Reference: "A-2", City: "Marbella", Province: "MA", PropertyType: "villa"},
		{FeedSource: "feed-a", Reference: "A-3", City: "Marbella", Province: "MA", PropertyType: "villa"},
	}))

	first, err := r.Poll(ctx, "feed-a", 2)
	require.NoError(t, err)
	require.Equal(t, 2, first.Len())
	assert.Equal(t, "A-1", first.Listings[0].Reference)
	assert.Equal(t, "A-2", first.Listings[1].Reference)
	assert.Len(t, first.IDs, 2)
	require.NoError(t, r.Ack(ctx, first))

	pending, err := r.Pending(ctx, "feed-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	rest, err := r.Poll(ctx, "feed-a", 0)
	require.NoError(t, err)
	require.Equal(t, 1, rest.Len())
	assert.Equal(t, "A-3", rest.Listings[0].Reference)
	require.NoError(t, r.Ack(ctx, rest))

	empty, err := r.Poll(ctx, "feed-a", 10)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
	assert.NoError(t, r.Ack(ctx, empty))

	other, err := r.Poll(ctx, "feed-b", 10)
	require.NoError(t, err)
	require.Equal(t, 1, other.Len())
	assert.Equal(t, "Estepona", other.Listings[0].City)
}

func TestReader_UnacknowledgedBatchStaysPending(t *testing.T) {
	r := openTestReader(t)
	ctx := context.Background()

	require.NoError(t, r.Stage(ctx, []Row{
		{FeedSource: "feed-a", Reference: "A-1", City: "Marbella", Province: "MA"},
		{FeedSource: "feed-a", Reference: "A-2", City: "Marbella", Province: "MA"},
	}))

	batch, err := r.Poll(ctx, "feed-a", 10)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())

	// Delivery failed, nothing acknowledged
	pending, err := r.Pending(ctx, "feed-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	again, err := r.Poll(ctx, "feed-a", 10)
	require.NoError(t, err)
	assert.Equal(t, batch.IDs, again.IDs)
}

func TestReader_StageNothing(t *testing.T) {
	r := openTestReader(t)
	assert.NoError(t, r.Stage(context.Background(), nil))

	pending, err := r.Pending(context.Background(), "feed-a")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestReader_CancelledContext(t *testing.T) {
	r := openTestReader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Poll(ctx, "feed-a", 10)
	assert.Error(t, err)
}

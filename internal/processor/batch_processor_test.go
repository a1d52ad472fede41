package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"propertylist/server/config"
	"propertylist/server/internal/database"
	"propertylist/server/internal/models"
	"propertylist/server/internal/queue"
)

// MockStore is a mock implementation of the Upserter interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upsert(record *models.PropertyRecord, feedSource string) (string, error) {
	args := m.Called(record, feedSource)
	return args.String(0), args.Error(1)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 1
	cfg.BatchProcessing.MaxRetries = 3
	cfg.BatchProcessing.RetryDelay = 0
	return cfg
}

func testListing(ref string) *models.Listing {
	return &models.Listing{
		FeedSource:   "feed-a",
		Reference:    ref,
		City:         "Marbella",
		Province:     "MA",
		PropertyType: "Villa",
		Bedrooms:     4,
		BuildArea:    300,
		Price:        1500000,
		IsSale:       true,
	}
}

func TestNewBatchProcessor(t *testing.T) {
	store := &MockStore{}
	q := queue.NewListingQueue(10, nil)
	cfg := testConfig()
	logger := logrus.New()

	processor := NewBatchProcessor(store, q, cfg, logger)

	assert.NotNil(t, processor)
	assert.Equal(t, store, processor.store)
	assert.Equal(t, q, processor.queue)
	assert.Equal(t, cfg, processor.config)
	assert.Equal(t, logger, processor.logger)
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	store := &MockStore{}
	processor := NewBatchProcessor(store, queue.NewListingQueue(10, nil), testConfig(), logrus.New())

	store.On("Upsert", mock.MatchedBy(func(r *models.PropertyRecord) bool {
		return r.Reference == "R-1" && r.Province == "Málaga" && r.PropertyType == models.TypeVilla
	}), "feed-a").Return("id-1", nil).Once()

	bad := testListing("R-2")
	bad.City = ""

	result, err := processor.ProcessBatch([]*models.Listing{testListing("R-1"), bad})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Upserted: 1, Rejected: 1}, result)
	store.AssertExpectations(t)
}

func TestBatchProcessor_RetriesTransientFailures(t *testing.T) {
	store := &MockStore{}
	processor := NewBatchProcessor(store, queue.NewListingQueue(10, nil), testConfig(), logrus.New())

	store.On("Upsert", mock.Anything, "feed-a").Return("", errors.New("store busy")).Twice()
	store.On("Upsert", mock.Anything, "feed-a").Return("id-1", nil).Once()

	result, err := processor.ProcessBatch([]*models.Listing{testListing("R-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	store.AssertNumberOfCalls(t, "Upsert", 3)
}

func TestBatchProcessor_GivesUp(t *testing.T) {
	store := &MockStore{}
	processor := NewBatchProcessor(store, queue.NewListingQueue(10, nil), testConfig(), logrus.New())

	store.On("Upsert", mock.Anything, "feed-a").Return("", errors.New("store busy"))

	result, err := processor.ProcessBatch([]*models.Listing{testListing("R-1")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process 1 listings after 3 attempts")
	assert.Equal(t, 1, result.Failed)
	store.AssertNumberOfCalls(t, "Upsert", 4)
}

func TestBatchProcessor_PermanentStoreRejection(t *testing.T) {
	store := &MockStore{}
	processor := NewBatchProcessor(store, queue.NewListingQueue(10, nil), testConfig(), logrus.New())

	store.On("Upsert", mock.Anything, "feed-a").Return("", database.ErrInvalidRecord).Once()

	result, err := processor.ProcessBatch([]*models.Listing{testListing("R-1")})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Rejected: 1}, result)
	store.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestBatchProcessor_ConsumesQueue(t *testing.T) {
	store := &MockStore{}
	q := queue.NewListingQueue(10, nil)
	processor := NewBatchProcessor(store, q, testConfig(), logrus.New())

	store.On("Upsert", mock.Anything, "feed-a").Return("id", nil)

	processor.Start()
	q.Start()
	require.NoError(t, q.Push([]*models.Listing{testListing("R-1"), testListing("R-2")}))

	assert.Eventually(t, func() bool {
		return len(store.Calls) == 2
	}, time.Second, 10*time.Millisecond)

	processor.Stop()
	require.NoError(t, q.Close())
	assert.True(t, q.IsClosed())
}

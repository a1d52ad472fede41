package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"propertylist/server/internal/database"
	"propertylist/server/internal/models"
	"propertylist/server/internal/pricehistory"
	"propertylist/server/internal/queue"
	"propertylist/server/internal/search"
)

// Store is the property store as the HTTP layer sees it
type Store interface {
	FindComparables(ctx context.Context, criteria models.SearchCriteria) (*search.Result, error)
	Get(id string) (*models.PropertyRecord, error)
	GetPriceHistory(id string) ([]pricehistory.PricePoint, error)
	GetPriceTrend(id string) (*pricehistory.Trend, error)
	Stats() models.DatabaseStats
	Flush() error
}

// Ingester accepts listings for asynchronous ingestion
type Ingester interface {
	Push(listings []*models.Listing) error
}

type Handler struct {
	store  Store
	ingest Ingester
	logger *logrus.Logger
}

func NewHandler(store Store, ingest Ingester, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		store:  store,
		ingest: ingest,
		logger: logger,
	}
}

func (h *Handler) FindComparables(c *gin.Context) {
	var criteria models.SearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search criteria"})
		return
	}

	result, err := h.store.FindComparables(c.Request.Context(), criteria)
	if err != nil {
		h.logger.WithError(err).WithField("city", criteria.City).Error("Failed to find comparables")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find comparables"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetProperty(c *gin.Context) {
	p, err := h.store.Get(c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "Failed to get property")
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPriceHistory(c *gin.Context) {
	history, err := h.store.GetPriceHistory(c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "Failed to get price history")
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *Handler) GetPriceTrend(c *gin.Context) {
	trend, err := h.store.GetPriceTrend(c.Param("id"))
	if err != nil {
		h.respondLookupError(c, err, "Failed to get price trend")
		return
	}
	if trend == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not enough price history for a trend"})
		return
	}

	c.JSON(http.StatusOK, trend)
}

// IngestListings enqueues a batch of listings. The source query parameter
// fills in the feed of listings that do not name one.
func (h *Handler) IngestListings(c *gin.Context) {
	var listings []*models.Listing
	if err := c.ShouldBindJSON(&listings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listings"})
		return
	}
	if len(listings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No listings provided"})
		return
	}

	source := c.Query("source")
	for _, l := range listings {
		if l == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listings"})
			return
		}
		if l.FeedSource == "" {
			l.FeedSource = source
		}
	}

	if err := h.ingest.Push(listings); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"feed_source": source,
			"count":       len(listings),
		}).Warn("Failed to enqueue listings")
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to enqueue listings"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": len(listings)})
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}

func (h *Handler) Flush(c *gin.Context) {
	if err := h.store.Flush(); err != nil {
		h.logger.WithError(err).Error("Failed to flush snapshots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to flush snapshots"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Snapshots written"})
}

func (h *Handler) respondLookupError(c *gin.Context, err error, msg string) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	h.logger.WithError(err).WithField("id", c.Param("id")).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

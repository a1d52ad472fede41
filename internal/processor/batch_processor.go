package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"propertylist/server/config"
	"propertylist/server/internal/database"
	"propertylist/server/internal/models"
	"propertylist/server/internal/queue"
)

// Upserter is the store operation the processor feeds
type Upserter interface {
	Upsert(record *models.PropertyRecord, feedSource string) (string, error)
}

// BatchResult counts the outcome of one batch
type BatchResult struct {
	Upserted int
	Rejected int
	Failed   int
}

// BatchProcessor normalizes queued listing batches and upserts them,
// retrying records whose upsert failed for a transient reason
type BatchProcessor struct {
	store      Upserter
	logger     *logrus.Logger
	config     *config.Config
	queue      *queue.ListingQueue
	normalizer *Normalizer
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewBatchProcessor(store Upserter, q *queue.ListingQueue, cfg *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		store:      store,
		queue:      q,
		config:     cfg,
		logger:     logger,
		normalizer: NewNormalizer(logger),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes the processor to its queue
func (p *BatchProcessor) Start() {
	p.queue.Subscribe(func(batch []*models.Listing) error {
		_, err := p.ProcessBatch(batch)
		return err
	})
}

// Stop abandons any retry in progress
func (p *BatchProcessor) Stop() {
	p.cancel()
}

// ProcessBatch ingests one batch. Invalid listings are rejected without retry.
func (p *BatchProcessor) ProcessBatch(batch []*models.Listing) (BatchResult, error) {
	var result BatchResult
	type pendingRecord struct {
		record *models.PropertyRecord
		source string
	}

	var pending []pendingRecord
	for _, l := range batch {
		rec, err := p.normalizer.Normalize(l)
		if err != nil {
			result.Rejected++
			p.logger.WithError(err).Warn("Rejected listing")
			continue
		}
		pending = append(pending, pendingRecord{record: rec, source: l.FeedSource})
	}

	var lastErr error
	maxRetries := p.config.BatchProcessing.MaxRetries
	for attempt := 0; attempt <= maxRetries && len(pending) > 0; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying %d listings, attempt %d of %d", len(pending), attempt, maxRetries)
			if err := p.wait(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second); err != nil {
				break
			}
		}

		var retry []pendingRecord
		for _, pr := range pending {
			_, err := p.store.Upsert(pr.record, pr.source)
			switch {
			case err == nil:
				result.Upserted++
			case errors.Is(err, database.ErrInvalidRecord):
				result.Rejected++
				p.logger.WithFields(logrus.Fields{
					"feed_source": pr.source,
					"reference":   pr.record.Reference,
				}).WithError(err).Warn("Store rejected listing")
			default:
				lastErr = err
				retry = append(retry, pr)
			}
		}
		pending = retry
	}

	result.Failed = len(pending)
	p.logger.WithFields(logrus.Fields{
		"batch_size": len(batch),
		"upserted":   result.Upserted,
		"rejected":   result.Rejected,
		"failed":     result.Failed,
	}).Info("Processed listing batch")

	if result.Failed > 0 {
		return result, fmt.Errorf("failed to process %d listings after %d attempts: %w", result.Failed, maxRetries, lastErr)
	}
	return result, nil
}

func (p *BatchProcessor) wait(d time.Duration) error {
	if d <= 0 {
		return p.ctx.Err()
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-time.After(d):
		return nil
	}
}

package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"propertylist/server/config"
	"propertylist/server/internal/feed"
	"propertylist/server/internal/models"
)

// JobType represents the periodic maintenance jobs
type JobType int

const (
	JobTypePoll JobType = iota
	JobTypeSweep
	JobTypeIntegrity
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypePoll:
		return "poll"
	case JobTypeSweep:
		return "sweep"
	case JobTypeIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Store is the part of the property store the scheduler maintains
type Store interface {
	RemoveStaleRecords(feedSource string, cutoff time.Time) int
	VerifyIndex() ([]string, error)
}

// Source yields staged listings for a feed. A polled batch is handed out
// again until it is acknowledged.
type Source interface {
	Poll(ctx context.Context, source string, limit int) (*feed.Batch, error)
	Ack(ctx context.Context, batch *feed.Batch) error
}

// Sink accepts polled listings for ingestion
type Sink interface {
	Push(listings []*models.Listing) error
}

// Scheduler polls the feeds into the ingestion queue, evicts records their
// feed stopped delivering and checks index integrity. Jobs never overlap.
type Scheduler struct {
	store  Store
	source Source // nil disables polling
	sink   Sink
	logger *logrus.Logger

	sources       []string
	batchSize     int
	pollInterval  time.Duration
	sweepInterval time.Duration
	staleAfter    time.Duration
	now           func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential job execution
}

// NewScheduler creates a new scheduler
func NewScheduler(store Store, source Source, sink Sink, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:         store,
		source:        source,
		sink:          sink,
		logger:        logger,
		sources:       cfg.Feed.Sources,
		batchSize:     cfg.BatchProcessing.MaxBatchSize,
		pollInterval:  cfg.Feed.PollInterval,
		sweepInterval: cfg.Feed.SweepInterval,
		staleAfter:    cfg.Feed.StaleAfter,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		stopChan:      make(chan struct{}),
	}
}

// Start runs an initial poll and then the periodic jobs
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.Info("Running startup feed poll")
	s.runJob(JobTypePoll)

	poll := tickerFor(s.pollInterval)
	sweep := tickerFor(s.sweepInterval)
	defer stopTicker(poll)
	defer stopTicker(sweep)

	for {
		select {
		case <-s.stopChan:
			return
		case <-tickerChan(poll):
			s.runJob(JobTypePoll)
		case <-tickerChan(sweep):
			s.runJob(JobTypeSweep)
			s.runJob(JobTypeIntegrity)
		}
	}
}

func (s *Scheduler) runJob(job JobType) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	start := time.Now()
	var count int
	switch job {
	case JobTypePoll:
		count = s.PollFeeds(s.ctx)
	case JobTypeSweep:
		count = s.SweepStale()
	case JobTypeIntegrity:
		count = len(s.CheckIndex())
	}
	s.logger.WithFields(logrus.Fields{
		"job_type": job.String(),
		"count":    count,
		"duration": time.Since(start).String(),
	}).Debug("Scheduled job completed")
}

// PollFeeds drains every configured source into the sink and returns the
// number of listings handed over
func (s *Scheduler) PollFeeds(ctx context.Context) int {
	if s.source == nil {
		return 0
	}
	total := 0
	for _, feedSource := range s.sources {
		for {
			batch, err := s.source.Poll(ctx, feedSource, s.batchSize)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"feed_source": feedSource,
					"job_type":    JobTypePoll.String(),
				}).Error("Feed poll failed")
				break
			}
			if batch.Len() == 0 {
				break
			}
			if err := s.sink.Push(batch.Listings); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"feed_source": feedSource,
					"pending":     batch.Len(),
				}).Warn("Failed to enqueue polled listings, leaving them staged")
				break
			}
			total += batch.Len()
			if err := s.source.Ack(ctx, batch); err != nil {
				// Already queued; the rows are delivered again next poll
				s.logger.WithError(err).WithFields(logrus.Fields{
					"feed_source": feedSource,
					"count":       batch.Len(),
				}).Error("Failed to acknowledge polled listings")
				break
			}
			if s.batchSize <= 0 || batch.Len() < s.batchSize {
				break
			}
		}
	}
	return total
}

// SweepStale evicts, per feed, the records not refreshed within the stale
// window
func (s *Scheduler) SweepStale() int {
	if s.staleAfter <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.staleAfter)
	total := 0
	for _, feedSource := range s.sources {
		removed := s.store.RemoveStaleRecords(feedSource, cutoff)
		if removed > 0 {
			s.logger.WithFields(logrus.Fields{
				"feed_source": feedSource,
				"removed":     removed,
				"cutoff":      cutoff,
			}).Info("Evicted stale records")
		}
		total += removed
	}
	return total
}

// CheckIndex compares the live indexes with a full rebuild and returns the
// differing buckets
func (s *Scheduler) CheckIndex() []string {
	diff, err := s.store.VerifyIndex()
	if err != nil {
		s.logger.WithError(err).Error("Index integrity check failed")
		return nil
	}
	if len(diff) > 0 {
		s.logger.WithFields(logrus.Fields{
			"buckets": len(diff),
			"sample":  diff[0],
		}).Warn("Index drift detected and repaired")
	}
	return diff
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	close(s.stopChan)
	s.wg.Wait()
}

func tickerFor(d time.Duration) *time.Ticker {
	if d <= 0 {
		return nil
	}
	return time.NewTicker(d)
}

func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTicker(t *time.Ticker) {
	if t != nil {
		t.Stop()
	}
}

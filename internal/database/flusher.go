package database

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// flusher persists the store in the background: after every batch of changes
// and on a fixed interval while there are unsaved changes. Callers never wait
// on disk.
type flusher struct {
	batch    int
	interval time.Duration
	flush    func() error
	logger   *logrus.Logger

	mu      sync.Mutex
	pending int
	dirty   bool

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func newFlusher(batch int, interval time.Duration, flush func() error, logger *logrus.Logger) *flusher {
	if batch <= 0 {
		batch = 10
	}
	return &flusher{
		batch:    batch,
		interval: interval,
		flush:    flush,
		logger:   logger,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (f *flusher) start() {
	f.wg.Add(1)
	go f.run()
}

func (f *flusher) stop() {
	close(f.done)
	f.wg.Wait()
}

// changed records one mutation and wakes the loop once a batch is complete
func (f *flusher) changed() {
	f.mu.Lock()
	f.dirty = true
	f.pending++
	full := f.pending >= f.batch
	if full {
		f.pending = 0
	}
	f.mu.Unlock()

	if full {
		select {
		case f.signal <- struct{}{}:
		default:
			// A flush is already queued
		}
	}
}

// clean is called when a snapshot is taken; it reports whether anything had
// changed since the previous one
func (f *flusher) clean() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.dirty
	f.dirty = false
	f.pending = 0
	return was
}

// restore re-marks the store dirty after a failed save
func (f *flusher) restore() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
}

func (f *flusher) isDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *flusher) run() {
	defer f.wg.Done()

	var tick <-chan time.Time
	if f.interval > 0 {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-f.done:
			return
		case <-f.signal:
			f.save("batch")
		case <-tick:
			if f.isDirty() {
				f.save("interval")
			}
		}
	}
}

func (f *flusher) save(trigger string) {
	start := time.Now()
	if err := f.flush(); err != nil {
		f.logger.WithFields(logrus.Fields{
			"trigger": trigger,
			"error":   err,
		}).Error("Background snapshot flush failed")
		return
	}
	f.logger.WithFields(logrus.Fields{
		"trigger":     trigger,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Snapshot flushed")
}

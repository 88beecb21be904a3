package relayer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/config"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/utils"
)

// ProcessFunc handles one normalized event. A non-nil error makes the queue
// apply its retry policy to the entry.
type ProcessFunc func(ctx context.Context, event *entity.NormalizedEvent) error

// QueueEntry is a normalized event plus queue-local metadata. Owned
// exclusively by the queue, Attempts is mutated only by its retry path.
type QueueEntry struct {
	Event      *entity.NormalizedEvent
	Attempts   uint
	EnqueuedAt time.Time
}

type QueueStatus struct {
	QueueSize      int  `json:"queueSize"`
	InFlight       int  `json:"inFlight"`
	TotalProcessed uint `json:"totalProcessed"`
}

// Queue is the single serialization point between event arrival and handler
// execution. It deduplicates by log identity, bounds concurrency per tick and
// retries failed entries at the back of the queue. Ordering across ticks is
// not FIFO once entries are retried.
type Queue struct {
	logger  logging.Logger
	cfg     *config.QueueConfig
	process ProcessFunc

	mu             sync.Mutex
	pending        []*QueueEntry
	queued         map[string]bool
	processed      map[string]bool
	processedOrder []string
	inFlight       int
	totalProcessed uint
}

func NewQueue(logger logging.Logger, cfg *config.QueueConfig, process ProcessFunc) *Queue {
	return &Queue{
		logger:    logger,
		cfg:       cfg,
		process:   process,
		queued:    make(map[string]bool),
		processed: make(map[string]bool),
	}
}

// Add enqueues the event unless its identity key was already processed or is
// currently queued. Returns true if the event was accepted.
func (q *Queue) Add(event *entity.NormalizedEvent) bool {
	id := event.ID()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processed[id] || q.queued[id] {
		q.logger.WithFields(logrus.Fields{
			"event_id": id,
			"kind":     event.Kind(),
		}).Debug("duplicate event, skipping")
		return false
	}
	q.queued[id] = true
	q.pending = append(q.pending, &QueueEntry{
		Event:      event,
		EnqueuedAt: time.Now(),
	})
	QueueSize.Set(float64(len(q.pending)))
	return true
}

func (q *Queue) GetStatus() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		QueueSize:      len(q.pending),
		InFlight:       q.inFlight,
		TotalProcessed: q.totalProcessed,
	}
}

// Start runs the fixed-interval processing loop until the context is
// cancelled. Each tick takes up to maxConcurrent entries off the front and
// processes them concurrently, waiting for the whole batch before idling.
func (q *Queue) Start(ctx context.Context) {
	q.logger.WithFields(logrus.Fields{
		"process_interval": q.cfg.ProcessInterval,
		"max_concurrent":   q.cfg.MaxConcurrent,
		"max_retries":      q.cfg.MaxRetries,
	}).Info("starting event queue")
	for {
		if utils.ContextSleep(ctx, q.cfg.ProcessInterval) == nil {
			return
		}
		q.Tick(ctx)
	}
}

// Tick processes one batch. Exposed separately so tests can drive the queue
// without the timer loop.
func (q *Queue) Tick(ctx context.Context) {
	batch := q.dequeueBatch()
	if len(batch) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, entry := range batch {
		wg.Add(1)
		go func(entry *QueueEntry) {
			defer wg.Done()
			q.processEntry(ctx, entry)
		}(entry)
	}
	wg.Wait()
}

func (q *Queue) dequeueBatch() []*QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int(q.cfg.MaxConcurrent)
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := q.pending[:n]
	q.pending = q.pending[n:]
	q.inFlight += len(batch)
	QueueSize.Set(float64(len(q.pending)))
	QueueInFlight.Set(float64(q.inFlight))
	return batch
}

func (q *Queue) processEntry(ctx context.Context, entry *QueueEntry) {
	id := entry.Event.ID()
	logger := q.logger.WithFields(logrus.Fields{
		"event_id": id,
		"kind":     entry.Event.Kind(),
		"attempt":  entry.Attempts + 1,
	})
	err := q.process(ctx, entry.Event)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	QueueInFlight.Set(float64(q.inFlight))

	if err == nil {
		delete(q.queued, id)
		q.markProcessed(id)
		q.totalProcessed++
		return
	}

	entry.Attempts++
	if entry.Attempts < q.cfg.MaxRetries {
		logger.WithError(err).Warn("event processing failed, re-queueing")
		q.pending = append(q.pending, entry)
		QueueSize.Set(float64(len(q.pending)))
		return
	}
	// Dropped entries are not marked processed: a fresh re-delivery of the
	// same chain log is allowed to retry from scratch.
	delete(q.queued, id)
	DroppedEvents.Inc()
	logger.WithError(err).Error("event dropped after exhausting retry attempts")
}

// markProcessed records the identity key in the bounded processed set,
// evicting the oldest keys once the cap is exceeded.
func (q *Queue) markProcessed(id string) {
	q.processed[id] = true
	q.processedOrder = append(q.processedOrder, id)
	for uint(len(q.processedOrder)) > q.cfg.ProcessedCacheSize {
		delete(q.processed, q.processedOrder[0])
		q.processedOrder = q.processedOrder[1:]
	}
}

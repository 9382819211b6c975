package lidardb

import (
	"sync"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// recordQueueSize bounds the batches waiting for the writer goroutine.
const recordQueueSize = 64

// BatchRecorder is a batch sink that persists every Nth batch of a session.
// Recording all 3,600 batches per second would swamp SQLite, so the decode
// pipeline is sampled. Due batches are copied onto a bounded queue and written
// by a separate goroutine; when the queue is full the batch is dropped.
type BatchRecorder struct {
	db        *LidarDB
	sessionID string
	every     int
	queue     chan lidar.PointBatch
	done      chan struct{}

	mu       sync.Mutex
	started  bool
	closed   bool
	seen     int
	recorded int
	dropped  int
	failed   int
}

// NewBatchRecorder records one batch in every `every` (minimum 1). Call Start
// before offering batches and Close once the pipeline has stopped.
func NewBatchRecorder(db *LidarDB, sessionID string, every int) *BatchRecorder {
	if every < 1 {
		every = 1
	}
	return &BatchRecorder{
		db:        db,
		sessionID: sessionID,
		every:     every,
		queue:     make(chan lidar.PointBatch, recordQueueSize),
		done:      make(chan struct{}),
	}
}

// Start runs the writer goroutine. It exits after Close once the queue is
// drained.
func (r *BatchRecorder) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for batch := range r.queue {
			_, err := r.db.RecordBatch(r.sessionID, batch)
			r.mu.Lock()
			if err != nil {
				r.failed++
				if r.failed == 1 {
					lidar.Opsf("session %s: failed to record batch: %v", r.sessionID, err)
				}
			} else {
				r.recorded++
			}
			r.mu.Unlock()
		}
	}()
}

// HandleBatch queues the batch when it falls on the sampling interval.
// Empty batches are never stored and nothing is queued after Close. It
// never blocks on the database.
func (r *BatchRecorder) HandleBatch(batch lidar.PointBatch) error {
	if batch.Empty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.seen++
	if (r.seen-1)%r.every != 0 {
		return nil
	}

	select {
	case r.queue <- batch.Clone():
	default:
		r.dropped++
	}
	return nil
}

// Close stops accepting batches and waits for queued ones to be written.
func (r *BatchRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.done
	}

	seen, recorded, dropped := r.Counts()
	lidar.Diagf("session %s: %d batches seen, %d recorded, %d dropped", r.sessionID, seen, recorded, dropped)
}

// Counts returns how many batches were offered, stored and dropped because
// the writer fell behind.
func (r *BatchRecorder) Counts() (seen, recorded, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen, r.recorded, r.dropped
}

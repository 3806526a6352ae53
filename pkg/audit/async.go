package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

const (
	failureQueueFull = "queue_full"
	failureSink      = "sink_error"
	failurePanic     = "panic"
)

// AsyncOptions configures an AsyncRecorder
type AsyncOptions struct {
	Shards       int           // Number of FIFO queues and workers (default: 4)
	QueueSize    int           // Capacity of each queue (default: 1024)
	WriteTimeout time.Duration // Per-record sink timeout (default: 5s)
	Logger       logrus.FieldLogger
	Metrics      *observability.Metrics
}

// AsyncRecorder hands records to a sink on background workers. Records of
// one actor always land on the same shard, so they reach the sink in the
// order they were submitted. A full queue drops the record; drops and sink
// failures are logged and counted but never returned to the caller.
type AsyncRecorder struct {
	sink    Recorder
	shards  []chan Record
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *observability.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Uint64
	written   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewAsyncRecorder starts the shard workers
func NewAsyncRecorder(sink Recorder, opts AsyncOptions) *AsyncRecorder {
	if opts.Shards <= 0 {
		opts.Shards = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	r := &AsyncRecorder{
		sink:    sink,
		shards:  make([]chan Record, opts.Shards),
		timeout: opts.WriteTimeout,
		logger:  opts.Logger.WithField("component", "audit"),
		metrics: opts.Metrics,
	}

	for i := range r.shards {
		r.shards[i] = make(chan Record, opts.QueueSize)
		r.wg.Add(1)
		go r.worker(r.shards[i])
	}

	return r
}

// shardFor picks the queue for an actor
func (r *AsyncRecorder) shardFor(actorID string) chan Record {
	return r.shards[xxhash.Sum64String(actorID)%uint64(len(r.shards))]
}

// Record enqueues a record without blocking. It only fails after Close.
func (r *AsyncRecorder) Record(ctx context.Context, record Record) error {
	prepare(&record)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	r.submitted.Add(1)
	select {
	case r.shardFor(record.ActorUserID) <- record:
		if r.metrics != nil {
			r.metrics.AuditQueueDepth.Inc()
		}
	default:
		r.fail(record, failureQueueFull, nil)
	}
	return nil
}

func (r *AsyncRecorder) worker(queue chan Record) {
	defer r.wg.Done()
	for record := range queue {
		if r.metrics != nil {
			r.metrics.AuditQueueDepth.Dec()
		}
		r.write(record)
	}
}

func (r *AsyncRecorder) write(record Record) {
	defer observability.RecoverPanicWithCallback(r.logger, "audit worker", func() {
		r.fail(record, failurePanic, nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Record(ctx, record); err != nil {
		r.fail(record, failureSink, err)
		return
	}

	r.written.Add(1)
	if r.metrics != nil {
		r.metrics.AuditRecordsTotal.WithLabelValues(string(record.Decision)).Inc()
	}
}

func (r *AsyncRecorder) fail(record Record, reason string, err error) {
	if reason == failureQueueFull {
		r.dropped.Add(1)
	} else {
		r.failed.Add(1)
	}
	if r.metrics != nil {
		r.metrics.AuditRecordFailuresTotal.WithLabelValues(reason).Inc()
	}

	entry := r.logger.WithFields(logrus.Fields{
		"record_id":       record.ID,
		"actor_user_id":   record.ActorUserID,
		"organization_id": record.OrganizationID,
		"action":          record.Action,
		"resource_type":   record.ResourceType,
		"decision":        record.Decision,
		"failure":         reason,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error("Audit record lost")
}

// Stats returns the recorder counters
func (r *AsyncRecorder) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Written:   r.written.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
	}
}

// Failures returns the number of records that never reached the sink
func (r *AsyncRecorder) Failures() uint64 {
	return r.dropped.Load() + r.failed.Load()
}

// Close stops accepting records and waits for queued records to drain, or
// for ctx to expire
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, queue := range r.shards {
			close(queue)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

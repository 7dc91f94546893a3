// Package audit provides asynchronous audit logging of answered queries to
// object storage. Recording never blocks request handling: records are queued
// on a bounded channel and written by a background worker, and overflow is
// dropped and counted rather than propagated.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/citegate/citegate/internal/governance"
	"github.com/citegate/citegate/pkg/domain"
	"github.com/citegate/citegate/pkg/storage"
)

const (
	// DropQueueFull means the bounded queue had no room when the record was
	// offered.
	DropQueueFull = "queue_full"
	// DropWriteFailed means the storage write failed after all retries.
	DropWriteFailed = "write_failed"
	// DropShuttingDown means the record arrived after Close began.
	DropShuttingDown = "shutting_down"
)

// Observer is notified about the fate of audit records. Implementations must
// be safe for concurrent use.
type Observer interface {
	AuditWritten()
	AuditDropped(reason string)
}

// Logger writes audit records to an object store in the background.
type Logger struct {
	sink         storage.AuditSink
	bucket       string
	prefix       string
	queue        chan domain.AuditRecord
	retry        *governance.RetryPolicy
	writeTimeout time.Duration
	observer     Observer
	logger       *slog.Logger

	written uint64
	dropped uint64

	// closeMu serializes enqueues against Close so the queue is never
	// closed while a send is in flight.
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// Config holds configuration for creating a Logger.
type Config struct {
	Sink   storage.AuditSink
	Bucket string
	// Prefix is prepended to every object key. Defaults to "audit".
	Prefix    string
	QueueSize int
	// MaxRetries is the number of additional write attempts after a failure.
	MaxRetries   int
	WriteTimeout time.Duration
	Observer     Observer
	Logger       *slog.Logger
}

// New creates a Logger and starts its background worker.
func New(cfg Config) *Logger {
	if cfg.Prefix == "" {
		cfg.Prefix = "audit"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Logger{
		sink:         cfg.Sink,
		bucket:       cfg.Bucket,
		prefix:       cfg.Prefix,
		queue:        make(chan domain.AuditRecord, cfg.QueueSize),
		writeTimeout: cfg.WriteTimeout,
		observer:     cfg.Observer,
		logger:       logger,
		done:         make(chan struct{}),
		retry: governance.NewRetryPolicy(governance.RetryConfig{
			MaxAttempts:       cfg.MaxRetries + 1,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}),
	}

	go l.run()
	return l
}

// Record offers a record to the queue without blocking. When the queue is
// full or the logger is closing, the record is dropped and counted.
func (l *Logger) Record(rec domain.AuditRecord) {
	l.closeMu.RLock()
	if l.closed {
		l.closeMu.RUnlock()
		l.drop(rec, DropShuttingDown)
		return
	}

	var reason string
	select {
	case l.queue <- rec:
	default:
		reason = DropQueueFull
	}
	l.closeMu.RUnlock()

	if reason != "" {
		l.drop(rec, reason)
	}
}

// Close stops accepting records, flushes whatever is queued, and waits up to
// timeout for the worker to finish.
func (l *Logger) Close(timeout time.Duration) error {
	l.closeOnce.Do(func() {
		l.closeMu.Lock()
		l.closed = true
		close(l.queue)
		l.closeMu.Unlock()
	})

	select {
	case <-l.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit logger: %d records still queued after %v", len(l.queue), timeout)
	}
}

// Written reports how many records reached storage.
func (l *Logger) Written() uint64 { return atomic.LoadUint64(&l.written) }

// Dropped reports how many records were lost, for any reason.
func (l *Logger) Dropped() uint64 { return atomic.LoadUint64(&l.dropped) }

func (l *Logger) run() {
	defer close(l.done)
	for rec := range l.queue {
		l.write(rec)
	}
}

func (l *Logger) write(rec domain.AuditRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		l.drop(rec, DropWriteFailed)
		return
	}

	loc := storage.ObjectLocation{Bucket: l.bucket, Object: l.objectKey(rec)}

	// Detached from any request context: the caller already got its
	// response, only the write timeout bounds us here.
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	err = l.retry.Execute(ctx, func(ctx context.Context) error {
		return l.sink.Put(ctx, loc, data)
	})
	if err != nil {
		l.logger.Warn("audit write failed",
			"object", loc.String(),
			"request_id", rec.RequestID,
			"error", err,
		)
		l.drop(rec, DropWriteFailed)
		return
	}

	atomic.AddUint64(&l.written, 1)
	if l.observer != nil {
		l.observer.AuditWritten()
	}
}

// objectKey partitions records by day so downstream consumers can list a
// bounded range.
func (l *Logger) objectKey(rec domain.AuditRecord) string {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s-%d.json",
		l.prefix, ts.Year(), ts.Month(), ts.Day(), rec.RequestID, ts.UnixNano())
}

func (l *Logger) drop(rec domain.AuditRecord, reason string) {
	atomic.AddUint64(&l.dropped, 1)
	l.logger.Warn("audit record dropped",
		"reason", reason,
		"request_id", rec.RequestID,
	)
	if l.observer != nil {
		l.observer.AuditDropped(reason)
	}
}

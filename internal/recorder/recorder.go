// Package recorder writes request logs asynchronously so that persistence
// latency never sits on the request path.
package recorder

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"qwen-bridge/internal/session"
)

// Config holds configuration for the recorder worker pool
type Config struct {
	WorkerCount    int           // Number of worker goroutines (default: 2)
	QueueCapacity  int           // Task queue capacity (default: 4096)
	MaxRetries     int           // Max retry attempts for transient errors (default: 3)
	RetryBaseDelay time.Duration // Base delay for exponential backoff (default: 100ms)
	WriteTimeout   time.Duration // Per-write timeout (default: 5s)
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    2,
		QueueCapacity:  4096,
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
	}
}

// Metrics holds counters for monitoring
type Metrics struct {
	QueueLength    int64
	ProcessedCount int64
	ErrorCount     int64
	DroppedCount   int64
}

// Recorder manages a fixed number of workers draining request-log entries
// into a RequestLogStore.
type Recorder struct {
	config   Config
	store    session.RequestLogStore
	taskChan chan *session.RequestLog
	stopChan chan struct{}
	wg       sync.WaitGroup
	logger   *logrus.Entry

	queueLength    atomic.Int64
	processedCount atomic.Int64
	errorCount     atomic.Int64
	droppedCount   atomic.Int64

	running atomic.Bool
}

// New creates a recorder with the given configuration
func New(config Config, store session.RequestLogStore, logger *logrus.Entry) *Recorder {
	defaults := DefaultConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = defaults.QueueCapacity
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Recorder{
		config:   config,
		store:    store,
		taskChan: make(chan *session.RequestLog, config.QueueCapacity),
		stopChan: make(chan struct{}),
		logger:   logger.WithField("component", "request_recorder"),
	}
}

// Start launches the worker goroutines
func (r *Recorder) Start() {
	if r.running.Swap(true) {
		r.logger.Warn("Recorder already running")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"worker_count":   r.config.WorkerCount,
		"queue_capacity": r.config.QueueCapacity,
	}).Info("Starting request recorder")

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Submit queues one log entry. Unlike key-status updates, request logs are
// observability data: when the queue is full the entry is dropped and
// counted rather than blocking the request path.
func (r *Recorder) Submit(entry *session.RequestLog) bool {
	if !r.running.Load() {
		r.logger.Warn("Cannot submit log entry: recorder not running")
		return false
	}

	select {
	case r.taskChan <- entry:
		r.queueLength.Add(1)
		currentLen := r.queueLength.Load()
		threshold := int64(float64(r.config.QueueCapacity) * 0.8)
		if currentLen >= threshold {
			r.logger.WithFields(logrus.Fields{
				"queue_length": currentLen,
				"capacity":     r.config.QueueCapacity,
			}).Warn("Log queue approaching capacity")
		}
		return true
	default:
		r.droppedCount.Add(1)
		r.logger.WithField("session_key", entry.SessionKey).Warn("Log queue full, dropping request log entry")
		return false
	}
}

// Stop gracefully shuts down the recorder
func (r *Recorder) Stop() {
	if !r.running.Swap(false) {
		r.logger.Warn("Recorder already stopped")
		return
	}

	r.logger.Info("Stopping request recorder...")

	close(r.stopChan)
	r.wg.Wait()
	r.drainRemaining()

	r.logger.WithFields(logrus.Fields{
		"processed": r.processedCount.Load(),
		"errors":    r.errorCount.Load(),
		"dropped":   r.droppedCount.Load(),
	}).Info("Request recorder stopped")
}

// GetMetrics returns current counters
func (r *Recorder) GetMetrics() Metrics {
	return Metrics{
		QueueLength:    r.queueLength.Load(),
		ProcessedCount: r.processedCount.Load(),
		ErrorCount:     r.errorCount.Load(),
		DroppedCount:   r.droppedCount.Load(),
	}
}

// IsRunning returns whether the recorder is running
func (r *Recorder) IsRunning() bool {
	return r.running.Load()
}

// worker is the main loop for each worker goroutine
func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	logger := r.logger.WithField("worker_id", id)
	logger.Debug("Worker started")

	for {
		select {
		case <-r.stopChan:
			logger.Debug("Worker received stop signal")
			return
		case entry, ok := <-r.taskChan:
			if !ok {
				logger.Debug("Task channel closed")
				return
			}
			r.queueLength.Add(-1)
			r.processEntry(entry, logger)
		}
	}
}

// processEntry writes one entry with retry on transient errors
func (r *Recorder) processEntry(entry *session.RequestLog, logger *logrus.Entry) {
	var err error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
			logger.WithFields(logrus.Fields{
				"session_key": entry.SessionKey,
				"attempt":     attempt,
				"delay":       delay,
			}).Debug("Retrying log write")
			time.Sleep(delay)
		}

		err = r.writeOnce(entry)
		if err == nil {
			r.processedCount.Add(1)
			return
		}

		if isPermanentError(err) {
			logger.WithFields(logrus.Fields{
				"session_key": entry.SessionKey,
				"error":       err,
			}).Error("Permanent error writing request log, not retrying")
			r.errorCount.Add(1)
			r.processedCount.Add(1)
			return
		}

		logger.WithFields(logrus.Fields{
			"session_key": entry.SessionKey,
			"attempt":     attempt + 1,
			"error":       err,
		}).Warn("Transient error writing request log")
	}

	logger.WithFields(logrus.Fields{
		"session_key": entry.SessionKey,
		"max_retries": r.config.MaxRetries,
		"error":       err,
	}).Error("All retries exhausted for request log write")
	r.errorCount.Add(1)
	r.processedCount.Add(1)
}

func (r *Recorder) writeOnce(entry *session.RequestLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()
	return r.store.RecordRequest(ctx, entry)
}

// drainRemaining processes entries left in the queue after the stop signal
func (r *Recorder) drainRemaining() {
	remaining := 0
	for {
		select {
		case entry, ok := <-r.taskChan:
			if !ok {
				return
			}
			remaining++
			r.queueLength.Add(-1)
			r.processEntry(entry, r.logger)
		default:
			if remaining > 0 {
				r.logger.WithField("count", remaining).Info("Drained remaining log entries")
			}
			return
		}
	}
}

// isPermanentError checks if an error should not be retried
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "record not found") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "invalid entry")
}

package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qwen-bridge/internal/session"
)

// flakyStore fails the first failCount writes, then succeeds
type flakyStore struct {
	mu        sync.Mutex
	entries   []*session.RequestLog
	calls     atomic.Int64
	failCount int
	fails     int
}

func (s *flakyStore) RecordRequest(ctx context.Context, entry *session.RequestLog) error {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails < s.failCount {
		s.fails++
		return errors.New("transient error")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *flakyStore) stored() []*session.RequestLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.RequestLog, len(s.entries))
	copy(out, s.entries)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNew_DefaultsApplied(t *testing.T) {
	r := New(Config{}, &flakyStore{}, nil)

	assert.Equal(t, 2, r.config.WorkerCount)
	assert.Equal(t, 4096, r.config.QueueCapacity)
	assert.Equal(t, 3, r.config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, r.config.RetryBaseDelay)
}

func TestRecorder_ProcessesEntries(t *testing.T) {
	store := &flakyStore{}
	r := New(Config{WorkerCount: 2, QueueCapacity: 10}, store, nil)
	r.Start()
	defer r.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, r.Submit(&session.RequestLog{SessionKey: "k"}))
	}

	waitFor(t, time.Second, func() bool {
		return len(store.stored()) == 5
	})

	metrics := r.GetMetrics()
	assert.Equal(t, int64(5), metrics.ProcessedCount)
	assert.Equal(t, int64(0), metrics.ErrorCount)
}

func TestRecorder_SubmitBeforeStart(t *testing.T) {
	r := New(Config{}, &flakyStore{}, nil)
	assert.False(t, r.Submit(&session.RequestLog{}))
}

func TestRecorder_RetriesTransientErrors(t *testing.T) {
	store := &flakyStore{failCount: 2}
	r := New(Config{
		WorkerCount:    1,
		QueueCapacity:  10,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, store, nil)
	r.Start()
	defer r.Stop()

	require.True(t, r.Submit(&session.RequestLog{SessionKey: "retry-me"}))

	waitFor(t, time.Second, func() bool {
		return len(store.stored()) == 1
	})

	assert.GreaterOrEqual(t, store.calls.Load(), int64(3))
	assert.Equal(t, int64(0), r.GetMetrics().ErrorCount)
}

func TestRecorder_ExhaustedRetriesCounted(t *testing.T) {
	store := &flakyStore{failCount: 100}
	r := New(Config{
		WorkerCount:    1,
		QueueCapacity:  10,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, store, nil)
	r.Start()
	defer r.Stop()

	require.True(t, r.Submit(&session.RequestLog{SessionKey: "doomed"}))

	waitFor(t, time.Second, func() bool {
		return r.GetMetrics().ErrorCount == 1
	})
	assert.Empty(t, store.stored())
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	store := &flakyStore{}
	r := New(Config{WorkerCount: 1, QueueCapacity: 1}, store, nil)
	// Not started: nothing drains the queue

	r.running.Store(true)
	assert.True(t, r.Submit(&session.RequestLog{}))
	assert.False(t, r.Submit(&session.RequestLog{}))
	r.running.Store(false)

	assert.Equal(t, int64(1), r.GetMetrics().DroppedCount)
}

func TestRecorder_StopDrainsQueue(t *testing.T) {
	store := &flakyStore{}
	r := New(Config{WorkerCount: 1, QueueCapacity: 100}, store, nil)
	r.Start()

	for i := 0; i < 20; i++ {
		r.Submit(&session.RequestLog{SessionKey: "drain"})
	}
	r.Stop()

	assert.Len(t, store.stored(), 20)
	assert.False(t, r.IsRunning())
}

func TestRecorder_DoubleStartAndStop(t *testing.T) {
	r := New(Config{}, &flakyStore{}, nil)

	r.Start()
	r.Start() // no-op
	assert.True(t, r.IsRunning())

	r.Stop()
	r.Stop() // no-op
	assert.False(t, r.IsRunning())
}

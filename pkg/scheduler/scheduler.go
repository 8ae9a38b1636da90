// Package scheduler fires deferred key releases from a background worker
package scheduler

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/james-see/lyrica/pkg/keyboard"
)

// Worker sleep bounds. The worker never sleeps longer than MaxSleep, which
// caps release latency.
const (
	MinSleep           = 10 * time.Millisecond
	MaxSleep           = 100 * time.Millisecond
	DefaultJoinTimeout = 100 * time.Millisecond
)

// ReleaseFunc releases one key
type ReleaseFunc func(key keyboard.Key) error

type entry struct {
	deadline time.Time
	key      keyboard.Key
	seq      uint64
}

// releaseHeap is a min-heap ordered by deadline, then insertion order
type releaseHeap []entry

func (h releaseHeap) Len() int { return len(h) }
func (h releaseHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h releaseHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *releaseHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *releaseHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJoinTimeout bounds how long Stop waits for the worker to exit
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.joinTimeout = d
		}
	}
}

// Scheduler holds pending releases and fires them from its own goroutine
// once their deadline has passed.
type Scheduler struct {
	mu    sync.Mutex
	queue releaseHeap
	seq   uint64

	release     ReleaseFunc
	logger      *slog.Logger
	joinTimeout time.Duration
	wake        chan struct{}

	lifecycle sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
	active    atomic.Bool
	startedAt time.Time
	processed atomic.Int64
}

// New creates a scheduler and starts its worker
func New(release ReleaseFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		release:     release,
		logger:      slog.Default(),
		joinTimeout: DefaultJoinTimeout,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")

	s.lifecycle.Lock()
	s.start()
	s.lifecycle.Unlock()
	return s
}

// start launches a worker; lifecycle must be held
func (s *Scheduler) start() {
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.startedAt = time.Now()
	s.processed.Store(0)
	s.active.Store(true)
	s.logger.Debug("scheduler worker starting")
	go s.run(s.stopCh, s.done)
}

// Add schedules key to be released after delay
func (s *Scheduler) Add(key keyboard.Key, delay time.Duration) {
	deadline := time.Now().Add(delay)

	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, entry{deadline: deadline, key: key, seq: s.seq})
	earliest := s.queue[0].seq == s.seq
	s.mu.Unlock()

	s.logger.Debug("release scheduled", "key", key, "delay", delay)
	if earliest {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Reset drops every pending release without firing it
func (s *Scheduler) Reset() {
	s.mu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("pending releases discarded", "count", n)
	}
}

// Pending returns the number of queued releases
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Processed returns the number of releases fired by the current worker
func (s *Scheduler) Processed() int64 {
	return s.processed.Load()
}

// Active reports whether the worker is running
func (s *Scheduler) Active() bool {
	return s.active.Load()
}

// Stop signals the worker to exit and waits up to the join timeout. A worker
// that does not exit in time is left detached and a warning is logged.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.active.Load() {
		return
	}
	s.logger.Debug("stopping scheduler worker")
	close(s.stopCh)

	select {
	case <-s.done:
		s.logger.Debug("scheduler worker stopped")
	case <-time.After(s.joinTimeout):
		s.logger.Warn("scheduler worker did not exit in time", "timeout", s.joinTimeout)
	}

	s.active.Store(false)
	s.logger.Info("scheduler stopped",
		"runtime", time.Since(s.startedAt).Round(time.Millisecond),
		"processed", s.processed.Load())
}

// Restart starts a fresh worker if the scheduler is stopped
func (s *Scheduler) Restart() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.active.Load() {
		return
	}
	s.logger.Debug("restarting scheduler")
	s.start()
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(MaxSleep)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		for _, key := range s.popDue(time.Now()) {
			s.fire(key)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextSleep(time.Now()))

		select {
		case <-stop:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// popDue removes and returns every key whose deadline is not after now
func (s *Scheduler) popDue(now time.Time) []keyboard.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []keyboard.Key
	for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
		e := heap.Pop(&s.queue).(entry)
		due = append(due, e.key)
	}
	return due
}

func (s *Scheduler) nextSleep(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return MaxSleep
	}
	d := s.queue[0].deadline.Sub(now)
	if d < MinSleep {
		return MinSleep
	}
	if d > MaxSleep {
		return MaxSleep
	}
	return d
}

// fire releases one key. Errors and panics are contained to that key.
func (s *Scheduler) fire(key keyboard.Key) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("release panicked", "key", key, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.release(key); err != nil {
		s.logger.Error("release failed", "key", key, "err", err)
		return
	}
	s.processed.Add(1)
	s.logger.Debug("released key", "key", key)
}

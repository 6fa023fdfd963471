package recorder

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// SampleSink receives drained samples. The cache-backed implementation lives
// in sink.go; tests substitute their own.
type SampleSink interface {
	Persist(ctx context.Context, s Sample) error
}

// Recorder accepts samples from many writers through a bounded channel and
// drains them on a single worker. Enqueue never blocks: when the channel is
// full the oldest undrained sample is dropped and the drop counter
// incremented.
type Recorder struct {
	sink   SampleSink
	ch     chan Sample
	maxAge time.Duration

	dropped atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a recorder with the given channel capacity and maximum sample
// age. Samples older than maxAge when drained are discarded.
func New(sink SampleSink, capacity int, maxAge time.Duration) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{
		sink:   sink,
		ch:     make(chan Sample, capacity),
		maxAge: maxAge,
		stopCh: make(chan struct{}),
	}
}

// Start launches the drain worker.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.drain()
}

// Stop flushes queued samples and stops the worker.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Dropped returns the number of samples dropped so far.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Record enqueues a completed measurement. Never blocks.
func (r *Recorder) Record(service, operation, status string, elapsed time.Duration) {
	s := Sample{
		Service:    service,
		Operation:  operation,
		Status:     status,
		Ms:         elapsed.Milliseconds(),
		TS:         time.Now().UTC(),
		enqueuedAt: time.Now(),
	}
	select {
	case r.ch <- s:
		return
	default:
	}
	// Full: evict the oldest undrained sample, then retry once.
	select {
	case <-r.ch:
		r.dropped.Add(1)
	default:
	}
	select {
	case r.ch <- s:
	default:
		r.dropped.Add(1)
	}
}

// Scope starts a measurement and returns a completion func. The returned
// func records the elapsed time with a status derived from err: nil is ok,
// context cancellation is cancelled, anything else is error.
func (r *Recorder) Scope(service, operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		r.Record(service, operation, StatusFor(err), time.Since(start))
	}
}

// Track runs fn inside a scoped measurement and passes its error through.
func (r *Recorder) Track(service, operation string, fn func() error) error {
	done := r.Scope(service, operation)
	err := fn()
	done(err)
	return err
}

// StatusFor maps an operation error to a recorded status: nil is ok, context
// cancellation is cancelled, anything else is error.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusError
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case s := <-r.ch:
			r.persist(s)
		case <-r.stopCh:
			// Flush whatever is already queued, then exit.
			for {
				select {
				case s := <-r.ch:
					r.persist(s)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(s Sample) {
	if r.maxAge > 0 && time.Since(s.enqueuedAt) > r.maxAge {
		r.dropped.Add(1)
		return
	}
	if err := r.sink.Persist(context.Background(), s); err != nil {
		log.Printf("[recorder] persist %s/%s failed: %v", s.Service, s.Operation, err)
	}
}

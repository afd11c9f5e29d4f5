// Package pipeline decouples packet capture from flow processing with a
// bounded queue drained by a single goroutine.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/fault"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	// DefaultMaxQueueSize bounds the frames waiting to be processed.
	DefaultMaxQueueSize = 1000000
	// DefaultIdleDelay is how long the drain loop sleeps on an empty queue.
	DefaultIdleDelay = 64 * time.Millisecond
)

// Handler processes one frame on the drain goroutine. Parse faults are
// counted and skipped; any other error stops the pipeline.
type Handler func(capture.Frame) error

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	MaxQueueSize int
	IdleDelay    time.Duration
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Total        uint64 `json:"total"`
	Queued       int    `json:"queued"`
	MaxQueueSize int    `json:"max_queue_size"`
	Errors       uint64 `json:"errors"`
	Dropped      uint64 `json:"dropped"`
}

func (s Stats) String() string {
	return fmt.Sprintf("Total: %d, Queued: %d/%d, Errors: %d, Dropped: %d", s.Total, s.Queued, s.MaxQueueSize, s.Errors, s.Dropped)
}

// Pipeline feeds frames from a capture source through a Handler.
type Pipeline struct {
	source  capture.Source
	handler Handler
	queue   *queue
	idle    time.Duration

	total   atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	failOnce sync.Once
	fatal    atomic.Error
	errCh    chan error
}

// New creates a pipeline. Nothing runs until Start.
func New(source capture.Source, handler Handler, opts Options) *Pipeline {
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = DefaultMaxQueueSize
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = DefaultIdleDelay
	}
	return &Pipeline{
		source:  source,
		handler: handler,
		queue:   newQueue(opts.MaxQueueSize),
		idle:    opts.IdleDelay,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		errCh:   make(chan error, 1),
	}
}

// Enqueue accepts a frame from the capture source. A full queue drops it.
func (p *Pipeline) Enqueue(f capture.Frame) {
	p.total.Inc()
	if !p.queue.push(f) {
		p.dropped.Inc()
	}
}

// Start starts the capture source, then the drain loop.
func (p *Pipeline) Start() error {
	if err := p.source.Start(p.Enqueue); err != nil {
		return fault.Wrap(err, fault.KindCapture, "failed to start capture")
	}
	p.started.Store(true)
	go p.run()
	return nil
}

// Err delivers the fault that stopped the drain loop, if any.
func (p *Pipeline) Err() <-chan error {
	return p.errCh
}

// Stop stops the source and the drain loop, then processes what is left in
// the queue. It returns the fatal fault that ended processing or, failing
// that, the capture fault of stopping the source. Calling Stop more than
// once is safe.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		var stopErr error
		if err := p.source.Stop(); err != nil {
			stopErr = fault.Wrap(err, fault.KindCapture, "failed to stop capture")
		}
		close(p.stop)
		if p.started.Load() {
			<-p.done
		}
		if p.fatal.Load() == nil {
			p.drain()
		}
		if stopErr != nil {
			p.fail(stopErr)
		}
	})
	return p.fatal.Load()
}

// drain processes the frames still queued after the drain loop ended.
func (p *Pipeline) drain() {
	for {
		f, ok := p.queue.pop()
		if !ok {
			return
		}
		if err := p.process(f); err != nil {
			p.fail(err)
			return
		}
	}
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Total:        p.total.Load(),
		Queued:       p.queue.len(),
		MaxQueueSize: p.queue.max,
		Errors:       p.errors.Load(),
		Dropped:      p.dropped.Load(),
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	idle := time.NewTimer(p.idle)
	defer idle.Stop()

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		f, ok := p.queue.pop()
		if !ok {
			idle.Reset(p.idle)
			select {
			case <-p.stop:
				return
			case <-idle.C:
			}
			continue
		}

		if err := p.process(f); err != nil {
			p.fail(err)
			return
		}
	}
}

// process runs the handler on one frame and returns only fatal faults.
func (p *Pipeline) process(f capture.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.errors.Inc()
			log.WithField("captured", f.Timestamp).Errorf("Recovered from panic while processing frame: %v", r)
			err = nil
		}
	}()

	if err := p.handler(f); err != nil {
		if fault.IsFatal(err) {
			return err
		}
		p.errors.Inc()
		log.WithError(err).WithField("captured", f.Timestamp).Debug("Skipping frame")
	}
	return nil
}

func (p *Pipeline) fail(err error) {
	p.failOnce.Do(func() {
		log.WithError(err).Error("Pipeline stopped by fatal fault")
		p.fatal.Store(err)
		p.errCh <- err
	})
}

package worker

import (
	"context"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/engine/flowtable"
	"BotnetSpectra/internal/engine/pipeline"
	"BotnetSpectra/internal/engine/protocol"
	"BotnetSpectra/internal/fault"

	log "github.com/sirupsen/logrus"
)

// LiveOptions configures a live run.
type LiveOptions struct {
	Window         time.Duration
	Pipeline       pipeline.Options
	StatusInterval time.Duration
}

// LiveRun classifies the traffic of a capture source until it is
// cancelled or a fatal fault occurs.
type LiveRun struct {
	source   capture.Source
	worker   *Worker
	table    *flowtable.Table
	pipeline *pipeline.Pipeline
	status   time.Duration
}

// NewLiveRun wires source, flow table and worker together. Frames are
// normalized leniently.
func NewLiveRun(source capture.Source, w *Worker, opts LiveOptions) *LiveRun {
	table := flowtable.New(opts.Window)
	table.OnFlowDead(w.Process)
	normalizer := protocol.NewNormalizer(protocol.Lenient, source.LinkType())

	handler := func(f capture.Frame) error {
		rec, err := normalizer.ParsePacket(f.Data, f.Timestamp)
		if err != nil {
			return err
		}
		return table.Process(rec)
	}

	return &LiveRun{
		source:   source,
		worker:   w,
		table:    table,
		pipeline: pipeline.New(source, handler, opts.Pipeline),
		status:   opts.StatusInterval,
	}
}

// Stats returns the pipeline counters.
func (r *LiveRun) Stats() pipeline.Stats {
	return r.pipeline.Stats()
}

// Worker returns the worker flows are handed to.
func (r *LiveRun) Worker() *Worker {
	return r.worker
}

// Run processes frames until ctx is done or a fatal fault stops the
// pipeline. On the way out the queue is drained and every remaining flow
// is flushed through the worker.
func (r *LiveRun) Run(ctx context.Context) error {
	if err := r.pipeline.Start(); err != nil {
		return err
	}
	log.Println("Live capture started.")

	var tick <-chan time.Time
	if r.status > 0 {
		ticker := time.NewTicker(r.status)
		defer ticker.Stop()
		tick = ticker.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			log.Println("Shutdown signal received, stopping capture...")
			break loop
		case <-r.pipeline.Err():
			break loop
		case <-tick:
			r.logStatus()
		}
	}

	// A source that fails to stop has still delivered its frames; their
	// flows are flushed before the fault is reported.
	stopErr := r.pipeline.Stop()
	if stopErr != nil && fault.GetKind(stopErr) != fault.KindCapture {
		return stopErr
	}
	if err := r.table.Flush(); err != nil {
		return err
	}
	r.logStatus()
	log.Println("Live capture stopped.")
	return stopErr
}

func (r *LiveRun) logStatus() {
	log.Info(r.pipeline.Stats().String())
	if r.worker.Options().Classify {
		log.Info(r.worker.ClassStatistics())
	}
}

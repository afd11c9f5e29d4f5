package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// runCollector exports the counters of a live run on every scrape.
type runCollector struct {
	run Run

	framesDesc   *prometheus.Desc
	droppedDesc  *prometheus.Desc
	errorsDesc   *prometheus.Desc
	queuedDesc   *prometheus.Desc
	flowsDesc    *prometheus.Desc
	classesDesc  *prometheus.Desc
	capacityDesc *prometheus.Desc
}

func newRunCollector(run Run) *runCollector {
	return &runCollector{
		run:          run,
		framesDesc:   prometheus.NewDesc("bs_frames_total", "Frames received from the capture source", nil, nil),
		droppedDesc:  prometheus.NewDesc("bs_frames_dropped_total", "Frames dropped because the queue was full", nil, nil),
		errorsDesc:   prometheus.NewDesc("bs_frame_errors_total", "Frames that could not be processed", nil, nil),
		queuedDesc:   prometheus.NewDesc("bs_queue_length", "Frames waiting in the queue", nil, nil),
		capacityDesc: prometheus.NewDesc("bs_queue_capacity", "Maximum number of queued frames", nil, nil),
		flowsDesc:    prometheus.NewDesc("bs_flows_total", "Dead flows handed to the worker", nil, nil),
		classesDesc:  prometheus.NewDesc("bs_classified_flows_total", "Flows per computed class", []string{"class"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *runCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesDesc
	ch <- c.droppedDesc
	ch <- c.errorsDesc
	ch <- c.queuedDesc
	ch <- c.capacityDesc
	ch <- c.flowsDesc
	ch <- c.classesDesc
}

// Collect implements prometheus.Collector.
func (c *runCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.run.Stats()
	ch <- prometheus.MustNewConstMetric(c.framesDesc, prometheus.CounterValue, float64(stats.Total))
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(stats.Errors))
	ch <- prometheus.MustNewConstMetric(c.queuedDesc, prometheus.GaugeValue, float64(stats.Queued))
	ch <- prometheus.MustNewConstMetric(c.capacityDesc, prometheus.GaugeValue, float64(stats.MaxQueueSize))

	w := c.run.Worker()
	ch <- prometheus.MustNewConstMetric(c.flowsDesc, prometheus.CounterValue, float64(w.Flows()))
	if !w.Options().Classify {
		return
	}
	for _, cc := range w.ClassCounts() {
		ch <- prometheus.MustNewConstMetric(c.classesDesc, prometheus.CounterValue, float64(cc.Count), cc.Name)
	}
}

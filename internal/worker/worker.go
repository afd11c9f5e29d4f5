// Package worker classifies dead flows and reports them.
package worker

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/model"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Options selects what a Worker does with each flow.
type Options struct {
	Classify             bool
	PrintFlows           bool
	PrintClasses         bool
	PrintAbnormalOnly    bool
	NameAbnormalAsBotnet bool
}

// ClassifiedListener is notified about a classified flow.
type ClassifiedListener func(flow *model.Flow, class classify.FlowClass)

// ClassCount is the number of flows given one class.
type ClassCount struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

// Worker consumes dead flows: it classifies them, counts the classes,
// notifies listeners, prints them and hands them to the writers.
type Worker struct {
	opts       Options
	classifier classify.Classifier
	normalID   int

	outMu sync.Mutex
	out   io.Writer

	writers []model.Writer

	flows  atomic.Uint64
	counts []atomic.Uint64

	onClassified []ClassifiedListener
	onAbnormal   []ClassifiedListener
}

// New creates a worker printing to out. With NameAbnormalAsBotnet the
// classifier is wrapped in a binary normal/botnet overlay.
func New(c classify.Classifier, opts Options, out io.Writer) *Worker {
	if opts.NameAbnormalAsBotnet {
		c = classify.NewBinary(c)
	}
	if out == nil {
		out = io.Discard
	}
	return &Worker{
		opts:       opts,
		classifier: c,
		normalID:   c.Classes().Index(classify.NormalClassName),
		out:        out,
		counts:     make([]atomic.Uint64, c.Classes().Len()),
	}
}

// Classifier returns the classifier in use, overlay included.
func (w *Worker) Classifier() classify.Classifier {
	return w.classifier
}

// Options returns the options the worker was created with.
func (w *Worker) Options() Options {
	return w.opts
}

// NormalClassID returns the id of the normal class, or -1 if the classifier
// has none.
func (w *Worker) NormalClassID() int {
	return w.normalID
}

// AddWriter registers a store for classified flows.
func (w *Worker) AddWriter(wr model.Writer) {
	w.writers = append(w.writers, wr)
}

// OnFlowClassified registers a listener for every classified flow.
func (w *Worker) OnFlowClassified(l ClassifiedListener) {
	w.onClassified = append(w.onClassified, l)
}

// OnFlowClassifiedAsAbnormal registers a listener for flows not classified
// as normal.
func (w *Worker) OnFlowClassifiedAsAbnormal(l ClassifiedListener) {
	w.onAbnormal = append(w.onAbnormal, l)
}

// Process handles one dead flow. Only classification faults are returned.
func (w *Worker) Process(flow *model.Flow) error {
	w.flows.Inc()
	if !w.opts.Classify {
		if w.opts.PrintFlows {
			w.println(flow.String())
		}
		w.write(model.ClassifiedFlow{Flow: flow})
		return nil
	}

	class, err := classify.ValidateClassify(w.classifier, flow)
	if err != nil {
		return err
	}
	w.counts[class.ID()].Inc()

	abnormal := class.ID() != w.normalID
	for _, l := range w.onClassified {
		l(flow, class)
	}
	if abnormal {
		for _, l := range w.onAbnormal {
			l(flow, class)
		}
	}

	if w.shouldBePrinted(class) {
		switch {
		case w.opts.PrintFlows && w.opts.PrintClasses:
			w.println(flow.String() + ", " + class.Name())
		case w.opts.PrintFlows:
			w.println(flow.String())
		case w.opts.PrintClasses:
			w.println(class.Name())
		}
	}

	w.write(model.ClassifiedFlow{Flow: flow, Class: class.Name(), Abnormal: abnormal})
	return nil
}

func (w *Worker) shouldBePrinted(class classify.FlowClass) bool {
	return !w.opts.PrintAbnormalOnly || class.ID() != w.normalID
}

func (w *Worker) println(line string) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	if _, err := fmt.Fprintln(w.out, line); err != nil {
		log.WithError(err).Warn("Failed to print flow")
	}
}

func (w *Worker) write(rec model.ClassifiedFlow) {
	for _, wr := range w.writers {
		if err := wr.Write(rec); err != nil {
			log.WithError(err).Warnf("Failed to write flow %s", rec.Flow)
		}
	}
}

// Flows returns the number of processed flows.
func (w *Worker) Flows() uint64 {
	return w.flows.Load()
}

// ClassCounts returns the number of flows per class, in class order.
func (w *Worker) ClassCounts() []ClassCount {
	g := w.classifier.Classes()
	counts := make([]ClassCount, g.Len())
	for i := range counts {
		counts[i] = ClassCount{Name: g.Class(i).Name(), Count: w.counts[i].Load()}
	}
	return counts
}

// ClassStatistics renders the class counts the way the status display
// shows them.
func (w *Worker) ClassStatistics() string {
	var b strings.Builder
	b.WriteString("Flows statistics:")
	for _, c := range w.ClassCounts() {
		fmt.Fprintf(&b, "\n%d\t%s", c.Count, c.Name)
	}
	return b.String()
}

// Close closes every writer and returns the first error.
func (w *Worker) Close() error {
	var first error
	for _, wr := range w.writers {
		if err := wr.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

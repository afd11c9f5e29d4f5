package worker

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"

	"go.uber.org/atomic"
)

// LabelCount is the number of flows carrying one label.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// PerformanceReport compares a classifier against a labeled flow table.
// Positive means botnet: every label other than "normal" is botnet, and
// every computed class other than the normal class is botnet.
type PerformanceReport struct {
	Total          int64 `json:"total"`
	ComputedNormal int64 `json:"computed_normal"`
	ComputedBotnet int64 `json:"computed_botnet"`
	RealNormal     int64 `json:"real_normal"`
	RealBotnet     int64 `json:"real_botnet"`

	TP int64 `json:"tp"`
	TN int64 `json:"tn"`
	FP int64 `json:"fp"`
	FN int64 `json:"fn"`

	// FalseNegatives breaks FN down by the real label.
	FalseNegatives []LabelCount `json:"false_negatives"`
	// Computed counts flows per computed class, in class order.
	Computed []LabelCount `json:"computed"`
	// Real counts flows per label, in order of first appearance.
	Real []LabelCount `json:"real"`
	// EqualClasses is set when the labels in the table are exactly the
	// classifier's class names.
	EqualClasses bool `json:"equal_classes"`
}

// Evaluator accumulates a PerformanceReport flow by flow.
type Evaluator struct {
	classifier classify.Classifier
	normalID   int

	processed atomic.Int64
	report    PerformanceReport
	computed  []int64
	realOrder []string
	real      map[string]int64
	fn        map[string]int64
	found     map[string]bool
	equal     bool
}

// NewEvaluator creates an evaluator for c.
func NewEvaluator(c classify.Classifier) *Evaluator {
	g := c.Classes()
	e := &Evaluator{
		classifier: c,
		normalID:   g.Index(classify.NormalClassName),
		computed:   make([]int64, g.Len()),
		real:       make(map[string]int64),
		fn:         make(map[string]int64),
		found:      make(map[string]bool),
		equal:      true,
	}
	for _, name := range g.Names() {
		e.found[name] = false
	}
	return e
}

// Processed returns the number of flows evaluated so far. It is safe to
// call while Add runs on another goroutine.
func (e *Evaluator) Processed() int64 {
	return e.processed.Load()
}

// Add classifies one labeled flow and accounts the result.
func (e *Evaluator) Add(flow *model.Flow, label string) error {
	class, err := classify.ValidateClassify(e.classifier, flow)
	if err != nil {
		return err
	}

	if _, known := e.found[label]; e.equal && known {
		e.found[label] = true
	} else {
		e.equal = false
	}
	if _, seen := e.real[label]; !seen {
		e.realOrder = append(e.realOrder, label)
	}
	e.real[label]++

	r := &e.report
	computedBotnet := class.ID() != e.normalID
	realBotnet := label != classify.NormalClassName
	switch {
	case computedBotnet && realBotnet:
		r.ComputedBotnet++
		r.RealBotnet++
		r.TP++
	case computedBotnet:
		r.ComputedBotnet++
		r.RealNormal++
		r.FP++
	case realBotnet:
		r.ComputedNormal++
		r.RealBotnet++
		r.FN++
		e.fn[label]++
	default:
		r.ComputedNormal++
		r.RealNormal++
		r.TN++
	}
	r.Total++
	e.computed[class.ID()]++
	e.processed.Inc()
	return nil
}

// Report returns the accumulated results.
func (e *Evaluator) Report() PerformanceReport {
	r := e.report
	r.EqualClasses = e.equal
	for _, found := range e.found {
		r.EqualClasses = r.EqualClasses && found
	}

	g := e.classifier.Classes()
	r.Computed = make([]LabelCount, len(e.computed))
	for i, n := range e.computed {
		r.Computed[i] = LabelCount{Label: g.Class(i).Name(), Count: n}
	}
	r.Real = make([]LabelCount, 0, len(e.realOrder))
	for _, label := range e.realOrder {
		r.Real = append(r.Real, LabelCount{Label: label, Count: e.real[label]})
	}
	r.FalseNegatives = make([]LabelCount, 0, len(e.fn))
	for label, n := range e.fn {
		r.FalseNegatives = append(r.FalseNegatives, LabelCount{Label: label, Count: n})
	}
	sort.Slice(r.FalseNegatives, func(i, j int) bool {
		if r.FalseNegatives[i].Count != r.FalseNegatives[j].Count {
			return r.FalseNegatives[i].Count > r.FalseNegatives[j].Count
		}
		return r.FalseNegatives[i].Label < r.FalseNegatives[j].Label
	})
	return r
}

// EvaluatePerformance classifies every flow of a labeled flow table, whose
// 12th field is the real class name, and compares the results.
func EvaluatePerformance(r io.Reader, skipFirstLine bool, e *Evaluator) (PerformanceReport, error) {
	cr, err := newTableReader(r, skipFirstLine)
	if err != nil {
		return PerformanceReport{}, err
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return e.Report(), nil
		}
		if err != nil {
			return e.Report(), fault.Wrapf(err, fault.KindInput, "error reading flow #%d from the file", e.Processed())
		}
		flow, label, err := model.ParseLabeledFlow(fields)
		if err != nil {
			return e.Report(), fault.Wrapf(err, fault.KindInput, "error reading flow #%d from the file", e.Processed())
		}
		if err := e.Add(flow, label); err != nil {
			return e.Report(), err
		}
	}
}

// String renders the report for the terminal.
func (r PerformanceReport) String() string {
	p := func(v int64) string { return percent(v, r.Total) }
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d flows.\n", r.Total)
	fmt.Fprintf(&b, "Computed: %s as normal,\t%s as botnet.\n", p(r.ComputedNormal), p(r.ComputedBotnet))
	fmt.Fprintf(&b, "Real: %s as normal,\t%s as botnet.\n\n", p(r.RealNormal), p(r.RealBotnet))
	b.WriteString("Botnet/normal classes validation results:\n")
	fmt.Fprintf(&b, "%s TP,\t%s TN,\t%s True\n", p(r.TP), p(r.TN), p(r.TP+r.TN))
	fmt.Fprintf(&b, "%s FP,\t%s FN,\t%s False\n\n", p(r.FP), p(r.FN), p(r.FP+r.FN))
	b.WriteString("Flows contributed to FN were follows:\n")
	for _, c := range r.FalseNegatives {
		fmt.Fprintf(&b, "%s: %s\n", c.Label, percent(c.Count, r.FN))
	}
	b.WriteString("\n")

	if r.EqualClasses {
		byLabel := make(map[string]int64, len(r.Real))
		for _, c := range r.Real {
			byLabel[c.Label] = c.Count
		}
		b.WriteString("By class comparison:\n")
		for _, c := range r.Computed {
			fmt.Fprintf(&b, "%s: %s computed,\t%s real\n", c.Label, p(c.Count), p(byLabel[c.Label]))
		}
		return b.String()
	}

	b.WriteString("Computed classes statistics:\n")
	for _, c := range r.Computed {
		fmt.Fprintf(&b, "%s: %s\n", c.Label, p(c.Count))
	}
	b.WriteString("\nRead classes statistics:\n")
	for _, c := range r.Real {
		fmt.Fprintf(&b, "%s: %s\n", c.Label, p(c.Count))
	}
	return b.String()
}

func percent(v, total int64) string {
	if total == 0 {
		return fmt.Sprintf("%d (%.3f%%)", v, 0.0)
	}
	return fmt.Sprintf("%d (%.3f%%)", v, float64(v)/float64(total)*100)
}

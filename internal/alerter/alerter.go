package alerter

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/engine/sketch"
	"BotnetSpectra/internal/model"

	"github.com/gomarkdown/markdown"
	log "github.com/sirupsen/logrus"
)

// Metrics a rule can watch.
const (
	MetricAbnormalFlows = "abnormal_flows"
	MetricAbnormalRatio = "abnormal_ratio"
	MetricClassFlows    = "class_flows"
)

// sourceSketchWidth is the number of buckets per row of the abnormal
// source sketch.
const sourceSketchWidth = 4096

// SourceCount is a source address and its number of abnormal flows.
type SourceCount struct {
	Source netip.Addr
	Flows  uint32
}

// Window holds the counts of one check interval.
type Window struct {
	Flows      uint64
	Abnormal   uint64
	Classes    map[string]uint64
	TopSources []SourceCount
}

// Alerter is responsible for evaluating the classification results of each
// check interval against predefined rules and triggering notifications if
// rules are violated.
type Alerter struct {
	rules         []config.AlerterRule
	notifier      model.Notifier
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	mu         sync.Mutex
	window     Window
	topSources int
	sources    *sketch.CountMin
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg config.AlerterConfig, notifier model.Notifier) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("check_interval for alerter must be positive")
	}
	for _, rule := range cfg.Rules {
		switch rule.Metric {
		case MetricAbnormalFlows, MetricAbnormalRatio:
		case MetricClassFlows:
			if rule.Class == "" {
				return nil, fmt.Errorf("rule '%s' watches %s but names no class", rule.Name, rule.Metric)
			}
		default:
			return nil, fmt.Errorf("rule '%s' has unknown metric '%s'", rule.Name, rule.Metric)
		}
	}

	a := &Alerter{
		rules:         cfg.Rules,
		notifier:      notifier,
		checkInterval: interval,
		stopChan:      make(chan struct{}),
		window:        Window{Classes: make(map[string]uint64)},
		topSources:    cfg.TopSources,
	}
	if cfg.TopSources > 0 {
		a.sources = sketch.NewCountMin(sourceSketchWidth, 0, cfg.TopSourceMinFlows)
	}
	return a, nil
}

// FlowClassified counts a classified flow. It has the shape of a worker
// listener for every classified flow.
func (a *Alerter) FlowClassified(_ *model.Flow, class classify.FlowClass) {
	a.mu.Lock()
	a.window.Flows++
	a.window.Classes[class.Name()]++
	a.mu.Unlock()
}

// FlowAbnormal counts a flow not classified as normal and its source.
func (a *Alerter) FlowAbnormal(flow *model.Flow, _ classify.FlowClass) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window.Abnormal++
	if a.sources != nil && flow != nil && flow.Source.IsValid() {
		key := flow.Source.As16()
		a.sources.Insert(key[:])
	}
}

// Start begins the periodic evaluation of alert rules.
func (a *Alerter) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Println("Alerter started")

		ticker := time.NewTicker(a.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.Evaluate()
			case <-a.stopChan:
				return
			}
		}
	}()
}

// Stop stops the evaluation loop and evaluates the last, partial interval.
func (a *Alerter) Stop() {
	a.stopOnce.Do(func() {
		log.Println("Stopping Alerter...")
		close(a.stopChan)
		a.wg.Wait()
		a.Evaluate()
	})
}

// takeWindow returns the counts of the current interval and starts a new one.
func (a *Alerter) takeWindow() Window {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.window
	a.window = Window{Classes: make(map[string]uint64)}
	if a.sources != nil {
		for _, hh := range a.sources.HeavyHitters() {
			if len(w.TopSources) == a.topSources {
				break
			}
			w.TopSources = append(w.TopSources, SourceCount{
				Source: netip.AddrFrom16([16]byte(hh.Key)).Unmap(),
				Flows:  hh.Count,
			})
		}
		a.sources.Reset()
	}
	return w
}

// Evaluate checks the rules against the interval that just ended and sends
// one notification for everything triggered. It returns the number of
// triggered rules.
func (a *Alerter) Evaluate() int {
	w := a.takeWindow()

	var messages []string
	for _, rule := range a.rules {
		value, unit := observe(w, rule)
		if check(value, rule.Threshold, rule.Operator) {
			messages = append(messages, alertMessage(rule, value, unit, w))
		}
	}
	if len(messages) == 0 {
		return 0
	}

	log.Printf("Alerter evaluation completed. %d alert(s) triggered.", len(messages))

	summary := "# BotnetSpectra Alert Summary\n\n" +
		"The following alerts were triggered during the last check:\n\n---\n\n" +
		strings.Join(messages, "\n---\n\n") +
		topSourcesSection(w.TopSources)
	body := string(markdown.ToHTML([]byte(summary), nil, nil))

	if a.notifier != nil {
		subject := fmt.Sprintf("BotnetSpectra Alert Summary (%d Triggered)", len(messages))
		if err := a.notifier.Send(subject, body); err != nil {
			log.WithError(err).Error("Failed to send consolidated alert notification")
		} else {
			log.Info("Consolidated alert notification sent successfully.")
		}
	}
	return len(messages)
}

func observe(w Window, rule config.AlerterRule) (float64, string) {
	switch rule.Metric {
	case MetricAbnormalFlows:
		return float64(w.Abnormal), "flows"
	case MetricAbnormalRatio:
		if w.Flows == 0 {
			return 0, "of flows"
		}
		return float64(w.Abnormal) / float64(w.Flows), "of flows"
	case MetricClassFlows:
		return float64(w.Classes[rule.Class]), "flows"
	}
	return 0, ""
}

func alertMessage(rule config.AlerterRule, value float64, unit string, w Window) string {
	metric := rule.Metric
	if rule.Metric == MetricClassFlows {
		metric = fmt.Sprintf("%s(%s)", rule.Metric, rule.Class)
	}
	observed := fmt.Sprintf("%.0f %s", value, unit)
	if rule.Metric == MetricAbnormalRatio {
		observed = fmt.Sprintf("%.2f %s", value, unit)
	}
	return fmt.Sprintf("### Alert: %s\n\n"+
		"- **Metric:** `%s`\n"+
		"- **Condition:** `%s %.2f`\n"+
		"- **Observed Value:** `%s`\n"+
		"- **Flows in interval:** `%d` (%d abnormal)\n",
		rule.Name, metric, rule.Operator, rule.Threshold, observed, w.Flows, w.Abnormal)
}

func topSourcesSection(sources []SourceCount) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## Top abnormal sources\n\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- `%s`: %d flows\n", s.Source, s.Flows)
	}
	return b.String()
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		log.Printf("Warning: unknown operator '%s' in alerter rule", operator)
		return false
	}
}

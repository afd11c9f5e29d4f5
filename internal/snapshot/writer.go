// Package snapshot writes the summary of a finished run.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"BotnetSpectra/internal/engine/pipeline"
	"BotnetSpectra/internal/worker"
)

// SummaryData holds the counters of one run.
type SummaryData struct {
	Command    string    `json:"command"`
	Input      string    `json:"input,omitempty"`
	Classifier string    `json:"classifier,omitempty"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Flows      uint64    `json:"flows"`

	Classes     []worker.ClassCount       `json:"classes,omitempty"`
	Pipeline    *pipeline.Stats           `json:"pipeline,omitempty"`
	File        *worker.FileStats         `json:"file,omitempty"`
	Performance *worker.PerformanceReport `json:"performance,omitempty"`
}

// NewSummary starts the summary of a run of command on input.
func NewSummary(command, input, classifier string) *SummaryData {
	return &SummaryData{
		Command:    command,
		Input:      input,
		Classifier: classifier,
		Started:    time.Now().UTC(),
	}
}

// Collect copies the flow and class counters of w.
func (s *SummaryData) Collect(w *worker.Worker) {
	s.Flows = w.Flows()
	if w.Options().Classify {
		s.Classes = w.ClassCounts()
	}
}

// Writer handles writing summaries to disk.
type Writer struct{}

// NewWriter creates a new snapshot writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write stamps the summary as finished and writes it as indented JSON to
// path, creating its directory.
func (w *Writer) Write(summary *SummaryData, path string) error {
	if summary.Finished.IsZero() {
		summary.Finished = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	jsonEncoder := json.NewEncoder(file)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return file.Close()
}

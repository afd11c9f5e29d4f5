// Package sink holds the stores classified flows are written to.
package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"BotnetSpectra/internal/model"

	log "github.com/sirupsen/logrus"
)

// TextWriter appends classified flows to a labeled flow table: the 11 flow
// fields followed by the class name. The file can be read back by the
// table and performance runs.
type TextWriter struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	header bool
	count  int
}

// NewTextWriter creates the table file at path, with a header line when
// header is set.
func NewTextWriter(path string, header bool) (*TextWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for '%s': %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow table '%s': %w", path, err)
	}
	w := &TextWriter{file: file, buf: bufio.NewWriter(file), header: header}
	if header {
		if _, err := w.buf.WriteString("start, end, source, source port, destination, destination port, protocol, packets, outgoing packets, octets, payload octets, class\n"); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return w, nil
}

// Write implements model.Writer.
func (w *TextWriter) Write(rec model.ClassifiedFlow) error {
	line := rec.Flow.String()
	if rec.Class != "" {
		line += ", " + rec.Class
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write flow to '%s': %w", w.file.Name(), err)
	}
	w.count++
	return nil
}

// Close flushes the table and closes the file.
func (w *TextWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush '%s': %w", w.file.Name(), err)
	}
	log.Printf("Successfully wrote %d flows to %s", w.count, w.file.Name())
	return w.file.Close()
}

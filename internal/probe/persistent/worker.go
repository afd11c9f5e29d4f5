// Package persistent keeps a local copy of the frames a probe publishes.
package persistent

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/engine/protocol"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Worker writes frames to disk on its own goroutine.
type Worker struct {
	frameChan chan capture.Frame
	linkType  layers.LinkType
	stopOnce  sync.Once
	done      chan struct{}
	path      string

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWorker creates the output file under cfg.Path and starts writing.
func NewWorker(cfg config.PersistenceConfig, linkType layers.LinkType) (*Worker, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}

	bufferSize := cfg.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = 10000 // Default value
	}

	w := &Worker{
		frameChan: make(chan capture.Frame, bufferSize),
		linkType:  linkType,
		done:      make(chan struct{}),
	}

	var run func(io.Writer) error
	switch cfg.Encoding {
	case "", "pcap":
		run = w.runPcapWorker
	case "text":
		run = w.runTextWorker
	default:
		return nil, fmt.Errorf("unknown encoding '%s'", cfg.Encoding)
	}

	file, err := createOutputFile(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w.path = file.Name()

	go func() {
		defer close(w.done)
		if err := run(file); err != nil {
			log.WithError(err).Error("Persistent worker failed")
			// Keep draining so Enqueue never blocks.
			for range w.frameChan {
				w.dropped.Inc()
			}
		}
		if err := file.Close(); err != nil {
			log.Printf("Persistent worker: error closing file: %v", err)
		}
		log.Printf("Persistent worker stopped, %d frames written to %s.", w.written.Load(), w.path)
	}()

	log.Printf("Persistent worker started, encoding: %s, writing to: %s", cfg.Encoding, w.path)
	return w, nil
}

func createOutputFile(cfg config.PersistenceConfig) (*os.File, error) {
	ext := ".pcap"
	if cfg.Encoding == "text" {
		ext = ".log"
	}
	fileName := fmt.Sprintf("%s%s", time.Now().Format("2006-01-02_15-04-05.000"), ext)
	filePath := filepath.Join(cfg.Path, fileName)
	return os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

func (w *Worker) runPcapWorker(out io.Writer) error {
	pw := pcapgo.NewWriter(out)
	if err := pw.WriteFileHeader(65536, w.linkType); err != nil {
		return fmt.Errorf("failed to write file header: %w", err)
	}
	for f := range w.frameChan {
		ci := gopacket.CaptureInfo{Timestamp: f.Timestamp, CaptureLength: len(f.Data), Length: len(f.Data)}
		if err := pw.WritePacket(ci, f.Data); err != nil {
			return fmt.Errorf("error writing frame: %w", err)
		}
		w.written.Inc()
	}
	return nil
}

// runTextWorker writes one line per frame with the fields a flow is built
// from. Frames that cannot be parsed are written with their length only.
func (w *Worker) runTextWorker(out io.Writer) error {
	writer := bufio.NewWriter(out)
	normalizer := protocol.NewNormalizer(protocol.Lenient, w.linkType)
	for f := range w.frameChan {
		var line string
		rec, err := normalizer.ParsePacket(f.Data, f.Timestamp)
		if err != nil {
			line = fmt.Sprintf("%s - unparsable, Len: %d\n", f.Timestamp.UTC().Format("2006-01-02 15:04:05.000"), len(f.Data))
		} else {
			line = fmt.Sprintf("%s - %s:%d -> %s:%d, Proto: %d, Len: %d\n",
				rec.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
				rec.Source,
				rec.SrcPort,
				rec.Destination,
				rec.DstPort,
				rec.Protocol,
				rec.Octets,
			)
		}
		if _, err := writer.WriteString(line); err != nil {
			return fmt.Errorf("error writing frame: %w", err)
		}
		w.written.Inc()
	}
	return writer.Flush()
}

// Path returns the file frames are written to.
func (w *Worker) Path() string {
	return w.path
}

// Enqueue hands a frame to the worker. A full channel drops it.
func (w *Worker) Enqueue(f capture.Frame) {
	select {
	case w.frameChan <- f:
	default:
		if w.dropped.Inc() == 1 {
			log.Warn("Persistent worker: channel is full, dropping frames.")
		}
	}
}

// Stop closes the channel and waits until the file is closed. Enqueue must
// not be called afterwards.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.frameChan) })
	<-w.done
}

// Counts returns the number of written and dropped frames.
func (w *Worker) Counts() (written, dropped uint64) {
	return w.written.Load(), w.dropped.Load()
}

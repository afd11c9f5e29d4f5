package sink

import (
	"fmt"

	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/model"
	"BotnetSpectra/internal/wire"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// publisher is the part of *nats.Conn the writer uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSWriter publishes classified flows as protobuf messages.
type NATSWriter struct {
	pub          publisher
	nc           *nats.Conn
	subject      string
	abnormalOnly bool
	published    atomic.Uint64
}

// NewNATSWriter connects to NATS.
func NewNATSWriter(cfg config.NATSSinkConfig) (*NATSWriter, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	w := newNATSWriter(nc, cfg.Subject, cfg.AbnormalOnly)
	w.nc = nc
	return w, nil
}

func newNATSWriter(pub publisher, subject string, abnormalOnly bool) *NATSWriter {
	return &NATSWriter{pub: pub, subject: subject, abnormalOnly: abnormalOnly}
}

// Write implements model.Writer.
func (w *NATSWriter) Write(rec model.ClassifiedFlow) error {
	if w.abnormalOnly && !rec.Abnormal {
		return nil
	}
	data, err := wire.MarshalClassifiedFlow(rec)
	if err != nil {
		return err
	}
	if err := w.pub.Publish(w.subject, data); err != nil {
		return fmt.Errorf("failed to publish flow: %w", err)
	}
	w.published.Inc()
	return nil
}

// Published returns the number of flows published.
func (w *NATSWriter) Published() uint64 {
	return w.published.Load()
}

// Close drains and closes the NATS connection.
func (w *NATSWriter) Close() error {
	if w.nc == nil {
		return nil
	}
	if err := w.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	log.Printf("NATS connection drained after %d flows.", w.Published())
	return nil
}

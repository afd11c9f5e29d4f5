package probe

import (
	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/wire"

	"github.com/google/gopacket/layers"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Publisher is responsible for publishing captured frames to a NATS topic.
type Publisher struct {
	nc       *nats.Conn
	subject  string
	linkType layers.LinkType

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewPublisher creates a new NATS publisher for frames of linkType.
func NewPublisher(cfg config.ProbeConfig, linkType layers.LinkType) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject, linkType: linkType}, nil
}

// Publish serializes a frame to protobuf and publishes it to the configured
// NATS subject.
func (p *Publisher) Publish(f capture.Frame) error {
	data, err := wire.MarshalFrame(f, p.linkType)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Handle publishes a frame and counts failures instead of returning them,
// so it can be used as a capture.FrameHandler.
func (p *Publisher) Handle(f capture.Frame) {
	if err := p.Publish(f); err != nil {
		if p.failed.Inc() == 1 {
			log.WithError(err).Warn("Failed to publish frame")
		}
		return
	}
	p.published.Inc()
}

// Counts returns the number of published and failed frames.
func (p *Publisher) Counts() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}

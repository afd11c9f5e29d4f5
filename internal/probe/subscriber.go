package probe

import (
	"fmt"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/wire"

	"github.com/google/gopacket/layers"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Subscriber is a capture source fed by a probe over NATS.
type Subscriber struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	subject  string
	linkType layers.LinkType

	invalid atomic.Uint64
}

// NewSubscriber creates a new NATS subscriber. Frames are expected to be
// captured on linkType; frames of another link type are dropped.
func NewSubscriber(cfg config.ProbeConfig, linkType layers.LinkType) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject, linkType: linkType}, nil
}

// LinkType implements capture.Source.
func (s *Subscriber) LinkType() layers.LinkType {
	return s.linkType
}

// Start subscribes to the subject and hands every decoded frame to handler.
func (s *Subscriber) Start(handler capture.FrameHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		f, err := s.decode(msg.Data)
		if err != nil {
			if s.invalid.Inc() == 1 {
				log.WithError(err).Warnf("Dropping invalid message on '%s'", s.subject)
			}
			return
		}
		handler(f)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for frames...", s.subject)
	return nil
}

func (s *Subscriber) decode(data []byte) (capture.Frame, error) {
	f, linkType, err := wire.UnmarshalFrame(data)
	if err != nil {
		return capture.Frame{}, err
	}
	if linkType != s.linkType {
		return capture.Frame{}, fmt.Errorf("frame of link type %s, want %s", linkType, s.linkType)
	}
	return f, nil
}

// Invalid returns the number of messages that could not be decoded.
func (s *Subscriber) Invalid() uint64 {
	return s.invalid.Load()
}

// Stop unsubscribes and closes the NATS connection. The connection is
// closed even when unsubscribing fails; that error is returned.
func (s *Subscriber) Stop() error {
	var err error
	if s.sub != nil {
		if uerr := s.sub.Unsubscribe(); uerr != nil {
			err = fmt.Errorf("failed to unsubscribe from %s: %w", s.subject, uerr)
		}
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
	return err
}

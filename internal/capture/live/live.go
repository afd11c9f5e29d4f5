// Package live captures frames from network devices with libpcap.
package live

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/config"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

// Source captures frames from a network device with libpcap.
type Source struct {
	device string
	handle *pcap.Handle

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// Open opens cfg.Capture.Device for capturing.
func Open(cfg *config.Config) (*Source, error) {
	c := cfg.Capture
	if c.Device == "" {
		return nil, errors.New("no capture device configured")
	}
	handle, err := pcap.OpenLive(c.Device, c.SnapLen, c.Promiscuous, cfg.ReadTimeout())
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", c.Device, err)
	}
	if c.BPFFilter != "" {
		if err := handle.SetBPFFilter(c.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid BPF filter '%s': %w", c.BPFFilter, err)
		}
	}
	return &Source{
		device: c.Device,
		handle: handle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// LinkType implements capture.Source.
func (s *Source) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// Start implements capture.Source.
func (s *Source) Start(handler capture.FrameHandler) error {
	if s.started {
		return fmt.Errorf("capture on %s already started", s.device)
	}
	s.started = true
	go s.readLoop(handler)
	log.Printf("Capture started on device %s (link type %s)", s.device, s.LinkType())
	return nil
}

func (s *Source) readLoop(handler capture.FrameHandler) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		data, ci, err := s.handle.ReadPacketData()
		switch {
		case err == nil:
			handler(capture.Frame{Timestamp: ci.Timestamp, Data: data})
		case err == pcap.NextErrorTimeoutExpired:
		case err == io.EOF:
			return
		default:
			log.WithError(err).Warnf("Read from %s failed", s.device)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// Stop implements capture.Source.
func (s *Source) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.started {
			<-s.done
		}
		if stats, err := s.handle.Stats(); err == nil {
			log.Printf("Capture on %s stopped: %d received, %d dropped by kernel", s.device, stats.PacketsReceived, stats.PacketsDropped)
		}
		s.handle.Close()
	})
	return nil
}

// Device describes a capture device.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// ListDevices returns the devices libpcap can capture on.
func ListDevices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	devices := make([]Device, 0, len(ifs))
	for _, i := range ifs {
		d := Device{Name: i.Name, Description: i.Description}
		for _, a := range i.Addresses {
			d.Addresses = append(d.Addresses, a.IP.String())
		}
		devices = append(devices, d)
	}
	return devices, nil
}

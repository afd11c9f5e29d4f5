package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/capture/live"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/engine/protocol"
	"BotnetSpectra/internal/probe"
	"BotnetSpectra/internal/probe/persistent"

	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
)

// reportInterval is how often the publish counters are logged.
const reportInterval = 10 * time.Second

func main() {
	// --- Command-Line Flag Parsing ---
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture frames from (overrides capture.device).")
	configPath := flag.String("config", "", "YAML configuration file.")
	persist := flag.Bool("persist", false, "Also write captured frames to probe.persistence.path.")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *iface != "" {
		cfg.Capture.Device = *iface
	}
	if *persist {
		cfg.Probe.Persistence.Enabled = true
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Mode Dispatch ---
	var err error
	switch *mode {
	case "pub":
		err = runProbe(ctx, cfg)
	case "sub":
		err = runSubscriber(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// runProbe captures frames and publishes them to NATS until ctx is done.
func runProbe(ctx context.Context, cfg *config.Config) error {
	if cfg.Capture.Device == "" {
		flag.Usage()
		return fmt.Errorf("-iface flag or capture.device is required for probe mode")
	}
	log.Printf("Starting bs-probe in PROBE mode on interface: %s", cfg.Capture.Device)

	src, err := live.Open(cfg)
	if err != nil {
		return err
	}
	pub, err := probe.NewPublisher(cfg.Probe, src.LinkType())
	if err != nil {
		src.Stop()
		return err
	}
	defer pub.Close()

	handler := pub.Handle
	var pw *persistent.Worker
	if cfg.Probe.Persistence.Enabled {
		pw, err = persistent.NewWorker(cfg.Probe.Persistence, src.LinkType())
		if err != nil {
			src.Stop()
			return err
		}
		log.Printf("Persisting frames to %s", pw.Path())
		handler = func(f capture.Frame) {
			pub.Handle(f)
			pw.Enqueue(f)
		}
	}

	if err := src.Start(handler); err != nil {
		return err
	}
	log.Println("Capture started successfully. Publishing frames to NATS...")

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ticker.C:
			published, failed := pub.Counts()
			log.Printf("%d frames published, %d failed...", published, failed)
		}
	}

	log.Println("Shutdown signal received, cleaning up...")
	src.Stop()
	if pw != nil {
		pw.Stop()
		written, dropped := pw.Counts()
		log.Printf("Persisted %d frames, dropped %d", written, dropped)
	}
	published, failed := pub.Counts()
	log.Printf("Published %d frames, %d failed", published, failed)
	return nil
}

// runSubscriber prints a line for every frame received from NATS.
func runSubscriber(ctx context.Context, cfg *config.Config) error {
	log.Println("Starting bs-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg.Probe, layers.LinkTypeEthernet)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}

	normalizer := protocol.NewNormalizer(protocol.Lenient, sub.LinkType())
	handler := func(f capture.Frame) {
		rec, err := normalizer.ParsePacket(f.Data, f.Timestamp)
		if err != nil {
			log.Printf("Received frame of %d bytes: %v", len(f.Data), err)
			return
		}
		log.Printf("Received %s:%d -> %s:%d, proto %d, %d octets",
			rec.Source, rec.SrcPort, rec.Destination, rec.DstPort, rec.Protocol, rec.Octets)
	}
	if err := sub.Start(handler); err != nil {
		return fmt.Errorf("subscriber failed to start: %w", err)
	}

	<-ctx.Done()
	log.Println("Shutdown signal received, cleaning up...")
	if n := sub.Invalid(); n > 0 {
		log.Warnf("%d messages could not be decoded", n)
	}
	return sub.Stop()
}

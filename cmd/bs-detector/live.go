package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BotnetSpectra/internal/api"
	"BotnetSpectra/internal/capture"
	"BotnetSpectra/internal/capture/live"
	"BotnetSpectra/internal/engine/pipeline"
	"BotnetSpectra/internal/probe"
	"BotnetSpectra/internal/worker"

	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newLiveCmd(opts *options) *cobra.Command {
	var device, filter string
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Classify the traffic of a network interface.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("device") {
				cfg.Capture.Device = device
			}
			if cmd.Flags().Changed("bpf") {
				cfg.Capture.BPFFilter = filter
			}
			source, err := live.Open(cfg)
			if err != nil {
				return err
			}
			return runLive(cmd.Context(), opts, "live", cfg.Capture.Device, source)
		},
	}
	cmd.Flags().StringVarP(&device, "device", "i", "", "interface to capture on")
	cmd.Flags().StringVar(&filter, "bpf", "", "BPF filter applied to the capture")
	return cmd
}

func newNATSCmd(opts *options) *cobra.Command {
	var url, subject string
	cmd := &cobra.Command{
		Use:   "nats",
		Short: "Classify the frames a remote bs-probe publishes over NATS.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("url") {
				cfg.Probe.NATSURL = url
			}
			if cmd.Flags().Changed("subject") {
				cfg.Probe.Subject = subject
			}
			source, err := probe.NewSubscriber(cfg.Probe, layers.LinkTypeEthernet)
			if err != nil {
				return err
			}
			return runLive(cmd.Context(), opts, "nats", cfg.Probe.Subject, source)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "NATS server URL")
	cmd.Flags().StringVar(&subject, "subject", "", "subject the probe publishes frames on")
	return cmd
}

func runLive(parent context.Context, opts *options, command, input string, source capture.Source) error {
	cfg := opts.cfg
	s, err := newSession(cfg, command, input)
	if err != nil {
		source.Stop()
		return err
	}

	run := worker.NewLiveRun(source, s.worker, worker.LiveOptions{
		Window: cfg.FlowWindow(),
		Pipeline: pipeline.Options{
			MaxQueueSize: cfg.Pipeline.MaxQueueSize,
			IdleDelay:    cfg.IdleDelay(),
		},
		StatusInterval: cfg.StatusInterval(),
	})

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		server := api.NewServer(cfg.API, run)
		if err := server.Start(); err != nil {
			source.Stop()
			return s.close(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("API server forced to shutdown")
			}
		}()
	}

	err = run.Run(ctx)
	stats := run.Stats()
	s.summary.Pipeline = &stats
	return s.close(err)
}

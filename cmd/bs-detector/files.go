package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/snapshot"
	"BotnetSpectra/internal/worker"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newPcapCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcap FILE...",
		Short: "Classify the traffic of pcap or pcapng capture files.",
		Long: "Each file is replayed through its own flow table; the remaining " +
			"flows are flushed at the end of every file.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			mode, err := worker.ParseErrorMode(cfg.Capture.ErrorMode)
			if err != nil {
				return err
			}
			s, err := newSession(cfg, "pcap", strings.Join(args, ","))
			if err != nil {
				return err
			}

			var total worker.FileStats
			for _, path := range args {
				stats, err := worker.RunFile(path, mode, cfg.FlowWindow(), s.worker)
				total.Frames += stats.Frames
				total.Skipped += stats.Skipped
				if err != nil {
					s.summary.File = &total
					return s.close(err)
				}
			}
			s.summary.File = &total
			return s.close(nil)
		},
	}
	cmd.Flags().StringVar(&opts.errorMode, "error-mode", "", "unparsable frames: strict, lenient or skip")
	return cmd
}

// openInput opens a table file; "-" is stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrapf(err, fault.KindInput, "cannot open flow table")
	}
	return f, nil
}

func newTableCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table FILE",
		Short: "Classify the flows of a flow table (CSV, \"-\" for stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			s, err := newSession(cfg, "table", args[0])
			if err != nil {
				return err
			}
			n, err := worker.RunTable(in, cfg.Report.SkipFirstLine, s.worker)
			log.Printf("Processed %d flows from '%s'.", n, args[0])
			return s.close(err)
		},
	}
	cmd.Flags().BoolVar(&opts.skipFirstLine, "skipFirstLine", false, "skip the header line of the table")
	return cmd
}

func newPerformanceCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance FILE",
		Short: "Evaluate the classifier against a labeled flow table.",
		Long: "Every line of the table holds a flow and, in its 12th field, the " +
			"name of its real class. Flows labeled \"normal\" are normal, all " +
			"others are botnet.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerformance(opts.cfg, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.skipFirstLine, "skipFirstLine", false, "skip the header line of the table")
	return cmd
}

func runPerformance(cfg *config.Config, path string) error {
	c, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, closeOut, err := openOutput(cfg)
	if err != nil {
		return err
	}
	defer closeOut()

	e := worker.NewEvaluator(c)
	done := make(chan struct{})
	defer close(done)
	if interval := cfg.StatusInterval(); interval > 0 {
		go progress(e, interval, done)
	}

	report, err := worker.EvaluatePerformance(in, cfg.Report.SkipFirstLine, e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(out, report.String()); err != nil {
		return err
	}

	if summaryPath := cfg.Report.SummaryPath; summaryPath != "" {
		summary := snapshot.NewSummary("performance", path, cfg.Classifier.Name)
		summary.Flows = uint64(report.Total)
		summary.Performance = &report
		if err := snapshot.NewWriter().Write(summary, summaryPath); err != nil {
			return err
		}
	}
	return nil
}

func progress(e *worker.Evaluator, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			log.Infof("Processed %d flows...", e.Processed())
		}
	}
}

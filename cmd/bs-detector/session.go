package main

import (
	"fmt"
	"io"
	"os"

	"BotnetSpectra/internal/alerter"
	"BotnetSpectra/internal/classify"
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/notification"
	"BotnetSpectra/internal/sink"
	"BotnetSpectra/internal/snapshot"
	"BotnetSpectra/internal/worker"

	log "github.com/sirupsen/logrus"
)

// session is the worker of one command with everything attached to it.
type session struct {
	cfg     *config.Config
	worker  *worker.Worker
	alerter *alerter.Alerter
	summary *snapshot.SummaryData

	out      io.Writer
	closeOut func() error
}

// openOutput returns the configured report output, stdout by default.
func openOutput(cfg *config.Config) (io.Writer, func() error, error) {
	if cfg.Report.Output == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(cfg.Report.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func newClassifier(cfg *config.Config) (classify.Classifier, error) {
	c, err := classify.New(cfg.Classifier.Name)
	if err != nil {
		return nil, err
	}
	log.Debugf("Using classifier '%s' with classes %s", cfg.Classifier.Name, c.Classes())
	return c, nil
}

func newSession(cfg *config.Config, command, input string) (*session, error) {
	c, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	out, closeOut, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, out: out, closeOut: closeOut}
	s.worker = worker.New(c, worker.Options{
		Classify:             cfg.Classifier.Classify,
		PrintFlows:           cfg.Report.PrintFlows,
		PrintClasses:         cfg.Report.PrintClasses,
		PrintAbnormalOnly:    cfg.Report.PrintAbnormalOnly,
		NameAbnormalAsBotnet: cfg.Classifier.NameAbnormalAsBotnet,
	}, out)

	writers, err := sink.Open(cfg.Sinks)
	if err != nil {
		closeOut()
		return nil, err
	}
	for _, w := range writers {
		s.worker.AddWriter(w)
	}

	if cfg.Alerter.Enabled {
		if !cfg.Classifier.Classify {
			log.Warn("Alerter is enabled but classification is off; no alerts will be raised.")
		}
		a, err := alerter.NewAlerter(cfg.Alerter, notification.NewEmailNotifier(cfg.SMTP))
		if err != nil {
			s.worker.Close()
			closeOut()
			return nil, err
		}
		s.worker.OnFlowClassified(a.FlowClassified)
		s.worker.OnFlowClassifiedAsAbnormal(a.FlowAbnormal)
		a.Start()
		s.alerter = a
	}

	classifierName := ""
	if cfg.Classifier.Classify {
		classifierName = cfg.Classifier.Name
	}
	s.summary = snapshot.NewSummary(command, input, classifierName)
	return s, nil
}

// close stops the alerter, closes sinks and output, and writes the run
// summary. runErr is the result of the run; it is returned unless it is nil.
func (s *session) close(runErr error) error {
	if s.alerter != nil {
		s.alerter.Stop()
	}
	err := runErr
	keep := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	keep(s.worker.Close())
	keep(s.closeOut())

	if s.worker.Options().Classify {
		log.Info(s.worker.ClassStatistics())
	}

	if path := s.cfg.Report.SummaryPath; path != "" {
		s.summary.Collect(s.worker)
		if werr := snapshot.NewWriter().Write(s.summary, path); werr != nil {
			keep(werr)
		} else {
			log.Printf("Run summary written to %s", path)
		}
	}
	return err
}

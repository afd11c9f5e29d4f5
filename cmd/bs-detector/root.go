package main

import (
	"fmt"
	"strings"

	"BotnetSpectra/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options holds the flags shared by every command.
type options struct {
	configPath string
	verbose    bool
	quiet      bool

	output               string
	summary              string
	classifier           string
	window               string
	classify             bool
	printFlows           bool
	printClasses         bool
	printAbnormalOnly    bool
	nameAbnormalAsBotnet bool
	skipFirstLine        bool
	errorMode            string

	cfg *config.Config
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "bs-detector",
		Short: "Detects botnet traffic in live captures, capture files and flow tables.",
		Long: "bs-detector groups packets into bidirectional flows over a tumbling " +
			"time window and hands every finished flow to a classifier.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug messages and print error stacks")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "log warnings and errors only")
	pf.StringVarP(&opts.output, "output", "o", "", "write printed flows and classes to this file instead of stdout")
	pf.StringVar(&opts.summary, "summary", "", "write a JSON run summary to this file")
	pf.StringVar(&opts.classifier, "classifier", "", "name of the classifier to use")
	pf.StringVar(&opts.window, "window", "", "flow window, e.g. 60s")
	pf.BoolVar(&opts.classify, "classify", false, "classify the flows")
	pf.BoolVar(&opts.printFlows, "printFlows", false, "print every flow")
	pf.BoolVar(&opts.printClasses, "printClasses", false, "print the class of every flow")
	pf.BoolVar(&opts.printAbnormalOnly, "printAbnormalOnly", false, "print only flows not classified as normal")
	pf.BoolVar(&opts.nameAbnormalAsBotnet, "nameAbnormalAsBotnet", false, "report every abnormal class as botnet")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		newLiveCmd(opts),
		newNATSCmd(opts),
		newPcapCmd(opts),
		newTableCmd(opts),
		newPerformanceCmd(opts),
		newDevicesCmd(opts),
		newClassifiersCmd(opts),
	)
	return root
}

// load reads the configuration, applies the flags that were set on the
// command line and configures logging.
func (o *options) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(o.configPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Report.Output = o.output
	}
	if flags.Changed("summary") {
		cfg.Report.SummaryPath = o.summary
	}
	if flags.Changed("classifier") {
		cfg.Classifier.Name = o.classifier
	}
	if flags.Changed("window") {
		cfg.Flow.Window = o.window
	}
	if flags.Changed("classify") {
		cfg.Classifier.Classify = o.classify
	}
	if flags.Changed("nameAbnormalAsBotnet") {
		cfg.Classifier.NameAbnormalAsBotnet = o.nameAbnormalAsBotnet
	}
	if flags.Changed("printFlows") {
		cfg.Report.PrintFlows = o.printFlows
	}
	if flags.Changed("printClasses") {
		cfg.Report.PrintClasses = o.printClasses
	}
	if flags.Changed("printAbnormalOnly") {
		cfg.Report.PrintAbnormalOnly = o.printAbnormalOnly
	}
	if flags.Changed("skipFirstLine") {
		cfg.Report.SkipFirstLine = o.skipFirstLine
	}
	if flags.Changed("error-mode") {
		cfg.Capture.ErrorMode = o.errorMode
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg

	return setupLogging(cfg.Log, o.verbose, o.quiet)
}

func setupLogging(cfg config.LogConfig, verbose, quiet bool) error {
	if cfg.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("invalid log.level: %w", err)
		}
		level = l
	}
	switch {
	case verbose:
		level = log.DebugLevel
	case quiet:
		level = log.WarnLevel
	}
	log.SetLevel(level)
	return nil
}

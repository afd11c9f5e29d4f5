package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FlowConfig holds the flow table settings.
type FlowConfig struct {
	// Window is the epoch length after which all flows die.
	Window string `yaml:"window"`
}

// CaptureConfig holds the settings of live and file capture.
type CaptureConfig struct {
	Device      string `yaml:"device"`
	SnapLen     int32  `yaml:"snap_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	BPFFilter   string `yaml:"bpf_filter"`
	ReadTimeout string `yaml:"read_timeout"`
	// ErrorMode selects how capture file replay treats unparsable frames:
	// strict, lenient or skip.
	ErrorMode string `yaml:"error_mode"`
}

// PipelineConfig holds the live ingestion queue settings.
type PipelineConfig struct {
	MaxQueueSize   int    `yaml:"max_queue_size"`
	IdleDelay      string `yaml:"idle_delay"`
	StatusInterval string `yaml:"status_interval"`
}

// ClassifierConfig selects the classifier and how its results are used.
type ClassifierConfig struct {
	Name                 string `yaml:"name"`
	Classify             bool   `yaml:"classify"`
	NameAbnormalAsBotnet bool   `yaml:"name_abnormal_as_botnet"`
}

// ReportConfig controls what is printed and where.
type ReportConfig struct {
	PrintFlows        bool   `yaml:"print_flows"`
	PrintClasses      bool   `yaml:"print_classes"`
	PrintAbnormalOnly bool   `yaml:"print_abnormal_only"`
	Output            string `yaml:"output"`
	SummaryPath       string `yaml:"summary_path"`
	SkipFirstLine     bool   `yaml:"skip_first_line"`
}

// PersistenceConfig configures the probe's local copy of what it captures.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Encoding is pcap or text.
	Encoding          string `yaml:"encoding"`
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
}

// ProbeConfig holds the NATS settings shared by the probe and the detector.
type ProbeConfig struct {
	NATSURL     string            `yaml:"nats_url"`
	Subject     string            `yaml:"subject"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Database      string `yaml:"database"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
}

// NATSSinkConfig configures publishing of classified flows.
type NATSSinkConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Subject      string `yaml:"subject"`
	AbnormalOnly bool   `yaml:"abnormal_only"`
}

// TextSinkConfig configures the labeled flow table written next to a run.
type TextSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Header  bool   `yaml:"header"`
}

// SinksConfig lists the stores classified flows are written to.
type SinksConfig struct {
	Text       TextSinkConfig   `yaml:"text"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSSinkConfig   `yaml:"nats"`
}

// APIConfig configures the status endpoints of a live run.
type APIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// AlerterRule defines a single threshold rule.
type AlerterRule struct {
	Name string `yaml:"name"`
	// Metric is one of abnormal_flows, abnormal_ratio or class_flows.
	Metric    string  `yaml:"metric"`
	Class     string  `yaml:"class"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the alerter settings.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval string        `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
	// TopSources is how many of the sources with the most abnormal flows
	// an alert lists. Zero disables the list.
	TopSources int `yaml:"top_sources"`
	// TopSourceMinFlows is the number of abnormal flows a source needs to
	// be listed.
	TopSourceMinFlows uint32 `yaml:"top_source_min_flows"`
}

// SMTPConfig holds the settings of the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Flow       FlowConfig       `yaml:"flow"`
	Capture    CaptureConfig    `yaml:"capture"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Report     ReportConfig     `yaml:"report"`
	Probe      ProbeConfig      `yaml:"probe"`
	Sinks      SinksConfig      `yaml:"sinks"`
	API        APIConfig        `yaml:"api"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Flow: FlowConfig{Window: "60s"},
		Capture: CaptureConfig{
			SnapLen:     65536,
			Promiscuous: true,
			ReadTimeout: "100ms",
			ErrorMode:   "skip",
		},
		Pipeline: PipelineConfig{
			MaxQueueSize:   1000000,
			IdleDelay:      "64ms",
			StatusInterval: "1s",
		},
		Classifier: ClassifierConfig{Name: "default"},
		Probe: ProbeConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "bs.frames.raw",
			Persistence: PersistenceConfig{
				Path:              "data/probe",
				Encoding:          "pcap",
				ChannelBufferSize: 10000,
			},
		},
		Sinks: SinksConfig{
			Text: TextSinkConfig{Path: "flows.csv", Header: true},
			ClickHouse: ClickHouseConfig{
				Host:          "127.0.0.1",
				Port:          9000,
				Database:      "default",
				Username:      "default",
				BatchSize:     1000,
				FlushInterval: "5s",
			},
			NATS: NATSSinkConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "bs.flows.classified",
			},
		},
		API: APIConfig{
			ListenAddr:     ":8080",
			GRPCListenAddr: ":50051",
		},
		Alerter: AlerterConfig{
			CheckInterval:     "1m",
			TopSources:        5,
			TopSourceMinFlows: 2,
		},
		SMTP: SMTPConfig{Port: 587},
		Log:  LogConfig{Level: "info"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of Default.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that can be checked without side effects.
func (c *Config) Validate() error {
	durations := map[string]string{
		"flow.window":                     c.Flow.Window,
		"capture.read_timeout":            c.Capture.ReadTimeout,
		"pipeline.idle_delay":             c.Pipeline.IdleDelay,
		"pipeline.status_interval":        c.Pipeline.StatusInterval,
		"sinks.clickhouse.flush_interval": c.Sinks.ClickHouse.FlushInterval,
		"alerter.check_interval":          c.Alerter.CheckInterval,
	}
	for name, value := range durations {
		if _, err := ParseDuration(name, value, 0); err != nil {
			return err
		}
	}
	if c.Sinks.Text.Enabled && c.Sinks.Text.Path == "" {
		return fmt.Errorf("sinks.text.path is required when the text sink is enabled")
	}
	if c.Alerter.TopSources < 0 {
		return fmt.Errorf("alerter.top_sources must not be negative")
	}
	if c.Pipeline.MaxQueueSize < 0 {
		return fmt.Errorf("pipeline.max_queue_size must not be negative")
	}
	switch c.Probe.Persistence.Encoding {
	case "", "pcap", "text":
	default:
		return fmt.Errorf("unknown probe.persistence.encoding '%s'", c.Probe.Persistence.Encoding)
	}
	switch c.Capture.ErrorMode {
	case "", "strict", "lenient", "skip":
	default:
		return fmt.Errorf("unknown capture.error_mode '%s'", c.Capture.ErrorMode)
	}
	return nil
}

// ParseDuration parses a configured duration; empty selects def.
func ParseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be a positive duration", name)
	}
	return d, nil
}

// FlowWindow returns the parsed flow window.
func (c *Config) FlowWindow() time.Duration {
	d, _ := ParseDuration("flow.window", c.Flow.Window, 60*time.Second)
	return d
}

// IdleDelay returns the parsed drain loop idle delay.
func (c *Config) IdleDelay() time.Duration {
	d, _ := ParseDuration("pipeline.idle_delay", c.Pipeline.IdleDelay, 64*time.Millisecond)
	return d
}

// StatusInterval returns the parsed status interval.
func (c *Config) StatusInterval() time.Duration {
	d, _ := ParseDuration("pipeline.status_interval", c.Pipeline.StatusInterval, time.Second)
	return d
}

// ReadTimeout returns the parsed capture read timeout.
func (c *Config) ReadTimeout() time.Duration {
	d, _ := ParseDuration("capture.read_timeout", c.Capture.ReadTimeout, 100*time.Millisecond)
	return d
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings of the latency analyzer and its gRPC service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Capture     CaptureConfig     `yaml:"capture"`
	Correlation CorrelationConfig `yaml:"correlation"`
	EventLog    EventLogConfig    `yaml:"eventLog"`
	Report      ReportConfig      `yaml:"report"`
	Runs        RunsConfig        `yaml:"runs"`
	Rules       RulesConfig       `yaml:"rules"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Publish     PublishConfig     `yaml:"publish"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CaptureConfig selects the capture backend and the ports to analyse.
type CaptureConfig struct {
	Backend    string         `yaml:"backend"`
	TsharkPath string         `yaml:"tsharkPath"`
	Targets    []TargetConfig `yaml:"targets"`
}

// TargetConfig is one analysed port.
type TargetConfig struct {
	Name   string `yaml:"name"`
	Port   int    `yaml:"port"`
	Role   string `yaml:"role"`
	Suffix string `yaml:"suffix"`
}

// CorrelationConfig holds matching and linking knobs.
type CorrelationConfig struct {
	MatchTolerance        time.Duration `yaml:"matchTolerance"`
	LinkTolerance         time.Duration `yaml:"linkTolerance"`
	ResponseTypes         []string      `yaml:"responseTypes"`
	RetainMatchedRequests bool          `yaml:"retainMatchedRequests"`
	OutlierThreshold      float64       `yaml:"outlierThreshold"`
}

// EventLogConfig points at the agent database holding the event log.
type EventLogConfig struct {
	Driver         string        `yaml:"driver"`
	Path           string        `yaml:"path"`
	DSN            string        `yaml:"dsn"`
	HubAlias       string        `yaml:"hubAlias"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxRetryTime   time.Duration `yaml:"maxRetryTime"`
}

// ReportConfig controls CSV and console output.
type ReportConfig struct {
	OutputDir string `yaml:"outputDir"`
	Details   bool   `yaml:"details"`
	Console   bool   `yaml:"console"`
}

// RunsConfig holds defaults for multi-run averaging.
type RunsConfig struct {
	BaseDir  string   `yaml:"baseDir"`
	Network  string   `yaml:"network"`
	Slots    string   `yaml:"slots"`
	Suffixes []string `yaml:"suffixes"`
}

// RulesConfig controls latency rule loading.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls metric export for batch runs.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

// PublishConfig controls NATS publication of analysis results.
type PublishConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_LATENCY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without file or environment input.
func Default() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Capture: CaptureConfig{
			Backend:    "tshark",
			TsharkPath: "tshark",
			Targets: []TargetConfig{
				{Name: "mediator", Port: 3000, Role: "primary", Suffix: "mediator"},
				{Name: "anvil", Port: 8545, Role: "secondary", Suffix: "anvil"},
			},
		},
		Correlation: CorrelationConfig{
			MatchTolerance: 5 * time.Second,
			LinkTolerance:  5 * time.Second,
			ResponseTypes: []string{
				"https://didcomm.org/routing/2.0/forward",
				"https://didcomm.org/messagepickup/3.0/messages-received",
			},
			RetainMatchedRequests: true,
			OutlierThreshold:      2.0,
		},
		EventLog: EventLogConfig{
			Driver:         "sqlite",
			Path:           "database.sqlite",
			HubAlias:       "mediator",
			ConnectTimeout: 5 * time.Second,
			MaxRetryTime:   30 * time.Second,
		},
		Report: ReportConfig{Console: true},
		Runs: RunsConfig{
			BaseDir:  "captures",
			Network:  "sepolia",
			Slots:    "1,2,3",
			Suffixes: []string{"mediator", "anvil"},
		},
		Rules:   RulesConfig{Path: "configs/rules/latency.yaml"},
		Publish: PublishConfig{Subject: "mirador.latency.results", Timeout: 5 * time.Second},
	}
}

// Validate checks target roles and ports.
func (c *Config) Validate() error {
	switch c.Capture.Backend {
	case "tshark", "native":
	default:
		return fmt.Errorf("capture backend %q: must be tshark or native", c.Capture.Backend)
	}
	switch c.EventLog.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("event log driver %q: must be sqlite, postgres or none", c.EventLog.Driver)
	}
	if len(c.Capture.Targets) == 0 {
		return fmt.Errorf("at least one capture target is required")
	}
	primaries := 0
	for _, t := range c.Capture.Targets {
		if t.Port <= 0 || t.Port > 65535 {
			return fmt.Errorf("target %s: invalid port %d", t.Name, t.Port)
		}
		switch t.Role {
		case "primary":
			primaries++
		case "secondary":
		default:
			return fmt.Errorf("target %s: role %q must be primary or secondary", t.Name, t.Role)
		}
	}
	if primaries == 0 {
		return fmt.Errorf("at least one primary target is required")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_LATENCY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_LATENCY_CAPTURE_BACKEND"); v != "" {
		cfg.Capture.Backend = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_TSHARK_PATH"); v != "" {
		cfg.Capture.TsharkPath = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_MATCH_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.MatchTolerance = d
		}
	}
	if v := os.Getenv("MIRADOR_LATENCY_LINK_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.LinkTolerance = d
		}
	}
	if v := os.Getenv("MIRADOR_LATENCY_RETAIN_MATCHED_REQUESTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Correlation.RetainMatchedRequests = b
		}
	}
	if v := os.Getenv("MIRADOR_LATENCY_EVENTLOG_DRIVER"); v != "" {
		cfg.EventLog.Driver = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_EVENTLOG_PATH"); v != "" {
		cfg.EventLog.Path = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_EVENTLOG_DSN"); v != "" {
		cfg.EventLog.DSN = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_HUB_ALIAS"); v != "" {
		cfg.EventLog.HubAlias = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_OUTPUT_DIR"); v != "" {
		cfg.Report.OutputDir = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_RUNS_BASE_DIR"); v != "" {
		cfg.Runs.BaseDir = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_RUNS_NETWORK"); v != "" {
		cfg.Runs.Network = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_NATS_URL"); v != "" {
		cfg.Publish.URL = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_NATS_SUBJECT"); v != "" {
		cfg.Publish.Subject = v
	}
	if v := os.Getenv("MIRADOR_LATENCY_PUBLISH_ENABLED"); v != "" {
		cfg.Publish.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
}

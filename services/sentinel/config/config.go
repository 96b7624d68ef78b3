// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the Sentinel service configuration.
//
// Priority is env > file > embedded defaults. Risk thresholds are the only
// hot-reloadable knobs (see Watcher); everything else requires a restart.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// validate is the shared validator instance for config structs.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config is the full Sentinel service configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after Load;
// hot-reloaded thresholds flow through a Holder instead.
type Config struct {
	// Server contains HTTP listener settings.
	Server ServerConfig `yaml:"server"`

	// Storage contains Badger persistence settings.
	Storage StorageConfig `yaml:"storage"`

	// Pipeline contains scheduling and windowing settings.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Thresholds contains the shared risk thresholds (hot-reloadable).
	Thresholds Thresholds `yaml:"thresholds"`

	// Forecast contains forecasting engine settings.
	Forecast ForecastConfig `yaml:"forecast"`

	// Intervention contains decision engine settings.
	Intervention InterventionConfig `yaml:"intervention"`

	// Influx contains the optional time-series export target.
	Influx InfluxConfig `yaml:"influx"`

	// Slack contains the optional alert delivery channel.
	Slack SlackConfig `yaml:"slack"`

	// Reports contains report output settings.
	Reports ReportsConfig `yaml:"reports"`

	// Telemetry contains tracing settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging contains log level and destination settings.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr                string  `yaml:"addr" validate:"required"`
	AssessRatePerMinute float64 `yaml:"assess_rate_per_minute" validate:"gt=0"`
	AssessRateBurst     int     `yaml:"assess_rate_burst" validate:"gte=1"`
}

// StorageConfig contains Badger persistence settings.
type StorageConfig struct {
	BadgerDir  string        `yaml:"badger_dir"`
	InMemory   bool          `yaml:"in_memory"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

// PipelineConfig contains scheduling and windowing settings.
type PipelineConfig struct {
	StreamInterval      time.Duration `yaml:"stream_interval" validate:"gt=0"`
	Workers             int           `yaml:"workers" validate:"gte=1,lte=64"`
	StabilityWindowDays int           `yaml:"stability_window_days" validate:"gte=3"`
	LookbackDays        int           `yaml:"lookback_days" validate:"gte=7"`
	DigestCron          string        `yaml:"digest_cron" validate:"required"`
	RebuildCron         string        `yaml:"rebuild_cron" validate:"required"`
}

// Thresholds are the risk cut points shared by risk-level classification,
// intervention selection, and tipping-point detection. They must be strictly
// increasing: buffer < redistribute < alert.
type Thresholds struct {
	Buffer       float64 `yaml:"buffer" validate:"gt=0,lt=1"`
	Redistribute float64 `yaml:"redistribute" validate:"gt=0,lt=1"`
	Alert        float64 `yaml:"alert" validate:"gt=0,lte=1"`
}

// ForecastConfig contains forecasting engine settings.
type ForecastConfig struct {
	HorizonDays    int     `yaml:"horizon_days" validate:"gte=1,lte=30"`
	SequenceLength int     `yaml:"sequence_length" validate:"gte=7"`
	Contamination  float64 `yaml:"contamination" validate:"gt=0,lt=0.5"`
}

// InterventionConfig contains decision engine settings.
type InterventionConfig struct {
	BufferDurationMinutes int `yaml:"buffer_duration_minutes" validate:"gte=15"`
	MaxDaily              int `yaml:"max_daily" validate:"gte=1"`
}

// InfluxConfig contains the optional time-series export target. Export is
// enabled when URL is non-empty.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// Enabled reports whether an Influx export target is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// SlackConfig contains the optional alert delivery channel. Slack delivery
// is enabled when both fields are set; otherwise alerts go to the log.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether Slack alert delivery is configured.
func (c SlackConfig) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}

// ReportsConfig contains report output settings. GCS archival is enabled
// when GCSBucket is non-empty; GCSKeyFile optionally points at a service
// account key, otherwise application default credentials are used.
type ReportsConfig struct {
	OutputDir  string `yaml:"output_dir"`
	GCSBucket  string `yaml:"gcs_bucket"`
	GCSKeyFile string `yaml:"gcs_key_file"`
}

// GCSEnabled reports whether report archival to GCS is configured.
func (c ReportsConfig) GCSEnabled() bool {
	return c.GCSBucket != ""
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	StdoutTrace  bool   `yaml:"stdout_trace"`
}

// LoggingConfig contains log level and destination settings.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Default returns the embedded default configuration.
//
// Outputs:
//   - Config: Parsed contents of default.yaml.
func Default() Config {
	var cfg Config
	// The embedded file is compile-time constant; a parse failure is a
	// build defect, not a runtime condition.
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load builds the effective configuration with priority env > file > defaults.
//
// Inputs:
//   - path: Optional YAML config file. Empty means defaults + env only; a
//     missing file at a non-empty path is an error.
//
// Outputs:
//   - Config: Merged, validated configuration.
//   - error: Non-nil if the file is unreadable or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSE_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PULSE_ASSESS_RATE_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.AssessRatePerMinute = f
		}
	}
	if v := os.Getenv("PULSE_BADGER_DIR"); v != "" {
		cfg.Storage.BadgerDir = v
	}
	if v := os.Getenv("PULSE_IN_MEMORY"); v != "" {
		cfg.Storage.InMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("PULSE_STREAM_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.StreamInterval = d
		}
	}
	if v := os.Getenv("PULSE_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = i
		}
	}
	if v := os.Getenv("PULSE_STABILITY_WINDOW_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.StabilityWindowDays = i
		}
	}
	if v := os.Getenv("PULSE_LOOKBACK_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.LookbackDays = i
		}
	}
	if v := os.Getenv("PULSE_THRESHOLD_BUFFER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Buffer = f
		}
	}
	if v := os.Getenv("PULSE_THRESHOLD_REDISTRIBUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Redistribute = f
		}
	}
	if v := os.Getenv("PULSE_THRESHOLD_ALERT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Alert = f
		}
	}
	if v := os.Getenv("PULSE_FORECAST_HORIZON_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.HorizonDays = i
		}
	}
	if v := os.Getenv("PULSE_SEQUENCE_LENGTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.SequenceLength = i
		}
	}
	if v := os.Getenv("PULSE_MAX_DAILY_INTERVENTIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Intervention.MaxDaily = i
		}
	}
	if v := os.Getenv("PULSE_BUFFER_DURATION_MINUTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Intervention.BufferDurationMinutes = i
		}
	}
	if v := os.Getenv("PULSE_INFLUX_URL"); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv("PULSE_INFLUX_ORG"); v != "" {
		cfg.Influx.Org = v
	}
	if v := os.Getenv("PULSE_INFLUX_BUCKET"); v != "" {
		cfg.Influx.Bucket = v
	}
	if v := os.Getenv("PULSE_INFLUX_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
	if v := os.Getenv("PULSE_SLACK_TOKEN"); v != "" {
		cfg.Slack.Token = v
	}
	if v := os.Getenv("PULSE_SLACK_CHANNEL"); v != "" {
		cfg.Slack.Channel = v
	}
	if v := os.Getenv("PULSE_REPORTS_DIR"); v != "" {
		cfg.Reports.OutputDir = v
	}
	if v := os.Getenv("PULSE_GCS_BUCKET"); v != "" {
		cfg.Reports.GCSBucket = v
	}
	if v := os.Getenv("PULSE_GCS_KEY_FILE"); v != "" {
		cfg.Reports.GCSKeyFile = v
	}
	if v := os.Getenv("PULSE_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("PULSE_STDOUT_TRACE"); v != "" {
		cfg.Telemetry.StdoutTrace = v == "true" || v == "1"
	}
	if v := os.Getenv("PULSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PULSE_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("PULSE_LOG_JSON"); v != "" {
		cfg.Logging.JSON = v == "true" || v == "1"
	}
}

// ExpandPath resolves a leading "~/" against the user's home directory.
// Paths without the prefix, and paths on systems where the home directory
// cannot be determined, are returned unchanged.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate checks struct tags plus cross-field rules the tags cannot express.
//
// Outputs:
//   - error: Non-nil if the configuration is unusable.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Thresholds.Validate()
}

// Validate checks the threshold ordering invariant.
func (t Thresholds) Validate() error {
	if !(t.Buffer < t.Redistribute && t.Redistribute < t.Alert) {
		return fmt.Errorf("thresholds must be strictly increasing: buffer %.2f < redistribute %.2f < alert %.2f",
			t.Buffer, t.Redistribute, t.Alert)
	}
	return nil
}

// Holder provides synchronized access to the hot-reloadable thresholds.
//
// The assessor and decision engine read through Current on every evaluation;
// the config watcher swaps in validated replacements via Set.
//
// Thread Safety: Safe for concurrent use.
type Holder struct {
	mu sync.RWMutex
	t  Thresholds
}

// NewHolder creates a Holder seeded with the given thresholds.
func NewHolder(t Thresholds) *Holder {
	return &Holder{t: t}
}

// Current returns the active thresholds.
func (h *Holder) Current() Thresholds {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.t
}

// Set replaces the active thresholds. Invalid sets are rejected.
func (h *Holder) Set(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.t = t
	return nil
}

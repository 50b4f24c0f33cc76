// Package config loads citereg settings from defaults, an optional YAML file,
// a .env file and CITEREG_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/adapter"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
)

// Config holds every setting the binary reads.
type Config struct {
	// CitiesDir is the directory of city configuration documents.
	CitiesDir string `yaml:"cities_dir" mapstructure:"cities_dir"`

	// Defaults applied when adapting legacy records.
	DefaultAppealDeadlineDays int     `yaml:"default_appeal_deadline_days" mapstructure:"default_appeal_deadline_days"`
	DefaultPatternConfidence  float64 `yaml:"default_pattern_confidence" mapstructure:"default_pattern_confidence"`

	WatchDebounce time.Duration `yaml:"watch_debounce" mapstructure:"watch_debounce"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`

	// MetricsAddr is the listen address for /metrics; empty disables it.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := adapter.DefaultOptions()
	return &Config{
		CitiesDir:                 "cities",
		DefaultAppealDeadlineDays: d.DefaultDeadlineDays,
		DefaultPatternConfidence:  d.DefaultPatternConfidence,
		WatchDebounce:             500 * time.Millisecond,
		LogLevel:                  "info",
		LogFormat:                 "text",
	}
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.CitiesDir) == "" {
		problems = append(problems, "cities_dir is empty")
	}
	if c.DefaultAppealDeadlineDays < 0 || c.DefaultAppealDeadlineDays > city.MaxAppealDeadlineDays {
		problems = append(problems, fmt.Sprintf("default_appeal_deadline_days must be between 0 and %d", city.MaxAppealDeadlineDays))
	}
	if c.DefaultPatternConfidence < 0 || c.DefaultPatternConfidence > 1 {
		problems = append(problems, "default_pattern_confidence must be between 0 and 1")
	}
	if c.WatchDebounce <= 0 {
		problems = append(problems, "watch_debounce must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AdapterOptions returns the legacy adaptation defaults.
func (c *Config) AdapterOptions() adapter.Options {
	return adapter.Options{
		DefaultDeadlineDays:      c.DefaultAppealDeadlineDays,
		DefaultPatternConfidence: c.DefaultPatternConfidence,
	}
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

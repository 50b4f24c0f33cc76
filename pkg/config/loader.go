package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CITEREG_CITIES_DIR.
const EnvPrefix = "CITEREG"

// Load reads configuration. envFiles are loaded into the process environment
// first, without overriding variables already set; missing ones are skipped.
// path names an optional YAML file; when empty only defaults and the
// environment apply. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := newViper(Default())
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper registers every key with its default so that environment
// variables are honoured by Unmarshal even without a config file.
func newViper(d *Config) *viper.Viper {
	v := viper.New()
	v.SetDefault("cities_dir", d.CitiesDir)
	v.SetDefault("default_appeal_deadline_days", d.DefaultAppealDeadlineDays)
	v.SetDefault("default_pattern_confidence", d.DefaultPatternConfidence)
	v.SetDefault("watch_debounce", d.WatchDebounce)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

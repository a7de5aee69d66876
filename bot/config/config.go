// Package config loads the bot configuration: the reusable core sections plus
// the database, metrics and dialogue sections owned by this bot.
package config

import (
	"github.com/samber/oops"

	"github.com/m3rciful/deliabot/bot/dialogue"
	coreconfig "github.com/m3rciful/deliabot/core/config"
	coredatabase "github.com/m3rciful/deliabot/core/database"
)

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN" validate:"omitempty,hostname_port"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	Dialogue dialogue.Texts      `yaml:"dialogue"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	errb := oops.In("config").With("path", path)

	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, errb.Code("decode_failed").Wrap(err)
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, errb.Code("invalid_core").Wrap(err)
	}
	if err := coreconfig.Validate(&cfg); err != nil {
		return nil, errb.Code("invalid").Wrap(err)
	}
	cfg.Dialogue = cfg.Dialogue.WithDefaults()
	return &cfg, nil
}

// Package config loads the settings shared by every bot built on core:
// Telegram transport, webhook, logging and rate limiting.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN" validate:"required"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID" validate:"gte=0"`
	// RunMode is webhook or longpoll; polling is accepted as longpoll.
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE" validate:"omitempty,oneof=webhook longpoll"`
	// LongPollTimeoutSeconds of 0 selects the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS" validate:"gte=0"`
}

type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT" validate:"gte=0,lte=65535"`
}

// AlertsConfig routes error records to a Telegram chat.
type AlertsConfig struct {
	Token  string `yaml:"token" envconfig:"LOG_ALERTS_TOKEN"`
	ChatID string `yaml:"chat_id" envconfig:"LOG_ALERTS_CHAT_ID" validate:"required_with=Token"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" validate:"omitempty,oneof=json kv text pretty console"`
	// KeysOrder is a comma separated key list, or "default".
	KeysOrder string `yaml:"keys_order"`
	// DebugSample is "n/d", "d" (1/d) or "0" to log every sampled debug line.
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile is debug, dev or prod. Debug profiles default to kv output.
	Profile string       `yaml:"profile" envconfig:"LOG_PROFILE"`
	Alerts  AlertsConfig `yaml:"alerts"`
}

// RateLimitConfig sets the per-user minimum interval between updates.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS" validate:"gte=0"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES" validate:"dive,oneof=callback message inline_query"`
}

// Config is the core part of a bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(webhookRules, Config{})
	return v
}()

// webhookRules requires the listener settings in webhook mode.
func webhookRules(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.Telegram.RunMode != RunModeWebhook {
		return
	}
	if cfg.Webhook.URL == "" {
		sl.ReportError(cfg.Webhook.URL, "Webhook.URL", "URL", "required_if_webhook", "")
	}
	if cfg.Webhook.Listen == "" {
		sl.ReportError(cfg.Webhook.Listen, "Webhook.Listen", "Listen", "required_if_webhook", "")
	}
	if cfg.Webhook.Port <= 0 {
		sl.ReportError(cfg.Webhook.Port, "Webhook.Port", "Port", "required_if_webhook", "")
	}
}

// Validate checks the validate tags of v, which may embed Config.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads, normalizes and validates a core-only configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills dst from the YAML file at path, then overrides from the environment.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	return nil
}

// Normalize canonicalizes enum-like values in place and validates the result.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram token is required")
	}

	switch rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode)); rm {
	case "", "polling":
		cfg.Telegram.RunMode = RunModeLongpoll
	default:
		cfg.Telegram.RunMode = rm
	}
	cfg.Webhook.URL = strings.TrimSpace(cfg.Webhook.URL)
	cfg.Webhook.Listen = strings.TrimSpace(cfg.Webhook.Listen)

	excludes := cfg.RateLimit.ExcludeUpdates[:0]
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		if kind = strings.ToLower(strings.TrimSpace(kind)); kind != "" {
			excludes = append(excludes, kind)
		}
	}
	cfg.RateLimit.ExcludeUpdates = slices.Clip(excludes)

	return Validate(cfg)
}

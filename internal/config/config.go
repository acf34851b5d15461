package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig `yaml:"server"`
	Auth    AuthConfig   `yaml:"auth"`
	Review  ReviewConfig `yaml:"review"`
	LogFile string       `yaml:"log_file"`
	Log     LogConfig    `yaml:"log"`
	TUI     TUIConfig    `yaml:"tui"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	WSURL   string `yaml:"ws_url"`
}

type AuthConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
}

// ReviewConfig controls the review cycle timing. Durations are yaml
// strings ("500ms", "1s") parsed at load time.
type ReviewConfig struct {
	CountdownSeconds int `yaml:"countdown_seconds"`

	TickInterval     time.Duration `yaml:"-"`
	SettleDelay      time.Duration `yaml:"-"`
	RetryDelay       time.Duration `yaml:"-"`
	JitterMax        time.Duration `yaml:"-"`
	IdlePollInterval time.Duration `yaml:"-"`

	RawTickInterval     string `yaml:"tick_interval"`
	RawSettleDelay      string `yaml:"settle_delay"`
	RawRetryDelay       string `yaml:"retry_delay"`
	RawJitterMax        string `yaml:"jitter_max"`
	RawIdlePollInterval string `yaml:"idle_poll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TUIConfig struct {
	RefreshInterval time.Duration `yaml:"-"`
	RawInterval     string        `yaml:"refresh_interval"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.Review.CountdownSeconds == 0 {
		c.Review.CountdownSeconds = 5
	}

	durations := []struct {
		name string
		raw  *string
		dst  *time.Duration
		def  string
	}{
		{"review.tick_interval", &c.Review.RawTickInterval, &c.Review.TickInterval, "1s"},
		{"review.settle_delay", &c.Review.RawSettleDelay, &c.Review.SettleDelay, "100ms"},
		{"review.retry_delay", &c.Review.RawRetryDelay, &c.Review.RetryDelay, "500ms"},
		{"review.jitter_max", &c.Review.RawJitterMax, &c.Review.JitterMax, "300ms"},
		{"review.idle_poll_interval", &c.Review.RawIdlePollInterval, &c.Review.IdlePollInterval, "60s"},
	}
	for _, d := range durations {
		if *d.raw == "" {
			*d.raw = d.def
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", d.name, *d.raw, err)
		}
		*d.dst = v
	}

	if c.LogFile == "" {
		c.LogFile = "/tmp/qilin-check-bag/logs/qilin-check-bag.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.TUI.RawInterval == "" {
		c.TUI.RawInterval = "1s"
	}
	tuiInterval, err := time.ParseDuration(c.TUI.RawInterval)
	if err != nil {
		return fmt.Errorf("parse tui.refresh_interval %q: %w", c.TUI.RawInterval, err)
	}
	if tuiInterval <= 0 {
		return fmt.Errorf("tui.refresh_interval must be positive, got %s", c.TUI.RawInterval)
	}
	c.TUI.RefreshInterval = tuiInterval

	return nil
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url %q is not a valid URL", c.Server.BaseURL)
	}
	if c.Server.WSURL != "" {
		w, err := url.Parse(c.Server.WSURL)
		if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
			return fmt.Errorf("server.ws_url %q must be a ws:// or wss:// URL", c.Server.WSURL)
		}
	}
	if c.Review.CountdownSeconds < 1 {
		return fmt.Errorf("review.countdown_seconds must be at least 1, got %d", c.Review.CountdownSeconds)
	}
	if c.Review.TickInterval <= 0 {
		return fmt.Errorf("review.tick_interval must be positive, got %s", c.Review.RawTickInterval)
	}
	if c.Review.JitterMax < 0 {
		return fmt.Errorf("review.jitter_max must not be negative, got %s", c.Review.RawJitterMax)
	}
	return nil
}

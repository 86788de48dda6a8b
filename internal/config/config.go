package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the client-side settings for the staff portal backend. All
// fields come from MEDIHUB_* environment variables with defaults matching the
// production deployment.
type Config struct {
	APIBaseURL        string        `env:"MEDIHUB_API_BASE_URL" envDefault:"http://localhost:8088/api/v1"`
	WSURL             string        `env:"MEDIHUB_WS_URL" envDefault:"ws://localhost:8088/api/ws"`
	HTTPTimeout       time.Duration `env:"MEDIHUB_HTTP_TIMEOUT" envDefault:"15s"`
	ReconnectDelay    time.Duration `env:"MEDIHUB_RECONNECT_DELAY" envDefault:"5s"`
	HeartbeatInterval time.Duration `env:"MEDIHUB_HEARTBEAT_INTERVAL" envDefault:"4s"`
	StorePath         string        `env:"MEDIHUB_STORE_PATH" envDefault:"medihub.db"`
	RedisAddr         string        `env:"MEDIHUB_REDIS_ADDR"`
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		recordConfigLoadEvent(ctx, "failure", "parse")
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		recordConfigLoadEvent(ctx, "failure", "validation")
		return nil, fmt.Errorf("validate config: %w", err)
	}
	recordConfigLoadEvent(ctx, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api base url %q: %w", c.APIBaseURL, err)
	}
	u, err := url.Parse(c.WSURL)
	if err != nil {
		return fmt.Errorf("invalid ws url %q: %w", c.WSURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("ws url %q must use ws or wss scheme", c.WSURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.StorePath == "" && c.RedisAddr == "" {
		return fmt.Errorf("either store path or redis addr must be set")
	}
	return nil
}

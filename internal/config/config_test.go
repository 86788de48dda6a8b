package config

import (
	"context"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8088/api/v1" {
		t.Fatalf("unexpected api base url %q", cfg.APIBaseURL)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("unexpected reconnect delay %s", cfg.ReconnectDelay)
	}
	if cfg.HeartbeatInterval != 4*time.Second {
		t.Fatalf("unexpected heartbeat interval %s", cfg.HeartbeatInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MEDIHUB_API_BASE_URL", "https://api.medihub.info/api/v1")
	t.Setenv("MEDIHUB_WS_URL", "wss://api.medihub.info/api/ws")
	t.Setenv("MEDIHUB_HTTP_TIMEOUT", "30s")
	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://api.medihub.info/api/v1" {
		t.Fatalf("override ignored: %q", cfg.APIBaseURL)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.HTTPTimeout)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad ws scheme", func(c *Config) { c.WSURL = "http://x/ws" }},
		{"bad api url", func(c *Config) { c.APIBaseURL = "not a url" }},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"zero reconnect", func(c *Config) { c.ReconnectDelay = 0 }},
		{"no store", func(c *Config) { c.StorePath = ""; c.RedisAddr = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				APIBaseURL:        "http://localhost:8088/api/v1",
				WSURL:             "ws://localhost:8088/api/ws",
				HTTPTimeout:       time.Second,
				ReconnectDelay:    time.Second,
				HeartbeatInterval: time.Second,
				StorePath:         "x.db",
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

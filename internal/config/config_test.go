package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.StoreDriver != "mongo" {
		t.Fatalf("expected mongo driver, got %q", cfg.StoreDriver)
	}
	if cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 720*time.Hour {
		t.Fatalf("unexpected ttls %s %s", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.RedisURL != "" || cfg.MeiliURL != "" {
		t.Fatalf("expected optional backends disabled by default")
	}
}

func TestLoadReadsPrefixedEnv(t *testing.T) {
	t.Setenv("STUDYSYNC_ADDR", ":9000")
	t.Setenv("STUDYSYNC_STORE_DRIVER", " Postgres ")
	t.Setenv("STUDYSYNC_ACCESS_TTL", "5m")
	t.Setenv("STUDYSYNC_REDIS_URL", "redis://localhost:6379/1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.StoreDriver != "postgres" || cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("expected redis url, got %q", cfg.RedisURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":     {"STUDYSYNC_STORE_DRIVER": "sqlite"},
		"duration":   {"STUDYSYNC_ACCESS_TTL": "soon"},
		"ttl order":  {"STUDYSYNC_ACCESS_TTL": "48h", "STUDYSYNC_REFRESH_TTL": "1h"},
		"production": {"STUDYSYNC_ENVIRONMENT": "production"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestValidateNamesDriver(t *testing.T) {
	cfg := Config{StoreDriver: "bolt", AccessTTL: time.Minute, RefreshTTL: time.Hour, JWTSecret: "x"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bolt") {
		t.Fatalf("expected driver in error, got %v", err)
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RequestTTL != 300*time.Second {
		t.Fatalf("default TTL: got %s", cfg.RequestTTL)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("default poll interval: got %s", cfg.PollInterval)
	}
	if cfg.MaxRadiusKm != 50 {
		t.Fatalf("default radius: got %f", cfg.MaxRadiusKm)
	}
}

func TestLoadServerConfigOverridesAndErrors(t *testing.T) {
	t.Setenv("REQUEST_TTL", "120s")
	t.Setenv("MATCHER_TOP_N", "3")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RequestTTL != 2*time.Minute || cfg.MatcherTopN != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	t.Setenv("POLL_INTERVAL", "not-a-duration")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

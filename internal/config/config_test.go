package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.JWTExpiration != 24*time.Hour {
		t.Errorf("expected default JWT expiration 24h, got %v", cfg.JWTExpiration)
	}
	if cfg.SupervisorMaxSteps != 10 {
		t.Errorf("expected default supervisor max steps 10, got %d", cfg.SupervisorMaxSteps)
	}
	if cfg.CompletionModel != "gpt-4o-mini" {
		t.Errorf("expected default completion model, got %q", cfg.CompletionModel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEARBOX_PORT", "9090")
	t.Setenv("GEARBOX_READ_TIMEOUT", "5s")
	t.Setenv("GEARBOX_RATE_LIMIT_ENABLED", "false")
	t.Setenv("COMPLETION_TEMPERATURE", "0.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", cfg.ReadTimeout)
	}
	if cfg.RateLimitEnabled {
		t.Error("expected rate limiting disabled")
	}
	if cfg.CompletionTemperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", cfg.CompletionTemperature)
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("GEARBOX_PORT", "not-a-number")
	t.Setenv("GEARBOX_READ_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected fallback port 8080, got %d", cfg.Port)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("expected fallback read timeout 30s, got %v", cfg.ReadTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty database url", func(c *Config) { c.DatabaseURL = "" }, true},
		{"zero embedding dims", func(c *Config) { c.EmbeddingDimensions = 0 }, true},
		{"negative body limit", func(c *Config) { c.MaxRequestBodyBytes = -1 }, true},
		{"zero supervisor steps", func(c *Config) { c.SupervisorMaxSteps = 0 }, true},
		{"temperature out of range", func(c *Config) { c.CompletionTemperature = 3.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			tt.mutate(&cfg)
			err = cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

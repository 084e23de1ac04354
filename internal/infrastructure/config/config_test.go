package config_test

import (
	"testing"
	"time"

	"github.com/iho/invitequeue/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}

	if cfg.StoreDriver != config.StoreDriverPostgres {
		t.Fatalf("expected postgres store by default, got %s", cfg.StoreDriver)
	}

	if cfg.StartingInvites != 3 || cfg.OverflowBlockSize != 10 || cfg.OverflowInvites != 1 || cfg.AllocationAttempts != 3 {
		t.Fatalf("unexpected queue defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("JWT_SECRET", "top-secret")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("RECONCILE_INTERVAL", "5s")
	t.Setenv("OVERFLOW_BLOCK_SIZE", "4")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}

	if cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom redis URL, got %s", cfg.RedisURL)
	}

	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected HTTP port override, got %s", cfg.HTTPPort)
	}

	if cfg.DatabaseTimeout != 45*time.Second || cfg.ReconcileInterval != 5*time.Second {
		t.Fatalf("expected duration overrides, got %s %s", cfg.DatabaseTimeout, cfg.ReconcileInterval)
	}

	if cfg.StoreDriver != config.StoreDriverSQLite || cfg.OverflowBlockSize != 4 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"invalid duration", map[string]string{"HTTP_READ_TIMEOUT": "not-a-duration", "JWT_SECRET": "s"}},
		{"unknown store", map[string]string{"STORE_DRIVER": "mongo", "JWT_SECRET": "s"}},
		{"auth without secret", map[string]string{"AUTH_ENABLED": "true", "JWT_SECRET": ""}},
		{"zero block size", map[string]string{"OVERFLOW_BLOCK_SIZE": "0", "JWT_SECRET": "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := config.Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

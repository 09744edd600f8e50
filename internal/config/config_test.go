package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Fatalf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreMemory)
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q, want 0.0.0.0:50051", cfg.GRPCAddr())
	}
	if cfg.Timezone != "Africa/Johannesburg" {
		t.Fatalf("Timezone = %q", cfg.Timezone)
	}
	if cfg.PruneInterval != 15*time.Minute {
		t.Fatalf("PruneInterval = %v, want 15m", cfg.PruneInterval)
	}
	if cfg.InitialStatus != "confirmed" {
		t.Fatalf("InitialStatus = %q, want confirmed", cfg.InitialStatus)
	}
	if cfg.RedisAddr != "" || cfg.KafkaBrokers != "" {
		t.Fatalf("expected no redis or kafka by default, got %q %q", cfg.RedisAddr, cfg.KafkaBrokers)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("SALON_STORE_DRIVER", "Postgres")
	t.Setenv("GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("SALON_LOCK_TTL", "30s")
	t.Setenv("SALON_RESERVATION_INITIAL_STATUS", "pending")
	t.Setenv("SALON_SALON_TIMEZONE", "UTC")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.StoreDriver != StorePostgres {
		t.Fatalf("StoreDriver = %q, want %q", cfg.StoreDriver, StorePostgres)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q, want 127.0.0.1:6000", cfg.GRPCAddr())
	}
	if cfg.LockTTL != 30*time.Second {
		t.Fatalf("LockTTL = %v, want 30s", cfg.LockTTL)
	}
	if cfg.InitialStatus != "pending" || cfg.Timezone != "UTC" || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad duration", "SALON_SHUTDOWN_TIMEOUT", "soon"},
		{"unknown driver", "SALON_STORE_DRIVER", "sqlite"},
		{"bad status", "SALON_RESERVATION_INITIAL_STATUS", "maybe"},
		{"bad timezone", "SALON_SALON_TIMEZONE", "Mars/Olympus"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

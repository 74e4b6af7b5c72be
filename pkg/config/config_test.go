package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VENUE_A_WS_URL", "wss://venue-a.example.com/ws")
	t.Setenv("VENUE_A_API_URL", "https://venue-a.example.com")
	t.Setenv("VENUE_B_WS_URL", "wss://venue-b.example.com/ws")
	t.Setenv("VENUE_B_API_URL", "https://venue-b.example.com")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/arb?sslmode=disable")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.HTTPPort != "3001" {
		t.Errorf("expected default port 3001, got %s", cfg.HTTPPort)
	}
	if cfg.ArbThreshold != 0.98 {
		t.Errorf("expected default threshold 0.98, got %f", cfg.ArbThreshold)
	}
	if cfg.MinLiquidity != 1000 {
		t.Errorf("expected default min liquidity 1000, got %f", cfg.MinLiquidity)
	}
	if cfg.MaxPositionSize != 10000 {
		t.Errorf("expected default max position size 10000, got %f", cfg.MaxPositionSize)
	}
	if cfg.SimilarityThreshold != 0.85 {
		t.Errorf("expected default similarity threshold 0.85, got %f", cfg.SimilarityThreshold)
	}
	if cfg.VenueA.FeeRate != 0.02 || cfg.VenueB.FeeRate != 0.02 {
		t.Errorf("expected default fee rates 0.02, got %f and %f", cfg.VenueA.FeeRate, cfg.VenueB.FeeRate)
	}
	if cfg.AutoExecute() {
		t.Error("expected auto-execute off by default")
	}
	if cfg.WSPingInterval != 30*time.Second {
		t.Errorf("expected 30s ping interval, got %v", cfg.WSPingInterval)
	}
	if cfg.WSReconnectMaxAttempts != 10 {
		t.Errorf("expected 10 reconnect attempts, got %d", cfg.WSReconnectMaxAttempts)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ARB_THRESHOLD", "0.95")
	t.Setenv("AUTO_EXECUTE", "true")
	t.Setenv("MARKET_SYNC_INTERVAL", "1m")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ArbThreshold != 0.95 {
		t.Errorf("expected threshold 0.95, got %f", cfg.ArbThreshold)
	}
	if !cfg.AutoExecute() {
		t.Error("expected auto-execute on")
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("expected 1m sync interval, got %v", cfg.SyncInterval)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"missing-venue-a-urls", "VENUE_A_WS_URL"},
		{"missing-venue-b-urls", "VENUE_B_API_URL"},
		{"missing-database-url", "DATABASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("expected error when %s is unset", tt.unset)
			}
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
	}{
		{"threshold-zero", "ARB_THRESHOLD", "0", true},
		{"threshold-above-one", "ARB_THRESHOLD", "1.5", true},
		{"threshold-one", "ARB_THRESHOLD", "1.0", false},
		{"negative-min-liquidity", "MIN_LIQUIDITY", "-1", true},
		{"zero-max-position", "MAX_POSITION_SIZE", "0", true},
		{"similarity-above-one", "SIMILARITY_THRESHOLD", "1.01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAutoExecute_Mutable(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AutoExecute() {
		t.Fatal("expected auto-execute off initially")
	}

	cfg.SetAutoExecute(true)
	if !cfg.AutoExecute() {
		t.Error("expected auto-execute on after SetAutoExecute(true)")
	}

	cfg.SetAutoExecute(false)
	if cfg.AutoExecute() {
		t.Error("expected auto-execute off after SetAutoExecute(false)")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Unsetenv("SOME_UNSET_KEY")

	if got := getEnvOrDefault("SOME_UNSET_KEY", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %s", got)
	}
	if got := getFloat64OrDefault("SOME_UNSET_KEY", 1.5); got != 1.5 {
		t.Errorf("expected 1.5, got %f", got)
	}

	t.Setenv("SOME_BAD_FLOAT", "not-a-number")
	if got := getFloat64OrDefault("SOME_BAD_FLOAT", 2.5); got != 2.5 {
		t.Errorf("expected fallback on parse error, got %f", got)
	}

	t.Setenv("SOME_DURATION", "45s")
	if got := getDurationOrDefault("SOME_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
}

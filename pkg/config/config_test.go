package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("stock-service")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8085 {
		t.Errorf("Server.Port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Server.Environment != EnvDevelopment {
		t.Errorf("Server.Environment = %q, want %q", cfg.Server.Environment, EnvDevelopment)
	}
	if cfg.Stock.ReservationTTL != 48*time.Hour {
		t.Errorf("Stock.ReservationTTL = %v, want 48h", cfg.Stock.ReservationTTL)
	}
	if cfg.Stock.SweepInterval != 5*time.Minute {
		t.Errorf("Stock.SweepInterval = %v, want 5m", cfg.Stock.SweepInterval)
	}
	if cfg.Stock.MaxConflictRetries != 3 {
		t.Errorf("Stock.MaxConflictRetries = %d, want 3", cfg.Stock.MaxConflictRetries)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("PHARMA_STOCK_MAX_CONFLICT_RETRIES", "5")
	os.Setenv("PHARMA_SERVER_PORT", "9090")
	defer os.Unsetenv("PHARMA_STOCK_MAX_CONFLICT_RETRIES")
	defer os.Unsetenv("PHARMA_SERVER_PORT")

	cfg, err := Load("stock-service")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Stock.MaxConflictRetries != 5 {
		t.Errorf("Stock.MaxConflictRetries = %d, want 5", cfg.Stock.MaxConflictRetries)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "stock",
		Password: "secret",
		Database: "pharmaflow_stock",
		SSLMode:  "require",
	}

	want := "host=db.internal port=5433 user=stock password=secret dbname=pharmaflow_stock sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestDatabaseValidate(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost"}

	if err := cfg.Validate(EnvDevelopment); err != nil {
		t.Errorf("Validate(development) error = %v, want nil", err)
	}
	if err := cfg.Validate(EnvProduction); err == nil {
		t.Error("Validate(production) should reject a localhost database")
	}

	cfg.Host = "db.internal"
	if err := cfg.Validate(EnvProduction); err != nil {
		t.Errorf("Validate(production) error = %v, want nil", err)
	}
}

func TestLoadWithValidation_RejectsBadStockTunables(t *testing.T) {
	os.Setenv("PHARMA_STOCK_MAX_CONFLICT_RETRIES", "0")
	defer os.Unsetenv("PHARMA_STOCK_MAX_CONFLICT_RETRIES")

	if _, err := LoadWithValidation("stock-service"); err == nil {
		t.Error("LoadWithValidation() should reject max_conflict_retries = 0")
	}
}

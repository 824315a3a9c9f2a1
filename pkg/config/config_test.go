package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdirWithConfig writes yamlContent as config.yaml in a temp directory and
// makes it the working directory for the test.
func chdirWithConfig(t *testing.T, yamlContent string) {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

const validYAML = `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  database: "catalog"
source:
  driver: "postgres"
  host: "warehouse.example.com"
  database: "warehouse"
llm:
  provider: "openai"
  endpoint: "http://localhost:11434/v1"
  model: "llama3"
`

func TestLoad_EnvOverridesYAML(t *testing.T) {
	chdirWithConfig(t, validYAML)

	os.Unsetenv("PGHOST")

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LLM_MODEL", "gpt-4o")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected LLM.Model=gpt-4o (from env), got %s", cfg.LLM.Model)
	}

	// YAML values survive where no env override exists
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Source.Host != "warehouse.example.com" {
		t.Errorf("expected Source.Host=warehouse.example.com (from yaml), got %s", cfg.Source.Host)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirWithConfig(t, validYAML)

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Enrichment.MaxTablesPerBatch != 15 {
		t.Errorf("expected MaxTablesPerBatch=15, got %d", cfg.Enrichment.MaxTablesPerBatch)
	}
	if cfg.Enrichment.MaxInputTokens != 8000 {
		t.Errorf("expected MaxInputTokens=8000, got %d", cfg.Enrichment.MaxInputTokens)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("expected FailureThreshold=5, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.TransientThreshold != 3 {
		t.Errorf("expected TransientThreshold=3, got %d", cfg.Breaker.TransientThreshold)
	}
	if got := cfg.Breaker.TransientWindow(); got != 5*time.Minute {
		t.Errorf("expected TransientWindow=5m, got %s", got)
	}
	if got := cfg.Breaker.Cooldown(); got != 60*time.Second {
		t.Errorf("expected Cooldown=60s, got %s", got)
	}
	if got := cfg.Retention.JobTTL(); got != 72*time.Hour {
		t.Errorf("expected JobTTL=72h, got %s", got)
	}
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	chdirWithConfig(t, `
llm:
  provider: "carrier-pigeon"
  endpoint: "http://localhost:11434/v1"
  model: "llama3"
`)

	if _, err := Load("dev"); err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "catalog",
		Password: "secret",
		Database: "catalog_engine",
		SSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=catalog password=secret dbname=catalog_engine sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

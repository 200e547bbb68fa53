package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8000/api/v1" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.Timeout != 15*time.Second || cfg.MediaTimeout != 60*time.Second || cfg.ProbeTimeout != 5*time.Second {
		t.Fatalf("unexpected timeouts %+v", cfg)
	}
	if cfg.MaxUploadBytes != 10<<20 || cfg.SessionStore != StoreLocal || !cfg.Simulation {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.UploadLatency != 2*time.Second || cfg.CompareLatency != 3*time.Second {
		t.Fatalf("unexpected simulator latency %+v", cfg)
	}
	if !strings.HasSuffix(cfg.SessionDir, filepath.Join(".facesaas", "session")) {
		t.Fatalf("unexpected session dir %q", cfg.SessionDir)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"FACESAAS_API_BASE_URL":     "https://faces.example.com/api/v1",
		"FACESAAS_TIMEOUT":          "2s",
		"FACESAAS_MAX_UPLOAD_BYTES": "1024",
		"FACESAAS_SESSION_STORE":    "Redis",
		"FACESAAS_SIMULATION":       "false",
		"FACESAAS_LOG_LEVEL":        "debug",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL != "https://faces.example.com/api/v1" || cfg.Timeout != 2*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MaxUploadBytes != 1024 || cfg.SessionStore != StoreRedis || cfg.Simulation || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFromEnvNamesInvalidVariables(t *testing.T) {
	_, err := FromEnv(lookupFrom(map[string]string{
		"FACESAAS_TIMEOUT":          "soon",
		"FACESAAS_MAX_UPLOAD_BYTES": "-1",
		"FACESAAS_SESSION_STORE":    "postgres",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"FACESAAS_TIMEOUT", "FACESAAS_MAX_UPLOAD_BYTES", "FACESAAS_DATABASE_DSN"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in error, got %v", name, err)
		}
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FACESAAS_LOG_LEVEL=warn\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("FACESAAS_LOG_LEVEL", "")
	os.Unsetenv("FACESAAS_LOG_LEVEL")

	cfg, err := Load(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected level from .env, got %q", cfg.LogLevel)
	}
}

func TestLoadSkipsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be skipped, got %v", err)
	}
}

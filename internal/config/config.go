// Package config loads client settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StoreLocal    = "local"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds every setting of the client and CLI.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MediaTimeout   time.Duration
	MaxUploadBytes int64

	SessionStore string
	SessionDir   string
	RedisAddr    string
	DatabaseDSN  string

	GRPCHealthAddr string
	ProbeTimeout   time.Duration

	Simulation     bool
	UploadLatency  time.Duration
	CompareLatency time.Duration

	LogLevel string
}

// Load reads the given env files (.env in the working directory when none
// are named), skipping missing ones, and then the process environment.
// Variables already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup, which returns "" for unset keys.
func FromEnv(lookup func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if value := strings.TrimSpace(lookup(key)); value != "" {
			return value
		}
		return fallback
	}

	var errs []error
	duration := func(key string, fallback time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return fallback
		}
		return d
	}

	cfg := &Config{
		BaseURL:        env("FACESAAS_API_BASE_URL", "http://localhost:8000/api/v1"),
		Timeout:        duration("FACESAAS_TIMEOUT", 15*time.Second),
		MediaTimeout:   duration("FACESAAS_MEDIA_TIMEOUT", 60*time.Second),
		MaxUploadBytes: 10 << 20,
		SessionStore:   strings.ToLower(env("FACESAAS_SESSION_STORE", StoreLocal)),
		SessionDir:     env("FACESAAS_SESSION_DIR", defaultSessionDir()),
		RedisAddr:      env("FACESAAS_REDIS_ADDR", "localhost:6379"),
		DatabaseDSN:    env("FACESAAS_DATABASE_DSN", ""),
		GRPCHealthAddr: env("FACESAAS_GRPC_HEALTH_ADDR", ""),
		ProbeTimeout:   duration("FACESAAS_PROBE_TIMEOUT", 5*time.Second),
		Simulation:     true,
		UploadLatency:  duration("FACESAAS_SIM_UPLOAD_LATENCY", 2*time.Second),
		CompareLatency: duration("FACESAAS_SIM_COMPARE_LATENCY", 3*time.Second),
		LogLevel:       env("FACESAAS_LOG_LEVEL", "info"),
	}

	if raw := env("FACESAAS_MAX_UPLOAD_BYTES", ""); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("FACESAAS_MAX_UPLOAD_BYTES: invalid size %q", raw))
		} else {
			cfg.MaxUploadBytes = n
		}
	}
	if raw := env("FACESAAS_SIMULATION", ""); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("FACESAAS_SIMULATION: invalid boolean %q", raw))
		} else {
			cfg.Simulation = b
		}
	}

	switch cfg.SessionStore {
	case StoreMemory, StoreLocal, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseDSN == "" {
			errs = append(errs, errors.New("FACESAAS_DATABASE_DSN: required for the postgres session store"))
		}
	default:
		errs = append(errs, fmt.Errorf("FACESAAS_SESSION_STORE: unknown store %q", cfg.SessionStore))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".facesaas", "session")
	}
	return filepath.Join(home, ".facesaas", "session")
}

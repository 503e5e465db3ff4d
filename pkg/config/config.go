// Package config loads process configuration from the environment, with an
// optional YAML overrides file pointed at by STUDIO_CONFIG.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds process configuration for the studio services.
type Config struct {
	// Filesystem roots the assembly engine reads from.
	ProjectRoot string `yaml:"project_root"`
	CoreBase    string `yaml:"core_base"`

	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`

	// DatabaseURL backs the Postgres catalog. When empty, SQLitePath (or a
	// seeded in-memory demo catalog) is used instead.
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	EmailFrom string `yaml:"email_from"`

	// Preview control plane. InternalAPISecret is required whenever
	// PreviewBackendURL is set.
	PreviewBackendURL string `yaml:"preview_backend_url"`
	InternalAPISecret string `yaml:"internal_api_secret"`
	RedisAddr         string `yaml:"redis_addr"`

	// DownloadTokenSecret signs license download tokens.
	DownloadTokenSecret string `yaml:"download_token_secret"`

	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTelEndpoint string `yaml:"otel_endpoint"`

	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from environment variables, then applies the
// YAML overrides file named by STUDIO_CONFIG when present.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectRoot:         os.Getenv("PROJECT_ROOT"),
		CoreBase:            os.Getenv("CORE_BASE"),
		Port:                envOr("PORT", "8080"),
		CORSOrigin:          os.Getenv("CORS_ORIGIN"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          os.Getenv("STUDIO_SQLITE"),
		EmailFrom:           os.Getenv("EMAIL_FROM"),
		PreviewBackendURL:   os.Getenv("PREVIEW_BACKEND_URL"),
		InternalAPISecret:   os.Getenv("INTERNAL_API_SECRET"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		DownloadTokenSecret: os.Getenv("DOWNLOAD_TOKEN_SECRET"),
		OTelEnabled:         os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:        envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:            envOr("LOG_LEVEL", "INFO"),
	}

	if path := os.Getenv("STUDIO_CONFIG"); path != "" {
		if err := applyOverrides(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate reports every missing required setting at once so an operator
// fixes them in one pass.
func (c *Config) Validate() error {
	var missing []string
	if c.ProjectRoot == "" {
		missing = append(missing, "PROJECT_ROOT")
	}
	if c.CoreBase == "" {
		missing = append(missing, "CORE_BASE")
	}
	if c.CORSOrigin == "" {
		missing = append(missing, "CORS_ORIGIN")
	}
	if c.EmailFrom == "" {
		missing = append(missing, "EMAIL_FROM")
	}
	if c.PreviewBackendURL != "" && c.InternalAPISecret == "" {
		missing = append(missing, "INTERNAL_API_SECRET (required with PREVIEW_BACKEND_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

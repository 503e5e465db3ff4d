package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// applyOverrides merges a YAML overrides file into cfg. Only keys present
// in the file replace the environment-derived values; absent keys keep
// whatever Load produced.
func applyOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read overrides %q: %w", path, err)
	}

	// Decode into a fresh map first so "key absent" and "key set to empty"
	// stay distinguishable.
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse overrides %q: %w", path, err)
	}

	for key, node := range raw {
		if err := applyOverride(cfg, key, node); err != nil {
			return fmt.Errorf("config: overrides %q: %w", path, err)
		}
	}
	return nil
}

func applyOverride(cfg *Config, key string, node yaml.Node) error {
	target := map[string]any{
		"project_root":          &cfg.ProjectRoot,
		"core_base":             &cfg.CoreBase,
		"port":                  &cfg.Port,
		"cors_origin":           &cfg.CORSOrigin,
		"database_url":          &cfg.DatabaseURL,
		"sqlite_path":           &cfg.SQLitePath,
		"email_from":            &cfg.EmailFrom,
		"preview_backend_url":   &cfg.PreviewBackendURL,
		"internal_api_secret":   &cfg.InternalAPISecret,
		"redis_addr":            &cfg.RedisAddr,
		"download_token_secret": &cfg.DownloadTokenSecret,
		"otel_enabled":          &cfg.OTelEnabled,
		"otel_endpoint":         &cfg.OTelEndpoint,
		"log_level":             &cfg.LogLevel,
	}[key]
	if target == nil {
		return fmt.Errorf("unknown key %q", key)
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	return nil
}

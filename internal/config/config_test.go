// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"

database:
  path: "./pushes.db"
  driver: "sqlite3"

retention:
  storage_days: 7

auth:
  jwt_secret: "s3cret"

stream:
  keepalive_interval: "30s"

dedupe:
  ttl: "2m"
  max_size: 500

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Database.Path != "./pushes.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./pushes.db")
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}
	if cfg.Retention.StorageDays != 7 {
		t.Errorf("Retention.StorageDays = %d, want 7", cfg.Retention.StorageDays)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "s3cret")
	}
	if cfg.Stream.KeepaliveInterval != 30*time.Second {
		t.Errorf("Stream.KeepaliveInterval = %v, want %v", cfg.Stream.KeepaliveInterval, 30*time.Second)
	}
	if cfg.Dedupe.TTL != 2*time.Minute {
		t.Errorf("Dedupe.TTL = %v, want %v", cfg.Dedupe.TTL, 2*time.Minute)
	}
	if cfg.Dedupe.MaxSize != 500 {
		t.Errorf("Dedupe.MaxSize = %d, want 500", cfg.Dedupe.MaxSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:9090"

[database]
path = "/tmp/pushes.db"

[retention]
storage_days = 3

[stream]
keepalive_interval = "5s"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Database.Path != "/tmp/pushes.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/pushes.db")
	}
	if cfg.Retention.StorageDays != 3 {
		t.Errorf("Retention.StorageDays = %d, want 3", cfg.Retention.StorageDays)
	}
	if cfg.Stream.KeepaliveInterval != 5*time.Second {
		t.Errorf("Stream.KeepaliveInterval = %v, want %v", cfg.Stream.KeepaliveInterval, 5*time.Second)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./pushes.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Server.GRPCAddr != "" {
		t.Errorf("Server.GRPCAddr = %q, want empty", cfg.Server.GRPCAddr)
	}
	if cfg.Stream.KeepaliveInterval != DefaultKeepaliveInterval {
		t.Errorf("Stream.KeepaliveInterval = %v, want %v", cfg.Stream.KeepaliveInterval, DefaultKeepaliveInterval)
	}
	if cfg.Dedupe.TTL != DefaultDedupeTTL {
		t.Errorf("Dedupe.TTL = %v, want %v", cfg.Dedupe.TTL, DefaultDedupeTTL)
	}
	if cfg.Dedupe.MaxSize != DefaultDedupeMaxSize {
		t.Errorf("Dedupe.MaxSize = %d, want %d", cfg.Dedupe.MaxSize, DefaultDedupeMaxSize)
	}
	if cfg.Retention.StorageDays != 0 {
		t.Errorf("Retention.StorageDays = %d, want 0", cfg.Retention.StorageDays)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DEBUGKIT_SECRET", "from-env")
	t.Setenv("TEST_DEBUGKIT_DB", "/var/lib/debugkit/pushes.db")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_DEBUGKIT_DB}"
auth:
  jwt_secret: "${TEST_DEBUGKIT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "from-env")
	}
	if cfg.Database.Path != "/var/lib/debugkit/pushes.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/var/lib/debugkit/pushes.db")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./pushes.db"
auth:
  jwt_secret: "${UNSET_VAR_FOR_TEST}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty string for unset var", cfg.Auth.JWTSecret)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "database: [path\n")
	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", "[database\npath = 1\n")
	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() expected error for invalid TOML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./pushes.db"
stream:
  keepalive_interval: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "keepalive_interval") {
		t.Errorf("error = %v, want mention of keepalive_interval", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"negative storage days", func(c *Config) { c.Retention.StorageDays = -1 }, "retention.storage_days"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"negative keepalive", func(c *Config) { c.Stream.KeepaliveInterval = -time.Second }, "keepalive_interval"},
		{"negative dedupe ttl", func(c *Config) { c.Dedupe.TTL = -time.Second }, "dedupe.ttl"},
		{"negative dedupe size", func(c *Config) { c.Dedupe.MaxSize = -1 }, "dedupe.max_size"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("./pushes.db")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	if _, err := Parse([]byte("database:\n  path: x\n"), Format("ini")); err == nil {
		t.Fatal("Parse() expected error for unknown format")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("A_VAR", "alpha")

	got := expandEnvVars("x=${A_VAR}, y=${NOT_SET_ANYWHERE}, z=$A_VAR")
	want := "x=alpha, y=, z=$A_VAR"
	if got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}

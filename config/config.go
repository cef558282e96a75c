/*
Package config loads server configuration from a TOML file with flag-friendly
defaults.

PURPOSE:
  One place for everything cmd/server needs to boot: HTTP port, SQLite
  database path, CORS origins, and shutdown timeout. A missing config file
  is not an error; defaults apply and flags can still override the result.

FORMAT (TOML):
  [server]
  port = 8080
  shutdown_timeout_seconds = 30
  cors_origins = ["http://localhost:5173"]

  [database]
  path = "./data/dues.db"

SEE ALSO:
  - cmd/server/main.go: Loads this and applies flag overrides
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int      `toml:"port"`
	ShutdownTimeout int      `toml:"shutdown_timeout_seconds"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Path: "dues.db",
		},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file
// returns the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return cfg, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	return cfg, nil
}

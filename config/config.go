// Package config loads the proxy's YAML configuration file onto built-in
// defaults; cmd/proxycache then applies command-line flag overrides on top
// of it, the same two-layer approach the teacher's own config loader uses
// for its origin rules file.
package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the proxy's full runtime configuration.
type Config struct {
	ListenPort   int           `yaml:"listenPort"`
	CacheSlots   int           `yaml:"cacheSlots"`
	LogPath      string        `yaml:"logPath"`
	LogLevel     string        `yaml:"logLevel"`
	ConnDeadline time.Duration `yaml:"connDeadline"`
	AdminPort    int           `yaml:"adminPort"`
	AuditDBPath  string        `yaml:"auditDBPath"`
}

// Default returns the configuration used when no file is given and no
// flags override it: port 12345 (the reference's PROXY_PORT), a 4096-slot
// cache (the reference's CACHE_ENTRIES), a 60s idle deadline, and both the
// admin API and audit log disabled.
func Default() Config {
	return Config{
		ListenPort:   12345,
		CacheSlots:   4096,
		LogLevel:     "info",
		ConnDeadline: 60 * time.Second,
		AdminPort:    0,
		AuditDBPath:  "",
	}
}

// Load reads a YAML file at path and merges it onto Default(). An empty
// path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseLogLevel translates the config's textual level into a
// zerolog.Level, defaulting to Info on an empty or unrecognized string.
func ParseLogLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

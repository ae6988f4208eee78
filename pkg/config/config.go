// Package config loads the deployment-specific configuration (credentials,
// addresses, log levels) from a YAML file, with environment variable
// overrides for every property.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration tree.
type Config struct {
	// Token authenticates the bot with the chat service.
	Token string `yaml:"token"`
	// Prefix marks messages as commands when it leads them.
	Prefix string `yaml:"prefix"`
	// LogLevel is a zerolog level name (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	Music  Music  `yaml:"music"`
	Remote Remote `yaml:"remote"`
	Store  Store  `yaml:"store"`
}

// Music configures the music playback module.
type Music struct {
	// ExtractorWorkers bounds the number of concurrent track metadata
	// extractions.
	ExtractorWorkers int `yaml:"extractor_workers"`
	// RemoteBaseURL is the public base URL shown with player access codes.
	RemoteBaseURL string `yaml:"remote_base_url"`
}

// Remote configures the remote control listener.
type Remote struct {
	// ListenAddr is the TCP address to serve remote control connections on.
	// The listener is disabled when empty.
	ListenAddr string `yaml:"listen_addr"`
}

// Store configures the invocation history store.
type Store struct {
	// Path to the database file.
	Path string `yaml:"path"`
}

// Default returns the configuration defaults applied below the file and the
// environment.
func Default() *Config {
	return &Config{
		Prefix:   "!",
		LogLevel: "info",
		Music:    Music{ExtractorWorkers: 4},
		Store:    Store{Path: "acmebot.db"},
	}
}

// Load reads the configuration file at path (skipped when path is empty),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("required config property is missing: token (DISCORD_TOKEN)")
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	overrideString("DISCORD_TOKEN", &cfg.Token)
	overrideString("COMMAND_PREFIX", &cfg.Prefix)
	overrideString("LOG_LEVEL", &cfg.LogLevel)
	overrideString("MUSIC_REMOTE_BASE_URL", &cfg.Music.RemoteBaseURL)
	overrideString("REMOTE_LISTEN_ADDR", &cfg.Remote.ListenAddr)
	overrideString("STORE_PATH", &cfg.Store.Path)
	return overrideInt("MUSIC_EXTRACTOR_MAX_WORKERS", &cfg.Music.ExtractorWorkers)
}

func overrideString(name string, dst *string) {
	if value, ok := os.LookupEnv(name); ok && value != "" {
		*dst = value
	}
}

func overrideInt(name string, dst *int) error {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config property %s: %w", name, err)
	}
	*dst = n
	return nil
}

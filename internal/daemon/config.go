// Package daemon holds the service configuration and wires storage, remote
// sync, generation and the session into a running server.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/forgeworks/forge/internal/app/narrative"
	"github.com/forgeworks/forge/internal/domain"
	"github.com/forgeworks/forge/internal/infra/gemini"
	"github.com/forgeworks/forge/internal/infra/remote"
)

// Config is the full service configuration, read from config.toml and then
// overridden by FORGE_* environment variables.
type Config struct {
	Forge      ForgeConfig      `toml:"forge"      envPrefix:"FORGE_"`
	API        APIConfig        `toml:"api"        envPrefix:"FORGE_API_"`
	Storage    StorageConfig    `toml:"storage"    envPrefix:"FORGE_STORAGE_"`
	Remote     RemoteConfig     `toml:"remote"     envPrefix:"FORGE_REMOTE_"`
	Generation GenerationConfig `toml:"generation" envPrefix:"FORGE_GENERATION_"`
}

// ForgeConfig controls the tracker.
type ForgeConfig struct {
	Enabled             bool   `toml:"enabled"               env:"ENABLED"`
	CPPerResponse       int    `toml:"cp_per_response"       env:"CP_PER_RESPONSE"`
	Threshold           int    `toml:"threshold"             env:"THRESHOLD"`
	BankMax             int    `toml:"bank_max"              env:"BANK_MAX"`
	AutoParseCheckpoint bool   `toml:"auto_parse_checkpoint" env:"AUTO_PARSE_CHECKPOINT"`
	CharacterName       string `toml:"character_name"        env:"CHARACTER_NAME"`
	Debug               bool   `toml:"debug"                 env:"DEBUG"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"    env:"HOST"`
	Port    int    `toml:"port"    env:"PORT"`
	Metrics bool   `toml:"metrics" env:"METRICS"`
}

// StorageConfig locates the local database.
type StorageConfig struct {
	Dir string `toml:"dir" env:"DIR"`
}

// RemoteConfig enables the Supabase mirror.
type RemoteConfig struct {
	Enabled     bool   `toml:"enabled"      env:"ENABLED"`
	SupabaseURL string `toml:"supabase_url" env:"SUPABASE_URL"`
	SupabaseKey string `toml:"supabase_key" env:"SUPABASE_KEY"`
	Table       string `toml:"table"        env:"TABLE"`
	Timeout     string `toml:"timeout"      env:"TIMEOUT"`
	MaxRetries  int    `toml:"max_retries"  env:"MAX_RETRIES"`
}

// GenerationConfig enables constellation guide generation.
type GenerationConfig struct {
	Enabled bool   `toml:"enabled" env:"ENABLED"`
	APIKey  string `toml:"api_key" env:"API_KEY"`
	Model   string `toml:"model"   env:"MODEL"`
	Timeout string `toml:"timeout" env:"TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Forge: ForgeConfig{
			Enabled:             true,
			CPPerResponse:       domain.DefaultCPPerResponse,
			Threshold:           domain.DefaultThreshold,
			BankMax:             domain.DefaultBankMax,
			AutoParseCheckpoint: true,
			CharacterName:       narrative.DefaultCharacterName,
		},
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    11500,
			Metrics: true,
		},
		Storage: StorageConfig{
			Dir: Home(),
		},
		Remote: RemoteConfig{
			Table:      remote.DefaultTable,
			Timeout:    "15s",
			MaxRetries: 3,
		},
		Generation: GenerationConfig{
			Model:   gemini.DefaultModel,
			Timeout: "30s",
		},
	}
}

// Home returns the forge home directory: $FORGE_HOME or ~/.forge.
func Home() string {
	if h := os.Getenv("FORGE_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forge"
	}
	return filepath.Join(home, ".forge")
}

// ConfigPath is where LoadConfig looks by default.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads path over the defaults. A missing file is not an error.
// Environment variables win over the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.Forge.CPPerResponse < 0 {
		return errors.New("forge.cp_per_response must not be negative")
	}
	if c.Forge.Threshold <= 0 {
		return errors.New("forge.threshold must be positive")
	}
	if c.Forge.BankMax <= 0 {
		return errors.New("forge.bank_max must be positive")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Remote.Enabled && (c.Remote.SupabaseURL == "" || c.Remote.SupabaseKey == "") {
		return errors.New("remote.enabled requires supabase_url and supabase_key")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// parseDuration reads a config duration, falling back to def when empty or
// malformed.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

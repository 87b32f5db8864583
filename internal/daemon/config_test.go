package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 11500 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 11500)
	}
	if !cfg.Forge.Enabled || !cfg.Forge.AutoParseCheckpoint {
		t.Error("tracking and checkpoint parsing should be on by default")
	}
	if cfg.Forge.CPPerResponse != 10 || cfg.Forge.Threshold != 100 || cfg.Forge.BankMax != 10 {
		t.Errorf("Forge = %+v", cfg.Forge)
	}
	if cfg.Forge.CharacterName != "Smith" {
		t.Errorf("Forge.CharacterName = %q, want %q", cfg.Forge.CharacterName, "Smith")
	}

	// Remote and generation are opt-in.
	if cfg.Remote.Enabled {
		t.Error("Remote.Enabled should be false by default")
	}
	if cfg.Remote.Table != "forge_files" || cfg.Remote.Timeout != "15s" || cfg.Remote.MaxRetries != 3 {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Generation.Enabled {
		t.Error("Generation.Enabled should be false by default")
	}
	if cfg.Generation.Model != "gemini-1.5-flash" {
		t.Errorf("Generation.Model = %q", cfg.Generation.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[forge]
cp_per_response = 25
character_name = "Vex"

[api]
port = 12000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FORGE_API_PORT", "13000")
	t.Setenv("FORGE_DEBUG", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Forge.CPPerResponse != 25 || cfg.Forge.CharacterName != "Vex" {
		t.Errorf("file values not applied: %+v", cfg.Forge)
	}
	if cfg.API.Port != 13000 {
		t.Errorf("API.Port = %d, want env override 13000", cfg.API.Port)
	}
	if !cfg.Forge.Debug {
		t.Error("FORGE_DEBUG not applied")
	}
	if cfg.Forge.Threshold != 100 {
		t.Errorf("unset Threshold = %d, want default 100", cfg.Forge.Threshold)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig(missing) error: %v", err)
	}
	if cfg.API.Port != 11500 {
		t.Errorf("API.Port = %d", cfg.API.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Forge.Threshold = 0 }},
		{"zero bank", func(c *Config) { c.Forge.BankMax = 0 }},
		{"bad port", func(c *Config) { c.API.Port = 70000 }},
		{"remote without credentials", func(c *Config) { c.Remote.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"15s", 15 * time.Second},
		{"2m", 2 * time.Minute},
		{"", 30 * time.Second},
		{"soon", 30 * time.Second},
		{"-1s", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, 30*time.Second); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew_LocalOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	cfg.Generation.Enabled = true // no key: runs without generation

	d, err := New(context.Background(), cfg, "chat-1")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer d.Close()

	if d.gen != nil || d.syncer != nil {
		t.Error("optional services started without configuration")
	}
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status endpoint: got %d", w.Code)
	}
}

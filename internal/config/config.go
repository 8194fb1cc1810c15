package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General GeneralConfig `toml:"general"`
	Backend BackendConfig `toml:"backend"`
	Web     WebConfig     `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	// DatabasePath is the run-history SQLite file. Empty disables
	// history recording.
	DatabasePath string `toml:"database_path"`

	// PromptOverrideDir is checked before the embedded stage prompts.
	PromptOverrideDir string `toml:"prompt_override_dir"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `toml:"log_level"`
}

// BackendConfig holds AI backend endpoints
type BackendConfig struct {
	// BaseURL is the generation API root.
	BaseURL string `toml:"base_url"`

	// BotEventsURL and ResearchEventsURL are the push channels.
	BotEventsURL      string `toml:"bot_events_url"`
	ResearchEventsURL string `toml:"research_events_url"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:      filepath.Join(home, ".streamcore", "history.db"),
			PromptOverrideDir: filepath.Join(home, ".config", "streamcore", "prompts"),
			LogLevel:          "info",
		},
		Backend: BackendConfig{
			BaseURL:           "http://127.0.0.1:9400",
			BotEventsURL:      "http://127.0.0.1:9400/v1/events/bots",
			ResearchEventsURL: "http://127.0.0.1:9400/v1/events/research",
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.PromptOverrideDir = ExpandPath(cfg.General.PromptOverrideDir)

	return cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "streamcore", "config.toml")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "fieldops.yml"

// Config models fieldops.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" json:"addr"`
		BasePath    string   `yaml:"base_path" json:"base_path"`
		CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	} `yaml:"server" json:"server"`
	Objectives struct {
		DefaultPoints int `yaml:"default_points" json:"default_points"`
	} `yaml:"objectives" json:"objectives"`
	Domination struct {
		PointsPerTick    int `yaml:"points_per_tick" json:"points_per_tick"`
		TickIntervalSec  int `yaml:"tick_interval_sec" json:"tick_interval_sec"`
		SweepIntervalSec int `yaml:"sweep_interval_sec" json:"sweep_interval_sec"`
	} `yaml:"domination" json:"domination"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"-"`
	Events         []string `yaml:"events" json:"events"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with fo init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Objectives.DefaultPoints < 0 {
		return fmt.Errorf("config.objectives.default_points must be >= 0")
	}
	if c.Domination.PointsPerTick < 0 {
		return fmt.Errorf("config.domination.points_per_tick must be >= 0")
	}
	if c.Domination.TickIntervalSec < 1 {
		return fmt.Errorf("config.domination.tick_interval_sec must be >= 1")
	}
	if c.Domination.SweepIntervalSec < 0 {
		return fmt.Errorf("config.domination.sweep_interval_sec must be >= 0")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  cors_origins: []

objectives:
  default_points: 10

domination:
  points_per_tick: 1
  tick_interval_sec: 10
  # 0 disables the background sweeper; scores are then recomputed on read only
  sweep_interval_sec: 15

webhooks: []
`

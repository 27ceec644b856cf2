package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml.
type Config struct {
	Backend struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Session struct {
		BootstrapDelay time.Duration `yaml:"bootstrap_delay"`
	} `yaml:"session"`
	Polling Polling `yaml:"polling"`
	Gate    struct {
		SettleDelay time.Duration `yaml:"settle_delay"`
	} `yaml:"gate"`
	Vacations struct {
		RefetchDelay time.Duration `yaml:"refetch_delay"`
	} `yaml:"vacations"`
	Chat struct {
		DefaultChannel string `yaml:"default_channel"`
	} `yaml:"chat"`
}

// Polling holds the cadence of every poll channel.
type Polling struct {
	Home        time.Duration `yaml:"home"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	Roster      time.Duration `yaml:"roster"`
	PrivateChat time.Duration `yaml:"private_chat"`
	ChannelChat time.Duration `yaml:"channel_chat"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fieldline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("config.backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.backend.base_url must be an absolute URL")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("config.backend.timeout must be positive")
	}
	for name, d := range map[string]time.Duration{
		"home":         c.Polling.Home,
		"heartbeat":    c.Polling.Heartbeat,
		"roster":       c.Polling.Roster,
		"private_chat": c.Polling.PrivateChat,
		"channel_chat": c.Polling.ChannelChat,
	} {
		if d <= 0 {
			return fmt.Errorf("config.polling.%s must be positive", name)
		}
	}
	if c.Gate.SettleDelay < 0 {
		return fmt.Errorf("config.gate.settle_delay must not be negative")
	}
	if c.Session.BootstrapDelay < 0 {
		return fmt.Errorf("config.session.bootstrap_delay must not be negative")
	}
	if c.Vacations.RefetchDelay < 0 {
		return fmt.Errorf("config.vacations.refetch_delay must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// GenerateDefault returns default config YAML pointing at baseURL.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(DefaultBaseURL)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
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

const DefaultBaseURL = "http://127.0.0.1:8080"

const defaultTemplate = `backend:
  base_url: %s
  timeout: 12s

session:
  # pause after a successful auto-login before the first screen loads
  bootstrap_delay: 1s

polling:
  home: 30s
  heartbeat: 30s
  roster: 30s
  private_chat: 3s
  channel_chat: 5s

gate:
  settle_delay: 150ms

vacations:
  refetch_delay: 1s

chat:
  default_channel: general
`

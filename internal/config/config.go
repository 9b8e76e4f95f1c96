package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models lumenforge.yml. The AI confidence threshold here is only the
// seed value; the live value is stored in the settings table and re-read per
// scoring call so admins can tune it without a restart.
type Config struct {
	Studio struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"studio"`
	Review struct {
		AIConfidenceThreshold int `yaml:"ai_confidence_threshold"`
	} `yaml:"review"`
	Scoring struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"scoring"`
	Rewards struct {
		Method        string `yaml:"method"`
		DefaultPoints int    `yaml:"default_points"`
	} `yaml:"rewards"`
	Notify struct {
		WebhookURL     string `yaml:"webhook_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"notify"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with lumen config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default("lumenforge"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Studio.ID == "" {
		return fmt.Errorf("config.studio.id is required")
	}
	if c.Review.AIConfidenceThreshold < 0 || c.Review.AIConfidenceThreshold > 100 {
		return fmt.Errorf("config.review.ai_confidence_threshold must be in [0,100]")
	}
	if c.Scoring.TimeoutSeconds < 0 {
		return fmt.Errorf("config.scoring.timeout_seconds must not be negative")
	}
	if c.Rewards.Method == "" {
		return fmt.Errorf("config.rewards.method is required")
	}
	if c.Rewards.DefaultPoints < 0 {
		return fmt.Errorf("config.rewards.default_points must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "lumenforge.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(studioID string) string {
	return fmt.Sprintf(defaultTemplate, studioID)
}

// Default returns the default Config struct for a studio.
func Default(studioID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, studioID)), &cfg)
	cfg.Studio.ID = studioID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `studio:
  id: %s
  name: Lumenforge Studio

review:
  ai_confidence_threshold: 70

scoring:
  base_url: ""
  api_key: ""
  model: ""
  timeout_seconds: 15

rewards:
  method: platform
  default_points: 10

notify:
  webhook_url: ""
  timeout_seconds: 10
`

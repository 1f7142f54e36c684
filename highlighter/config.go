package highlighter

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all highlighter configuration.
type Config struct {
	DBPath string       `yaml:"db_path"`
	Listen string       `yaml:"listen"`
	Marker MarkerConfig `yaml:"marker"`
	Mirror MirrorConfig `yaml:"mirror"`
	Auth   AuthConfig   `yaml:"auth"`
}

// MarkerConfig controls how applied markers look by default.
type MarkerConfig struct {
	DefaultColor string `yaml:"default_color"`
}

// MirrorConfig points at the optional remote store highlights are synced to.
type MirrorConfig struct {
	URL        string `yaml:"url"`
	IntervalMS int64  `yaml:"interval_ms"`
}

// AuthConfig enables HTTP basic auth when a bcrypt hash is configured.
type AuthConfig struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "surlign.db"
	}
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.Marker.DefaultColor == "" {
		c.Marker.DefaultColor = "yellow"
	}
	if c.Auth.User == "" {
		c.Auth.User = "surlign"
	}
	if c.Mirror.IntervalMS == 0 {
		c.Mirror.IntervalMS = 30000
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

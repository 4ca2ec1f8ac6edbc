package app

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/cowinbot/core/config"
	coredatabase "github.com/m3rciful/cowinbot/core/database"
	"github.com/m3rciful/cowinbot/internal/cowin"
)

// Config is the full application configuration: the shared core plus
// the CoWIN client and the optional audit database.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Cowin    cowin.Config        `yaml:"cowin"`
	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads the YAML config, overlays environment variables, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if cfg.Cowin.UserAgent == "" {
		return nil, fmt.Errorf("cowin.user_agent is required; the public API rejects requests without one")
	}
	return &cfg, nil
}

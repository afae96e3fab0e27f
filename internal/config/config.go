// Package config loads the single YAML configuration document CTT's
// CLI entrypoint takes as its one positional argument (spec.md §6).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NCAR/ctt-server/internal/scheduler"
	"github.com/NCAR/ctt-server/internal/topology"
)

// Config is the full recognized shape of the configuration document.
type Config struct {
	PollIntervalSeconds int    `yaml:"poll_interval"`
	DB                  string `yaml:"db"`
	CertsDir            string `yaml:"certs_dir"`
	ServerAddr          string `yaml:"server_addr"`

	Auth AuthConfig `yaml:"auth"`

	Slack SlackConfig `yaml:"slack"`

	Cluster   topology.Config  `yaml:"cluster"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// AuthConfig names the OS groups that grant each role (spec.md §6).
type AuthConfig struct {
	Admin []string `yaml:"admin"`
	Guest []string `yaml:"guest"`
}

// SlackConfig carries the changelog chat sink's credentials.
type SlackConfig struct {
	Channel string `yaml:"channel"`
	Token   string `yaml:"token"`
}

// PollInterval is PollIntervalSeconds as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Load reads and validates the configuration document at path. Every
// error it returns names the file and the failing step (reading,
// parsing, or a specific validation rule).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval must be a positive number of seconds")
	}
	if c.DB == "" {
		return fmt.Errorf("db is required")
	}
	if c.Cluster.Regex == nil && c.Cluster.Shell == nil {
		return fmt.Errorf("cluster must configure either Regex or Shell")
	}
	if !c.Scheduler.Native && c.Scheduler.Shell == nil {
		return fmt.Errorf("scheduler must configure either the native scheduler or Shell")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/vigil/internal/env"
	"github.com/loykin/vigil/internal/history"
	"github.com/loykin/vigil/internal/history/factory"
	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/monitor"
	"github.com/loykin/vigil/internal/notify"
	"github.com/loykin/vigil/internal/tls"
	"github.com/spf13/viper"
)

// Config is the top-level TOML structure of a watchdog deployment. Durations
// are written as strings ("30s", "5m"); services are [[service]] blocks.
type Config struct {
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
	Policy   monitor.Policy `toml:"policy" mapstructure:"policy"`
	Notify   *notify.Config `toml:"notify" mapstructure:"notify"`
	Server   *ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics  *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History  *HistoryConfig `toml:"history" mapstructure:"history"`
	Services []monitor.Spec `toml:"service" mapstructure:"service"`
}

// ServerConfig is the [server] section: the read-only status API. PidFile
// and LogFile only matter when the daemon is started with --daemonize.
type ServerConfig struct {
	Listen   string      `toml:"listen" mapstructure:"listen"`
	BasePath string      `toml:"base_path" mapstructure:"base_path"`
	PidFile  string      `toml:"pidfile" mapstructure:"pidfile"`
	LogFile  string      `toml:"logfile" mapstructure:"logfile"`
	TLS      *tls.Config `toml:"tls" mapstructure:"tls"`
}

// MetricsConfig is the [metrics] section. When Listen is empty the metrics
// endpoint is mounted on the status API server instead of its own listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig is the [history] section. Each sink entry is a DSN resolved
// by the history factory (sqlite, postgres, clickhouse, opensearch).
type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	Sinks   []string `toml:"sinks" mapstructure:"sinks"`
}

// BuildSinks materializes one audit sink per configured DSN. It returns
// (nil, nil) when the section is absent or disabled.
func (h *HistoryConfig) BuildSinks() ([]history.Sink, error) {
	if h == nil || !h.Enabled {
		return nil, nil
	}
	sinks := make([]history.Sink, 0, len(h.Sinks))
	for _, dsn := range h.Sinks {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// Load reads, validates and normalizes the watchdog configuration. Policy
// gaps are filled with defaults and top-level capture settings are layered
// under each service's own [service.log] block.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.Policy = c.Policy.Normalize()
	for i := range c.Services {
		c.Services[i].Log = c.Log.File.Merged(c.Services[i].Log)
	}
	return &c, nil
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Services))
	for i := range c.Services {
		s := &c.Services[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate service name: %s", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	if c.Notify != nil && strings.TrimSpace(c.Notify.URL) == "" {
		return errors.New("[notify] requires url")
	}
	if c.Server != nil && strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("[server] requires listen")
	}
	if c.History != nil && c.History.Enabled && len(c.History.Sinks) == 0 {
		return errors.New("[history] is enabled but lists no sinks")
	}
	return nil
}

// EnvTable builds the global environment layer for supervised services.
// Precedence, lowest to highest: OS environment (when use_os_env), env_files
// in listed order, then the top-level env list.
func (c *Config) EnvTable() (*env.Table, error) {
	t := env.New()
	if c.UseOSEnv {
		t.UseOS()
	}
	for _, f := range c.EnvFiles {
		if err := t.LoadFile(f); err != nil {
			return nil, err
		}
	}
	t.SetAll(c.Env)
	return t, nil
}

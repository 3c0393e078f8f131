// Package config handles Envoy configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/envoy/config.yaml, /etc/envoy/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "envoy", "config.yaml"))
	}

	paths = append(paths, "/etc/envoy/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Envoy configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Completions CompletionsConfig `yaml:"completions"`
	Delegation  DelegationConfig  `yaml:"delegation"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// CompletionsConfig defines the chat-completion endpoint Envoy invokes to
// run a model turn for a conversation. The endpoint is responsible for
// streaming the response and persisting the resulting messages.
type CompletionsConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// DelegationConfig tunes the sub-agent delegation subsystem.
type DelegationConfig struct {
	// RetentionMinutes is how long a settled delegation remains visible
	// to observe/list before it is evicted (default 10).
	RetentionMinutes int `yaml:"retention_minutes"`
	// PollAttempts is the number of message-store polls after stream end
	// while waiting for the assistant message to persist (default 20).
	PollAttempts int `yaml:"poll_attempts"`
	// PollIntervalMs is the delay between polls in milliseconds (default 300).
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// MaxObserveWaitSec caps the blocking wait allowed on observe (default 600).
	MaxObserveWaitSec int `yaml:"max_observe_wait_sec"`
}

// Retention returns the settled-delegation retention window.
func (d DelegationConfig) Retention() time.Duration {
	m := d.RetentionMinutes
	if m <= 0 {
		m = 10
	}
	return time.Duration(m) * time.Minute
}

// PollInterval returns the convergence-poll interval.
func (d DelegationConfig) PollInterval() time.Duration {
	ms := d.PollIntervalMs
	if ms <= 0 {
		ms = 300
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxObserveWait returns the cap on an observe blocking wait.
func (d DelegationConfig) MaxObserveWait() time.Duration {
	s := d.MaxObserveWaitSec
	if s <= 0 {
		s = 600
	}
	return time.Duration(s) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Delegation.RetentionMinutes <= 0 {
		c.Delegation.RetentionMinutes = 10
	}
	if c.Delegation.PollAttempts <= 0 {
		c.Delegation.PollAttempts = 20
	}
	if c.Delegation.PollIntervalMs <= 0 {
		c.Delegation.PollIntervalMs = 300
	}
	if c.Delegation.MaxObserveWaitSec <= 0 {
		c.Delegation.MaxObserveWaitSec = 600
	}
}

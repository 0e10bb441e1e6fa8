package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loadable from a YAML file.
// Zero-value fields fall back to defaults during Normalize.
type Config struct {
	ListenAddr  string            `yaml:"listen_addr"`
	Logging     LoggingConfig     `yaml:"logging"`
	Replication ReplicationConfig `yaml:"replication"`
	Store       StoreConfig       `yaml:"store"`
}

type LoggingConfig struct {
	Sinks           []string `yaml:"sinks"`
	BufferSize      int      `yaml:"buffer_size"`
	MinimumSeverity string   `yaml:"minimum_severity"`
	JSONFilePath    string   `yaml:"json_file_path"`
	JSONFlushMillis int      `yaml:"json_flush_ms"`
}

type ReplicationConfig struct {
	// WriteQueue is the per-observer outbound message buffer. A full
	// queue disconnects the observer rather than stalling the producer.
	WriteQueue      int `yaml:"write_queue"`
	ReadLimitBytes  int `yaml:"read_limit_bytes"`
	PingIntervalSec int `yaml:"ping_interval_sec"`
}

type StoreConfig struct {
	NotifyBuffer int `yaml:"notify_buffer"`
}

func Default() Config {
	cfg := Config{}
	cfg.Normalize()
	return cfg
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = ":8080"
	}
	if len(c.Logging.Sinks) == 0 {
		c.Logging.Sinks = []string{"console"}
	}
	if c.Logging.BufferSize <= 0 {
		c.Logging.BufferSize = 256
	}
	if strings.TrimSpace(c.Logging.MinimumSeverity) == "" {
		c.Logging.MinimumSeverity = "info"
	}
	if c.Logging.JSONFlushMillis <= 0 {
		c.Logging.JSONFlushMillis = 1000
	}
	if c.Replication.WriteQueue <= 0 {
		c.Replication.WriteQueue = 64
	}
	if c.Replication.ReadLimitBytes <= 0 {
		c.Replication.ReadLimitBytes = 1 << 16
	}
	if c.Replication.PingIntervalSec <= 0 {
		c.Replication.PingIntervalSec = 30
	}
	if c.Store.NotifyBuffer <= 0 {
		c.Store.NotifyBuffer = 16
	}
}

func (c Config) Validate() error {
	for _, sink := range c.Logging.Sinks {
		switch sink {
		case "console", "json":
		default:
			return fmt.Errorf("unknown logging sink %q", sink)
		}
		if sink == "json" && strings.TrimSpace(c.Logging.JSONFilePath) == "" {
			return fmt.Errorf("logging sink %q requires json_file_path", sink)
		}
	}
	switch c.Logging.MinimumSeverity {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown minimum_severity %q", c.Logging.MinimumSeverity)
	}
	return nil
}

func (c Config) JSONFlushInterval() time.Duration {
	return time.Duration(c.Logging.JSONFlushMillis) * time.Millisecond
}

func (c Config) PingInterval() time.Duration {
	return time.Duration(c.Replication.PingIntervalSec) * time.Second
}

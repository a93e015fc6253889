package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/CTAG07/Sundew/pkg/engine"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr     string            `json:"server_addr"`
	ApiAddr        string            `json:"api_addr"`
	LogLevel       string            `json:"log_level"`
	DataDir        string            `json:"data_dir"`
	DatabasePath   string            `json:"database_path"`
	DefaultContext string            `json:"default_context"`
	MaxBodyBytes   int64             `json:"max_body_bytes"`
	Headers        map[string]string `json:"headers"`
	HistoryConfig  *HistoryConfig    `json:"history_config"`
}

// HistoryConfig holds settings for the render history and its cleanup.
type HistoryConfig struct {
	Enabled          bool `json:"enabled"`
	RetentionHours   int  `json:"retention_hours"`
	PruneIntervalMin int  `json:"prune_interval_min"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig  `json:"server_config"`
	Engine *engine.Config `json:"engine_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:     ":7377",
		ApiAddr:        ":7378",
		LogLevel:       "info",
		DataDir:        "./data",
		DatabasePath:   "./data/sundew.db",
		DefaultContext: "default",
		MaxBodyBytes:   1 << 20, // 1MB
		Headers: map[string]string{
			"Cache-Control": "no-store",
			"Content-Type":  "text/html; charset=utf-8",
		},
		HistoryConfig: &HistoryConfig{
			Enabled:          true,
			RetentionHours:   72,
			PruneIntervalMin: 30,
		},
	}
}

// DefaultConfig returns a Config with every section set to its defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Engine: engine.DefaultConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The defaults are still usable without a file on disk.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

// Validate checks the parts of the configuration that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	if c.Server.HistoryConfig == nil {
		c.Server.HistoryConfig = DefaultServerConfig().HistoryConfig
	}
	if c.Engine == nil {
		c.Engine = engine.DefaultConfig()
	}
	if _, ok := engine.ParsePolicy(string(c.Engine.ErrorPolicy)); !ok {
		return fmt.Errorf("unknown error policy %q", c.Engine.ErrorPolicy)
	}
	return nil
}

// parseLogLevel maps a config level name to a slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ConfigManager handles thread-safe access to configuration and pushes
// engine changes to the processor.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	proc       *engine.Processor
	patchMu    sync.Mutex
}

var errInvalidPatch = errors.New("invalid configuration document")

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{config: cfg, configPath: path}, nil
}

// SetProcessor registers the processor to receive engine config updates.
func (cm *ConfigManager) SetProcessor(proc *engine.Processor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.proc = proc
	if proc != nil {
		proc.SetConfig(cm.config.Engine)
	}
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates and applies the configuration, then saves it to disk.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	*cm.config = newConfig
	if cm.proc != nil {
		cm.proc.SetConfig(newConfig.Engine)
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Patch decodes a partial JSON configuration from r over a copy of the
// current one and applies the result. Fields absent from r keep their
// values. restart reports whether a listener or storage setting changed,
// which only takes effect on the next start.
func (cm *ConfigManager) Patch(r io.Reader) (cfg Config, restart bool, err error) {
	cm.patchMu.Lock()
	defer cm.patchMu.Unlock()

	old := cm.Get()
	data, err := json.Marshal(old)
	if err != nil {
		return Config{}, false, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = json.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("failed to copy config: %w", err)
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err = dec.Decode(&cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w: %w", errInvalidPatch, err)
	}
	if cfg.Server == nil || cfg.Engine == nil {
		return Config{}, false, fmt.Errorf("%w: server_config and engine_config cannot be null", errInvalidPatch)
	}
	if err = cm.Update(cfg); err != nil {
		return Config{}, false, err
	}

	was, now := old.Server, cfg.Server
	restart = was.ServerAddr != now.ServerAddr ||
		was.ApiAddr != now.ApiAddr ||
		was.DataDir != now.DataDir ||
		was.DatabasePath != now.DatabasePath
	return cfg, restart, nil
}

// readConfig loads the configuration at path without creating it. A missing
// file yields the defaults.
func readConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return LoadConfig(path)
}

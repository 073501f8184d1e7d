// Package config handles configuration loading, validation, and persistence
// for rconsole.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/util"
)

const (
	DefaultConfigFile  = "config.toml"
	DefaultRCONPort    = 27015
	DefaultAPIPort     = 8080
	DefaultMQTTPort    = 1883
	DefaultHistoryFile = "rconsole.db"
)

// Config is the root configuration structure for rconsole.
type Config struct {
	mu   sync.RWMutex
	path string

	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	History HistoryConfig `toml:"history"`
	API     APIConfig     `toml:"api"`
	MQTT    MQTTConfig    `toml:"mqtt"`
}

// ServerConfig describes the RCON server to administer.
type ServerConfig struct {
	Address         string `toml:"address"`
	Port            int    `toml:"port"`
	Password        string `toml:"password"`
	DialTimeoutSec  int    `toml:"dial_timeout_sec"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec"`
	WriteTimeoutSec int    `toml:"write_timeout_sec"`
	// MultiPacket enables reassembly of responses split over several packets.
	MultiPacket bool `toml:"multi_packet"`
}

// DialTimeout returns the connect timeout. Zero means no timeout.
func (s ServerConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutSec) * time.Second
}

// ReadTimeout returns the per-read timeout. Zero means no timeout.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the per-write timeout. Zero means no timeout.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Directory  string `toml:"directory"`
	MaxBackups int    `toml:"max_backups"`
	Console    bool   `toml:"console"`
}

// HistoryConfig controls the local command history database.
type HistoryConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	MaxEntries int    `toml:"max_entries"`
	// PruneAt is the daily HH:MM at which the gateway trims the history
	// to MaxEntries.
	PruneAt string `toml:"prune_at"`
}

// APIConfig holds HTTP gateway settings.
type APIConfig struct {
	Listen         string   `toml:"listen"`
	Port           int      `toml:"port"`
	Token          string   `toml:"token"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RateLimitRPS   int      `toml:"rate_limit_rps"`
}

// MQTTConfig holds MQTT audit settings.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	BrokerURL   string `toml:"broker_url"`
	Port        int    `toml:"port"`
	UseTLS      bool   `toml:"use_tls"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	logDefaults := util.DefaultLogConfig()
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1",
			Port:            DefaultRCONPort,
			DialTimeoutSec:  10,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level:      logDefaults.Level,
			Directory:  logDefaults.Directory,
			MaxBackups: logDefaults.MaxBackups,
			Console:    logDefaults.Console,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       DefaultHistoryFile,
			MaxEntries: 10000,
			PruneAt:    "04:00",
		},
		API: APIConfig{
			Listen:         "127.0.0.1",
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimitRPS:   20,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Port:        DefaultMQTTPort,
			TopicPrefix: "rconsole",
		},
	}
}

// Load reads configuration from a TOML file. A missing file is created
// with the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	if !util.FileExists(path) {
		log.Info().Str("path", path).Msg("config file not found, creating default")
		cfg := DefaultConfig()
		cfg.path = path
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.path = path
	log.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if dir := filepath.Dir(c.path); dir != "." {
		if err := util.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the RCON password.
	if err := os.WriteFile(c.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer updates the server configuration.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetHistory returns a copy of the history configuration.
func (c *Config) GetHistory() HistoryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.History
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// LogConfig converts the logging section for util.InitLogger.
func (c *Config) LogConfig() util.LogConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return util.LogConfig{
		Level:      c.Logging.Level,
		Directory:  c.Logging.Directory,
		MaxBackups: c.Logging.MaxBackups,
		Console:    c.Logging.Console,
	}
}

// SetLogLevel overrides the configured log level.
func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logging.Level = level
}

// Address returns the RCON server address as host:port.
func (c *Config) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// APIAddress returns the HTTP gateway listen address as host:port.
func (c *Config) APIAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return net.JoinHostPort(c.API.Listen, strconv.Itoa(c.API.Port))
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.Password == ""
}

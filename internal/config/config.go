// Package config handles configuration loading, validation, and persistence
// for the login helper. Without a config file the compiled-in defaults apply.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/loginhelper/internal/util"
)

const (
	DefaultSecret          = "hunter2"
	DefaultPollInterval    = 3
	DefaultProbeCVar       = "scr_allowsnap"
	DefaultTokenLength     = 11
	DefaultMQTTPort        = 8883
	DefaultPublishTimeout  = 5
	DefaultAnnoyanceOnJoin = true
)

// Config is the root configuration structure for the login helper.
type Config struct {
	mu   sync.RWMutex
	path string

	Session     SessionConfig     `json:"session"`
	Credentials CredentialsConfig `json:"credentials"`
	MQTT        MQTTConfig        `json:"mqtt"`
	Logging     util.LogConfig    `json:"logging"`
}

// SessionConfig controls the login handshake and the steady state loop.
type SessionConfig struct {
	// Password accepted for any username when no credential database is set
	Secret string `json:"secret"`

	// Steady state poll timeout
	PollIntervalSec int `json:"poll_interval_sec"`

	// Bound on one allow-snap probe round trip; 0 waits forever
	ProbeTimeoutSec int `json:"probe_timeout_sec"`

	// Client cvar that must be non-zero to stay connected
	ProbeCVar string `json:"probe_cvar"`

	// Correlation token length
	TokenLength int `json:"token_length"`

	// Echo every received message back to the client as a PRINT
	DebugEcho bool `json:"debug_echo"`

	// Initial state of the !hello annoyance flag
	AnnoyOnJoin bool `json:"annoy_on_join"`
}

// CredentialsConfig selects the credential store.
type CredentialsConfig struct {
	// SQLite database with bcrypt hashes and the session audit log.
	// Empty means the static secret is used and nothing is persisted.
	Database string `json:"database"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled           bool   `json:"enabled"`
	BrokerURL         string `json:"broker_url"`
	Port              int    `json:"port"`
	UseTLS            bool   `json:"use_tls"`
	CertFile          string `json:"cert_file"`
	KeyFile           string `json:"key_file"`
	ClientID          string `json:"client_id"`
	TopicPrefix       string `json:"topic_prefix"`
	PublishTimeoutSec int    `json:"publish_timeout_sec"`
}

// DefaultConfig returns the compiled-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			Secret:          DefaultSecret,
			PollIntervalSec: DefaultPollInterval,
			ProbeTimeoutSec: 0,
			ProbeCVar:       DefaultProbeCVar,
			TokenLength:     DefaultTokenLength,
			DebugEcho:       true,
			AnnoyOnJoin:     DefaultAnnoyanceOnJoin,
		},
		MQTT: MQTTConfig{
			Enabled:           false,
			Port:              DefaultMQTTPort,
			UseTLS:            true,
			TopicPrefix:       "login_helper",
			PublishTimeoutSec: DefaultPublishTimeout,
		},
		Logging: util.DefaultLogConfig(),
	}
}

// Load reads configuration from a JSON file, overlaying the defaults. An empty
// path returns the defaults without touching the filesystem.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.path = path
	log.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

// SaveAs sets the config path and writes the configuration there.
func (c *Config) SaveAs(path string) error {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
	return c.Save()
}

// Save writes the current configuration to its path.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return fmt.Errorf("config has no path")
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds the secret.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path, empty for compiled-in defaults.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// PollInterval returns the steady state poll timeout.
func (s SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

// ProbeTimeout returns the probe bound, zero for unbounded.
func (s SessionConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSec) * time.Second
}

// PublishTimeout returns how long to wait for an MQTT publish to complete.
func (m MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(m.PublishTimeoutSec) * time.Second
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/energizer-project/loginhelper/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Err returns the first error, or nil when the result is valid.
func (r *ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	return r.Errors[0]
}

// Validate performs validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateSession(&cfg.Session, &cfg.Credentials, result)
	validateCredentials(&cfg.Credentials, result)
	validateMQTT(&cfg.MQTT, result)
	validateLogging(&cfg.Logging, result)

	return result
}

func validateSession(s *SessionConfig, creds *CredentialsConfig, result *ValidationResult) {
	if s.Secret == "" && creds.Database == "" {
		result.AddError("session.secret", "a secret is required when no credential database is configured")
	}

	if s.PollIntervalSec < 1 {
		result.AddError("session.poll_interval_sec", "poll interval must be at least 1 second")
	}

	if s.ProbeTimeoutSec < 0 {
		result.AddError("session.probe_timeout_sec", "probe timeout cannot be negative (use 0 to wait forever)")
	}

	cvar := strings.TrimSpace(s.ProbeCVar)
	if cvar == "" {
		result.AddError("session.probe_cvar", "probe cvar is required")
	} else if strings.ContainsAny(cvar, " \t\n;$\"") {
		result.AddError("session.probe_cvar", fmt.Sprintf("invalid cvar name: %q", s.ProbeCVar))
	}

	if s.TokenLength < 1 || s.TokenLength > 64 {
		result.AddError("session.token_length", "token length must be between 1 and 64")
	} else if s.TokenLength < 8 {
		result.AddWarning("session.token_length",
			fmt.Sprintf("short tokens (%d) make collisions with chat text more likely", s.TokenLength))
	}
}

func validateCredentials(c *CredentialsConfig, result *ValidationResult) {
	if c.Database == "" {
		return
	}
	if dir := filepath.Dir(c.Database); !util.FileExists(dir) {
		result.AddWarning("credentials.database",
			fmt.Sprintf("directory does not exist and will be created: %s", dir))
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "cert_file and key_file must be set together")
	}
	if m.PublishTimeoutSec < 1 {
		result.AddWarning("mqtt.publish_timeout_sec", "publish timeout below 1s may drop the final session events")
	}
}

func validateLogging(l *util.LogConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown level %q, using info", l.Level))
	}
	if l.File && strings.TrimSpace(l.Directory) == "" {
		result.AddError("logging.directory", "log directory is required when file logging is enabled")
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
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

// Err returns the first error, or nil when the configuration is valid.
func (r *ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	return r.Errors[0]
}

// Validate checks the whole configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateLogging(&cfg.Logging, result)
	validateHistory(&cfg.History, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.Address) == "" {
		result.AddError("server.address", "server address is required")
	}
	validatePort(s.Port, "server.port", result)

	if s.Password == "" {
		result.AddWarning("server.password", "no RCON password set, login will be rejected by most servers")
	}
	if strings.IndexByte(s.Password, 0) >= 0 {
		result.AddError("server.password", "password must not contain NUL bytes")
	}

	timeouts := map[string]int{
		"server.dial_timeout_sec":  s.DialTimeoutSec,
		"server.read_timeout_sec":  s.ReadTimeoutSec,
		"server.write_timeout_sec": s.WriteTimeoutSec,
	}
	for field, v := range timeouts {
		if v < 0 {
			result.AddError(field, fmt.Sprintf("timeout must not be negative (got %d)", v))
		}
	}
	if s.ReadTimeoutSec == 0 {
		result.AddWarning("server.read_timeout_sec", "no read timeout, a silent server blocks commands forever")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if l.Level == "" {
		return
	}
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown log level %q", l.Level))
	}
}

func validateHistory(h *HistoryConfig, result *ValidationResult) {
	if !h.Enabled {
		return
	}
	if strings.TrimSpace(h.Path) == "" {
		result.AddError("history.path", "history database path is required when history is enabled")
	}
	if h.MaxEntries < 0 {
		result.AddError("history.max_entries", "max entries must not be negative")
	}
	if h.PruneAt != "" {
		if _, err := time.Parse("15:04", h.PruneAt); err != nil {
			result.AddError("history.prune_at", "prune time must be HH:MM")
		}
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	validatePort(a.Port, "api.port", result)

	if a.Token == "" {
		result.AddWarning("api.token", "API token is empty, the HTTP gateway accepts unauthenticated commands")
	} else if len(a.Token) < 16 {
		result.AddWarning("api.token", "API token is shorter than 16 characters")
	}

	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
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
	if strings.TrimSpace(m.TopicPrefix) == "" {
		result.AddError("mqtt.topic_prefix", "topic prefix is required when MQTT is enabled")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

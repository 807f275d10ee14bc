package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/taplinks-cli/internal/apiclient"
	"github.com/florianilch/taplinks-cli/internal/observability"
	"github.com/florianilch/taplinks-cli/internal/sandbox"
	"github.com/florianilch/taplinks-cli/internal/session"
	"github.com/florianilch/taplinks-cli/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for the session.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// KeyringService is the keyring service name the session is stored under.
const KeyringService = "taplinks-session"

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigTelemetryExporter = observability.ExporterNone
	DefaultConfigAPIBaseURL        = apiclient.DefaultBaseURL
	DefaultConfigAPITimeout        = apiclient.DefaultTimeout
	DefaultConfigSessionStorage    = TokenStorageTypeFile
	DefaultConfigSessionEnvPrefix  = "TAPLINKS_SESSION_"
	DefaultConfigSandboxHost       = "127.0.0.1"
	DefaultConfigSandboxPort       = 4010
	DefaultConfigSandboxPhone      = sandbox.DefaultPhoneNumber
	DefaultConfigSandboxPassword   = sandbox.DefaultPassword
	DefaultConfigSandboxTokenTTL   = sandbox.DefaultAccessTokenTTL
	DefaultConfigShutdownTimeout   = 5 * time.Second
)

// TelemetryConfig selects where log records are exported.
type TelemetryConfig struct {
	Exporter string `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// APIConfig holds the connection settings of the Taplinks API.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Endpoint is the host credentials are sent to, defaults to the base URL host.
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout" validate:"gt=0"`
}

// SessionConfig describes where the session is stored.
type SessionConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to session file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
	EnvPrefix   string `json:"env_prefix,omitempty"`   // For env storage: variable name prefix
}

// NewTokenStore creates the session store described by the configuration.
func (s *SessionConfig) NewTokenStore() (tokenstore.Store, error) {
	switch s.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(s.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(s.EnvPrefix, session.Keys...)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(KeyringService, s.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Storage)
	}
}

// SandboxConfig configures the local fake API server.
type SandboxConfig struct {
	Host           string        `json:"host" validate:"hostname_rfc1123|ip"`
	Port           uint16        `json:"port"`
	Phone          string        `json:"phone" validate:"required"`
	Password       string        `json:"password" validate:"required"`
	AccessTokenTTL time.Duration `json:"access_token_ttl" validate:"gt=0"`
}

// MetricsConfig controls export of client metrics.
type MetricsConfig struct {
	// File receives the metrics in Prometheus text format on exit, for the
	// node_exporter textfile collector. Empty disables the export.
	File string `json:"file,omitempty"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	API       APIConfig       `json:"api"`
	Session   SessionConfig   `json:"session"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Metrics   MetricsConfig   `json:"metrics"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Session.Storage == "" {
		c.Session.Storage = DefaultConfigSessionStorage
	}
	if c.Sandbox.Host == "" {
		c.Sandbox.Host = DefaultConfigSandboxHost
	}
	if c.Sandbox.Port == 0 {
		c.Sandbox.Port = DefaultConfigSandboxPort
	}
	if c.Sandbox.Phone == "" {
		c.Sandbox.Phone = DefaultConfigSandboxPhone
	}
	if c.Sandbox.Password == "" {
		c.Sandbox.Password = DefaultConfigSandboxPassword
	}
	if c.Sandbox.AccessTokenTTL == 0 {
		c.Sandbox.AccessTokenTTL = DefaultConfigSandboxTokenTTL
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Session.Storage {
	case TokenStorageTypeFile:
		if c.Session.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("session.file required (auto-detect failed: %w)", err)
			}
			c.Session.File = filepath.Join(configDir, "taplinks", "session.json")
		}
	case TokenStorageTypeKeyring:
		if c.Session.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("session.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Session.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		if c.Session.EnvPrefix == "" {
			c.Session.EnvPrefix = DefaultConfigSessionEnvPrefix
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Session.Storage {
	case TokenStorageTypeFile:
		if c.Session.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Session.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Session.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// SandboxAddress returns the host:port the sandbox listens on.
func (c *Config) SandboxAddress() string {
	return net.JoinHostPort(c.Sandbox.Host, strconv.FormatUint(uint64(c.Sandbox.Port), 10))
}

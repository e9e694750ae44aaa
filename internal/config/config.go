package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort     = 8080
	DefaultTokenTTL     = 24 * time.Hour
	DefaultDatabasePath = "vitalguard.db"
	DefaultModelPath    = "model/isolation_forest.json"
	DefaultPollInterval = 30 * time.Second
)

// Config is the top-level service configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`
}

// AuthConfig configures REST API authentication.
type AuthConfig struct {
	// Mode is one of: jwt | none.
	Mode string `yaml:"mode"`

	// SecretEnv is the name of the environment variable holding the
	// token-signing secret. Required when Mode == "jwt".
	SecretEnv string `yaml:"secret_env"`

	// TokenTTL is how long issued tokens stay valid.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Secret returns the signing secret resolved from the environment.
// Returns empty string if SecretEnv is unset or the variable is not found.
func (a AuthConfig) Secret() string {
	if a.SecretEnv == "" {
		return ""
	}
	return os.Getenv(a.SecretEnv)
}

// DatabaseConfig configures the SQLite record store.
type DatabaseConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// ModelConfig configures the scoring artifact.
type ModelConfig struct {
	// Path is where the trained artifact is loaded from and saved to.
	// If no file exists at this path a model is trained at startup.
	Path string `yaml:"path"`
}

// AlertsConfig holds webhook delivery configuration. The webhook list is
// hot-reloadable through Watch.
type AlertsConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// MonitorConfig configures the device metrics poller.
type MonitorConfig struct {
	// PollInterval controls how often each device source is polled.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Sources is the list of device metric endpoints to poll.
	Sources []Source `yaml:"sources"`
}

// Source describes one polled device metrics endpoint.
type Source struct {
	// Subject is the user the device's readings are recorded under.
	Subject string `yaml:"subject"`

	// Endpoint is the full URL of the device's metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Auth configures how the poller authenticates to this device.
	Auth SourceAuth `yaml:"auth"`
}

// SourceAuth specifies the authentication mode for a device source.
type SourceAuth struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields — used when Mode == "bearer".
	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields — used when Mode == "basic".
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a SourceAuth) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a SourceAuth) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a SourceAuth) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Auth: AuthConfig{
			Mode:     "none",
			TokenTTL: DefaultTokenTTL,
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath,
		},
		Model: ModelConfig{
			Path: DefaultModelPath,
		},
		Monitor: MonitorConfig{
			PollInterval: DefaultPollInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in 1..65535")
	}
	switch cfg.Auth.Mode {
	case "jwt":
		if cfg.Auth.SecretEnv == "" {
			return fmt.Errorf("auth.secret_env is required when auth.mode is jwt")
		}
		if cfg.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be positive")
		}
	case "none", "":
	default:
		return fmt.Errorf("auth.mode: unknown mode %q", cfg.Auth.Mode)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if cfg.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d]: url_env is required", i)
		}
	}
	if cfg.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	for i, src := range cfg.Monitor.Sources {
		if src.Subject == "" {
			return fmt.Errorf("monitor.sources[%d]: subject is required", i)
		}
		if src.Endpoint == "" {
			return fmt.Errorf("monitor.sources[%d] %q: endpoint is required", i, src.Subject)
		}
		switch src.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("monitor.sources[%d] %q: unknown auth mode %q", i, src.Subject, src.Auth.Mode)
		}
	}
	return nil
}

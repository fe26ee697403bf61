package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Rachio bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Rachio    RachioConfig    `yaml:"rachio"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// HistoryRetentionDays bounds the zone run history table. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// When Secret is empty the command endpoints are served without authentication,
// which is only appropriate on an isolated control network.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RachioConfig contains the Rachio cloud integration settings.
type RachioConfig struct {
	// APIURL is the base URL of the public Rachio REST API.
	APIURL string `yaml:"api_url"`

	// RequestTimeout is the per-call HTTP timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// WebhookPath is the local path the provider posts events to.
	WebhookPath string `yaml:"webhook_path"`

	// IPFilter restricts webhook sources to these CIDRs. Empty allows all.
	IPFilter []string `yaml:"ip_filter"`

	Accounts       []RachioAccountConfig `yaml:"accounts"`
	RateLimit      RateLimitConfig       `yaml:"rate_limit"`
	Retry          RetryConfig           `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig  `yaml:"circuit_breaker"`
}

// RachioAccountConfig describes one cloud account (one logical connection).
type RachioAccountConfig struct {
	ID     string `yaml:"id"`
	APIKey string `yaml:"api_key"`

	// PollingInterval is the snapshot poll period in seconds.
	PollingInterval int `yaml:"polling_interval"`

	// DefaultRuntime is the zone run duration in seconds used when a
	// command does not name one.
	DefaultRuntime int `yaml:"default_runtime"`

	// CallbackURL is the externally reachable webhook URL. Empty disables
	// webhook registration and the model is then kept fresh by polling alone.
	CallbackURL string `yaml:"callback_url"`

	// ClearAllCallbacks deletes every webhook on the account's devices
	// before registering ours, not only the ones we created.
	ClearAllCallbacks bool `yaml:"clear_all_callbacks"`

	// ExternalID tags webhooks registered by this connection. Generated when empty.
	ExternalID string `yaml:"external_id"`
}

// RateLimitConfig is the local request quota per account.
type RateLimitConfig struct {
	Quota  int `yaml:"quota"`
	Period int `yaml:"period"`
}

// RetryConfig controls retry with exponential backoff for transient failures.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelay   int `yaml:"base_delay"`
	MaxDelay    int `yaml:"max_delay"`
}

// CircuitBreakerConfig controls the per-account circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	Cooldown         int `yaml:"cooldown"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_RACHIO_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyAccountDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Per-account defaults, applied after parsing.
const (
	DefaultPollingInterval = 120
	DefaultRuntime         = 300
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:                 "./data/graylogic-rachio.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-rachio",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Rachio: RachioConfig{
			APIURL:         "https://api.rach.io/1/public",
			RequestTimeout: 15,
			WebhookPath:    "/api/v1/webhooks/rachio",
			RateLimit: RateLimitConfig{
				// The provider allows 1700 calls per day; stay just under it.
				Quota:  1700,
				Period: 86400,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   1,
				MaxDelay:    30,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 1,
				Cooldown:         60,
			},
		},
	}
}

// applyAccountDefaults fills unset per-account fields.
func applyAccountDefaults(cfg *Config) {
	for i := range cfg.Rachio.Accounts {
		acct := &cfg.Rachio.Accounts[i]
		if acct.ID == "" {
			acct.ID = fmt.Sprintf("account-%d", i+1)
		}
		if acct.PollingInterval == 0 {
			acct.PollingInterval = DefaultPollingInterval
		}
		if acct.DefaultRuntime == 0 {
			acct.DefaultRuntime = DefaultRuntime
		}
	}
}

// UnmarshalYAML defaults clear_all_callbacks to true while keeping an explicit false.
func (a *RachioAccountConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain RachioAccountConfig
	raw := plain{ClearAllCallbacks: true}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*a = RachioAccountConfig(raw)
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Rachio API keys. The unqualified variable targets the first account,
	// and creates it when the file lists none.
	if v := os.Getenv("GRAYLOGIC_RACHIO_API_KEY"); v != "" {
		if len(cfg.Rachio.Accounts) == 0 {
			cfg.Rachio.Accounts = append(cfg.Rachio.Accounts, RachioAccountConfig{ClearAllCallbacks: true})
			applyAccountDefaults(cfg)
		}
		cfg.Rachio.Accounts[0].APIKey = v
	}
	for i := range cfg.Rachio.Accounts {
		acct := &cfg.Rachio.Accounts[i]
		if v := os.Getenv(accountKeyEnv(acct.ID)); v != "" {
			acct.APIKey = v
		}
	}
}

// accountKeyEnv returns the per-account API key variable, e.g.
// GRAYLOGIC_RACHIO_BACK_GARDEN_API_KEY for account "back-garden".
func accountKeyEnv(id string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id))
	return "GRAYLOGIC_RACHIO_" + name + "_API_KEY"
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.Rachio.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (r *RachioConfig) validate() []string {
	var errs []string

	if _, err := url.ParseRequestURI(r.APIURL); err != nil {
		errs = append(errs, "rachio.api_url must be an absolute URL")
	}
	if r.RequestTimeout < 1 {
		errs = append(errs, "rachio.request_timeout must be at least 1 second")
	}
	if !strings.HasPrefix(r.WebhookPath, "/") {
		errs = append(errs, "rachio.webhook_path must start with /")
	}
	for _, cidr := range r.IPFilter {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Sprintf("rachio.ip_filter entry %q is not a CIDR", cidr))
		}
	}
	if r.RateLimit.Quota < 1 || r.RateLimit.Period < 1 {
		errs = append(errs, "rachio.rate_limit.quota and period must be positive")
	}
	if r.Retry.MaxAttempts < 1 {
		errs = append(errs, "rachio.retry.max_attempts must be at least 1")
	}
	if r.CircuitBreaker.FailureThreshold < 1 || r.CircuitBreaker.Cooldown < 1 {
		errs = append(errs, "rachio.circuit_breaker.failure_threshold and cooldown must be positive")
	}

	if len(r.Accounts) == 0 {
		errs = append(errs, "rachio.accounts requires at least one account (or set GRAYLOGIC_RACHIO_API_KEY)")
	}
	seen := make(map[string]bool, len(r.Accounts))
	for i, acct := range r.Accounts {
		prefix := fmt.Sprintf("rachio.accounts[%d]", i)
		if seen[acct.ID] {
			errs = append(errs, prefix+".id must be unique")
		}
		seen[acct.ID] = true
		if strings.TrimSpace(acct.APIKey) == "" {
			errs = append(errs, prefix+".api_key is required (set "+accountKeyEnv(acct.ID)+")")
		}
		if acct.PollingInterval < 1 {
			errs = append(errs, prefix+".polling_interval must be at least 1 second")
		}
		if acct.DefaultRuntime < 1 {
			errs = append(errs, prefix+".default_runtime must be at least 1 second")
		}
		if acct.CallbackURL != "" {
			if u, err := url.Parse(acct.CallbackURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, prefix+".callback_url must be an absolute URL")
			}
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PollInterval returns the account's poll period as a Duration.
func (a RachioAccountConfig) PollInterval() time.Duration {
	return time.Duration(a.PollingInterval) * time.Second
}

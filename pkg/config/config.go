// Package config loads the trip planner's YAML configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage and cache backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

const minSigningKeyLen = 32

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Session    SessionConfig    `yaml:"session"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Search     SearchConfig     `yaml:"search"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the database connection. An empty DSN selects
// in-memory storage.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures credential issuance.
type AuthConfig struct {
	Issuer     string        `yaml:"issuer"`
	SigningKey string        `yaml:"signing_key"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	// Revocation selects the revocation store: memory, postgres or redis.
	Revocation string `yaml:"revocation"`
}

// SessionConfig configures planning sessions.
type SessionConfig struct {
	Window          time.Duration `yaml:"window"`
	DefaultCurrency string        `yaml:"default_currency"`
}

// SweeperConfig configures expiry sweeping.
type SweeperConfig struct {
	Disabled bool          `yaml:"disabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ExtractionConfig configures the collection loop extractor.
type ExtractionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchConfig configures travel search.
type SearchConfig struct {
	SerpAPIKey string        `yaml:"serpapi_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, expands and parses a configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// envTemplate is used when no configuration file is given.
const envTemplate = `
database:
  dsn: "${TRIP_PLANNER_DATABASE_DSN}"
  auto_migrate: true
redis:
  address: "${TRIP_PLANNER_REDIS_ADDRESS}"
auth:
  signing_key: "${TRIP_PLANNER_SIGNING_KEY}"
extraction:
  endpoint: "${TRIP_PLANNER_EXTRACTION_ENDPOINT}"
  api_key: "${TRIP_PLANNER_EXTRACTION_API_KEY}"
search:
  serpapi_key: "${SERPAPI_API_KEY}"
logging:
  level: "${TRIP_PLANNER_LOG_LEVEL}"
  format: "${TRIP_PLANNER_LOG_FORMAT}"
`

// FromEnv builds a configuration from TRIP_PLANNER_* environment variables.
func FromEnv() (*Config, error) {
	return Parse([]byte(envTemplate))
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "trip-planner"
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTTL == 0 {
		cfg.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Auth.Revocation == "" {
		cfg.Auth.Revocation = cfg.defaultStore()
	}
	if cfg.Session.Window == 0 {
		cfg.Session.Window = 7 * 24 * time.Hour
	}
	if cfg.Session.DefaultCurrency == "" {
		cfg.Session.DefaultCurrency = "EUR"
	}
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = time.Hour
	}
	if cfg.Sweeper.Timeout == 0 {
		cfg.Sweeper.Timeout = 30 * time.Second
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 20 * time.Second
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 5
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 15 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = BackendMemory
		if cfg.Redis.Address != "" {
			cfg.Cache.Backend = BackendRedis
		}
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func (c *Config) defaultStore() string {
	if c.Database.DSN != "" {
		return BackendPostgres
	}
	return BackendMemory
}

// Validate validates the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Auth.SigningKey) < minSigningKeyLen {
		errs = append(errs, fmt.Sprintf("auth.signing_key must be at least %d bytes", minSigningKeyLen))
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		errs = append(errs, "auth.access_ttl must be shorter than auth.refresh_ttl")
	}

	switch c.Auth.Revocation {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres revocation")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			errs = append(errs, "redis.address is required for redis revocation")
		}
	default:
		errs = append(errs, fmt.Sprintf("auth.revocation %q is not one of memory, postgres, redis", c.Auth.Revocation))
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendNone:
	case BackendRedis:
		if c.Redis.Address == "" {
			errs = append(errs, "redis.address is required for the redis cache")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend %q is not one of memory, redis, none", c.Cache.Backend))
	}

	if c.Session.Window <= 0 {
		errs = append(errs, "session.window must be positive")
	}
	if len(c.Session.DefaultCurrency) != 3 || strings.ToUpper(c.Session.DefaultCurrency) != c.Session.DefaultCurrency {
		errs = append(errs, "session.default_currency must be an ISO 4217 code")
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.Timeout <= 0 {
		errs = append(errs, "sweeper.interval and sweeper.timeout must be positive")
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// NewLogger builds the process logger described by c.
func (c LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

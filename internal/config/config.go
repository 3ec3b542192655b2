// Package config loads and validates the storage core's configuration from
// the canonical DATABASE_URL environment variable, field-by-field
// environment variables, a YAML/TOML/JSON file, or direct construction, in
// that precedence order.
package config

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SSLMode enumerates the Postgres TLS negotiation modes the connection
// target accepts.
type SSLMode string

const (
	SSLDisable    SSLMode = "disable"
	SSLAllow      SSLMode = "allow"
	SSLPrefer     SSLMode = "prefer"
	SSLRequire    SSLMode = "require"
	SSLVerifyCA   SSLMode = "verify-ca"
	SSLVerifyFull SSLMode = "verify-full"
)

func (m SSLMode) valid() bool {
	switch m {
	case SSLDisable, SSLAllow, SSLPrefer, SSLRequire, SSLVerifyCA, SSLVerifyFull:
		return true
	}
	return false
}

// ConnectionConfig is the Postgres connection target.
type ConnectionConfig struct {
	Host        string  `env:"DB_HOST" envDefault:"localhost"`
	Port        int     `env:"DB_PORT" envDefault:"5432"`
	Database    string  `env:"DB_NAME" envDefault:"llm_observatory"`
	Username    string  `env:"DB_USER" envDefault:"postgres"`
	Password    string  `env:"DB_PASSWORD"`
	SSLMode     SSLMode `env:"DB_SSL_MODE" envDefault:"prefer"`
	AppName     string  `env:"DB_APP_NAME" envDefault:"llm-observatory-storage"`
}

func (c ConnectionConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("connection: host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("connection: port must be in (0, 65535]")
	}
	if c.Database == "" {
		return fmt.Errorf("connection: database must not be empty")
	}
	if c.Username == "" {
		return fmt.Errorf("connection: username must not be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("connection: password is required")
	}
	if !c.SSLMode.valid() {
		return fmt.Errorf("connection: invalid ssl mode %q", c.SSLMode)
	}
	return nil
}

// URL renders the libpq connection string used to construct the pool.
func (c ConnectionConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", string(c.SSLMode))
	q.Set("application_name", c.AppName)
	u.RawQuery = q.Encode()
	return u.String()
}

// CacheConfig is the optional Redis cache-store connection.
type CacheConfig struct {
	URL         string `env:"REDIS_URL"`
	PoolSize    int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	TimeoutSecs int    `env:"REDIS_TIMEOUT_SECS" envDefault:"5"`
}

// Enabled reports whether a cache store was configured at all.
func (c CacheConfig) Enabled() bool { return c.URL != "" }

func (c CacheConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("cache: pool size must be positive")
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("cache: timeout must be positive")
	}
	return nil
}

// Timeout returns the configured cache-store timeout as a duration.
func (c CacheConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PoolConfig bounds the Postgres connection pool's size and lifetimes.
type PoolConfig struct {
	MaxConnections  int32 `env:"DB_POOL_MAX_CONNECTIONS" envDefault:"50"`
	MinConnections  int32 `env:"DB_POOL_MIN_CONNECTIONS" envDefault:"5"`
	ConnectTimeout  int   `env:"DB_POOL_CONNECT_TIMEOUT" envDefault:"10"`
	IdleTimeout     int   `env:"DB_POOL_IDLE_TIMEOUT" envDefault:"300"`
	MaxLifetimeSecs int   `env:"DB_POOL_MAX_LIFETIME" envDefault:"1800"`
}

func (c PoolConfig) validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("pool: max connections must be positive")
	}
	if c.MinConnections < 0 {
		return fmt.Errorf("pool: min connections must not be negative")
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("pool: min connections must not exceed max connections")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("pool: connect timeout must be positive")
	}
	return nil
}

func (c PoolConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (c PoolConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

func (c PoolConfig) MaxLifetimeDuration() time.Duration {
	return time.Duration(c.MaxLifetimeSecs) * time.Second
}

// RetryConfig is the exponential backoff policy shared by the pool manager
// (connect retries) and the buffered writers (flush retries).
type RetryConfig struct {
	MaxAttempts       int     `env:"DB_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	InitialDelayMs    int64   `env:"DB_RETRY_INITIAL_DELAY_MS" envDefault:"100"`
	MaxDelayMs        int64   `env:"DB_RETRY_MAX_DELAY_MS" envDefault:"5000"`
	BackoffMultiplier float64 `env:"DB_RETRY_BACKOFF_MULTIPLIER" envDefault:"2.0"`
	Jitter            bool    `env:"DB_RETRY_JITTER" envDefault:"false"`
}

func (c RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1")
	}
	if c.InitialDelayMs <= 0 {
		return fmt.Errorf("retry: initial delay must be positive")
	}
	if c.MaxDelayMs < c.InitialDelayMs {
		return fmt.Errorf("retry: max delay must not be less than initial delay")
	}
	if c.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("retry: backoff multiplier must be greater than 1.0")
	}
	return nil
}

// DelayForAttempt returns the backoff delay for retry attempt n (0-indexed):
// min(initial * multiplier^n, max_delay), with optional +/-30% jitter.
func (c RetryConfig) DelayForAttempt(n int) time.Duration {
	raw := float64(c.InitialDelayMs) * math.Pow(c.BackoffMultiplier, float64(n))
	capped := math.Min(raw, float64(c.MaxDelayMs))
	if c.Jitter {
		factor := 1.0 + (rand.Float64()*0.6 - 0.3)
		capped *= factor
	}
	return time.Duration(capped) * time.Millisecond
}

// AuthConfig is the HTTP API's JWT verification and error-documentation
// settings.
type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET"`
	ErrorDocsURL string `env:"ERROR_DOCS_BASE_URL"`
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8080"`
}

func (c AuthConfig) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("auth: jwt secret is required")
	}
	return nil
}

// Config is the complete, validated configuration value for the storage
// core.
type Config struct {
	Connection ConnectionConfig
	Cache      CacheConfig
	Pool       PoolConfig
	Retry      RetryConfig
	Auth       AuthConfig
}

// Validate runs every section's validate contract, failing with a
// descriptive message on the first offending field.
func (c Config) Validate() error {
	if err := c.Connection.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Pool.validate(); err != nil {
		return err
	}
	if err := c.Retry.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	return nil
}

// FromEnv builds a Config from the process environment. DATABASE_URL, if
// set, takes precedence over the individual DB_* variables for the
// connection target.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg.Connection); err != nil {
		return Config{}, fmt.Errorf("config: parsing connection env: %w", err)
	}
	if err := env.Parse(&cfg.Cache); err != nil {
		return Config{}, fmt.Errorf("config: parsing cache env: %w", err)
	}
	if err := env.Parse(&cfg.Pool); err != nil {
		return Config{}, fmt.Errorf("config: parsing pool env: %w", err)
	}
	if err := env.Parse(&cfg.Retry); err != nil {
		return Config{}, fmt.Errorf("config: parsing retry env: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return Config{}, fmt.Errorf("config: parsing auth env: %w", err)
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		parsed, err := parseConnectionURL(dsn)
		if err != nil {
			return Config{}, fmt.Errorf("config: parsing DATABASE_URL: %w", err)
		}
		cfg.Connection = parsed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseConnectionURL(dsn string) (ConnectionConfig, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return ConnectionConfig{}, err
	}
	port := 5432
	if p := u.Port(); p != "" {
		if parsed, convErr := strconv.Atoi(p); convErr == nil {
			port = parsed
		}
	}
	password, _ := u.User.Password()
	conn := ConnectionConfig{
		Host:     u.Hostname(),
		Port:     port,
		Database: strings.TrimPrefix(u.Path, "/"),
		Username: u.User.Username(),
		Password: password,
		SSLMode:  SSLMode(u.Query().Get("sslmode")),
		AppName:  u.Query().Get("application_name"),
	}
	if conn.SSLMode == "" {
		conn.SSLMode = SSLPrefer
	}
	if conn.AppName == "" {
		conn.AppName = "llm-observatory-storage"
	}
	return conn, nil
}

// FromFile loads a Config from a YAML, TOML, or JSON file, the format
// inferred from the file extension.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = unmarshalJSON(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

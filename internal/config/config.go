package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Role assignment policies
const (
	PolicyIndependent  = "independent"
	PolicySingleMentor = "single_mentor"
)

// Broker kinds
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Config is the system-wide settings root
// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Broker    *BrokerConfig    `json:"broker"`
	Roles     *RolesConfig     `json:"roles"`
	Snapshot  *SnapshotConfig  `json:"snapshot"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
	Logging   *LoggingConfig   `json:"logging"`
	// SeedFile is an optional JSON array of exercise definitions loaded at startup
	SeedFile string `json:"seed_file"`
}

// DatabaseConfig selects sqlite (Path) or Postgres (DSN)
type DatabaseConfig struct {
	Driver  string        `json:"driver"`
	Path    string        `json:"path"`
	DSN     string        `json:"dsn"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig controls heartbeat and per-connection buffering
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// BrokerConfig selects the fan-out bus between hub instances
type BrokerConfig struct {
	Kind          string `json:"kind"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

type RolesConfig struct {
	Policy string `json:"policy"`
}

// SnapshotConfig is a robfig/cron spec for flushing dirty buffers
type SnapshotConfig struct {
	Schedule string `json:"schedule"`
}

type RateLimitConfig struct {
	PerMinute int `json:"per_minute"`
}

// LoggingConfig.Env is one of development, production, example
type LoggingConfig struct {
	Env string `json:"env"`
}

// DefaultConfig returns production-ready defaults
// FUNCTIONAL DISCOVERY: Database on local filesystem, HTTP on 5000 (the port the
// browser client expects), WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:  "sqlite3",
			Path:    "./codeblocks.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Broker: &BrokerConfig{
			Kind:      BrokerMemory,
			RedisAddr: "localhost:6379",
		},
		Roles: &RolesConfig{
			Policy: PolicyIndependent,
		},
		Snapshot: &SnapshotConfig{
			Schedule: "@every 5s",
		},
		RateLimit: &RateLimitConfig{
			PerMinute: 600,
		},
		Logging: &LoggingConfig{
			Env: "production",
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("database driver must be 'sqlite3' or 'postgres'")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Broker == nil {
		return fmt.Errorf("broker configuration is required")
	}
	switch c.Broker.Kind {
	case BrokerMemory:
	case BrokerRedis:
		if c.Broker.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty for redis broker")
		}
	default:
		return fmt.Errorf("broker kind must be 'memory' or 'redis'")
	}

	if c.Roles == nil {
		return fmt.Errorf("roles configuration is required")
	}
	if c.Roles.Policy != PolicyIndependent && c.Roles.Policy != PolicySingleMentor {
		return fmt.Errorf("roles policy must be 'independent' or 'single_mentor'")
	}

	if c.Snapshot == nil || c.Snapshot.Schedule == "" {
		return fmt.Errorf("snapshot schedule cannot be empty")
	}

	if c.RateLimit == nil || c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	if c.Logging == nil {
		return fmt.Errorf("logging configuration is required")
	}
	switch c.Logging.Env {
	case "development", "production", "example":
	default:
		return fmt.Errorf("logging env must be 'development', 'production' or 'example'")
	}

	return nil
}

// LoadFromEnv overlays CODEBLOCKS_* environment variables on the defaults
// FUNCTIONAL DISCOVERY: Unparseable values are ignored and the default is kept
func LoadFromEnv() *Config {
	config := DefaultConfig()

	envInt("CODEBLOCKS_HTTP_PORT", &config.HTTP.Port)
	envString("CODEBLOCKS_HTTP_HOST", &config.HTTP.Host)
	envDuration("CODEBLOCKS_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("CODEBLOCKS_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envString("CODEBLOCKS_DATABASE_DRIVER", &config.Database.Driver)
	envString("CODEBLOCKS_DATABASE_PATH", &config.Database.Path)
	envString("CODEBLOCKS_DATABASE_DSN", &config.Database.DSN)
	envDuration("CODEBLOCKS_DATABASE_TIMEOUT", &config.Database.Timeout)

	envDuration("CODEBLOCKS_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("CODEBLOCKS_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("CODEBLOCKS_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("CODEBLOCKS_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envString("CODEBLOCKS_BROKER_KIND", &config.Broker.Kind)
	envString("CODEBLOCKS_REDIS_ADDR", &config.Broker.RedisAddr)
	envString("CODEBLOCKS_REDIS_PASSWORD", &config.Broker.RedisPassword)
	envInt("CODEBLOCKS_REDIS_DB", &config.Broker.RedisDB)

	envString("CODEBLOCKS_ROLES_POLICY", &config.Roles.Policy)
	envString("CODEBLOCKS_SNAPSHOT_SCHEDULE", &config.Snapshot.Schedule)
	envInt("CODEBLOCKS_RATE_LIMIT_PER_MINUTE", &config.RateLimit.PerMinute)
	envString("CODEBLOCKS_LOG_ENV", &config.Logging.Env)
	envString("CODEBLOCKS_SEED_FILE", &config.SeedFile)

	return config
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Broker    *BrokerConfig        `json:"broker"`
	Roles     *RolesConfig         `json:"roles"`
	Snapshot  *SnapshotConfig      `json:"snapshot"`
	RateLimit *RateLimitConfig     `json:"rate_limit"`
	Logging   *LoggingConfig       `json:"logging"`
	SeedFile  string               `json:"seed_file"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver"`
	Path    string `json:"path"`
	DSN     string `json:"dsn"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	return loadFileOver(DefaultConfig(), filepath)
}

func loadFileOver(config *Config, filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if d := file.Database; d != nil {
		setString(&config.Database.Driver, d.Driver)
		setString(&config.Database.Path, d.Path)
		setString(&config.Database.DSN, d.DSN)
		setDuration(&config.Database.Timeout, d.Timeout)
	}

	if h := file.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		setString(&config.HTTP.Host, h.Host)
		setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout)
	}

	if w := file.WebSocket; w != nil {
		if w.BufferSize > 0 {
			config.WebSocket.BufferSize = w.BufferSize
		}
		setDuration(&config.WebSocket.PingInterval, w.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, w.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, w.WriteTimeout)
	}

	if b := file.Broker; b != nil {
		setString(&config.Broker.Kind, b.Kind)
		setString(&config.Broker.RedisAddr, b.RedisAddr)
		setString(&config.Broker.RedisPassword, b.RedisPassword)
		if b.RedisDB > 0 {
			config.Broker.RedisDB = b.RedisDB
		}
	}

	if file.Roles != nil {
		setString(&config.Roles.Policy, file.Roles.Policy)
	}
	if file.Snapshot != nil {
		setString(&config.Snapshot.Schedule, file.Snapshot.Schedule)
	}
	if file.RateLimit != nil && file.RateLimit.PerMinute > 0 {
		config.RateLimit.PerMinute = file.RateLimit.PerMinute
	}
	if file.Logging != nil {
		setString(&config.Logging.Env, file.Logging.Env)
	}
	setString(&config.SeedFile, file.SeedFile)

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// LoadConfigWithPrecedence resolves file > environment > defaults
// FUNCTIONAL DISCOVERY: A missing or invalid file is ignored and the
// environment/default configuration is returned instead
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := loadFileOver(LoadFromEnv(), filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}

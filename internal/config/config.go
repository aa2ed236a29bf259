package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig
	Server  ServerConfig
	Editor  EditorConfig
	AWS     AWSConfig
	Redis   RedisConfig
	History HistoryConfig
	Log     LogConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// IsDevelopment reports whether the service runs in a development build
func (c AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// EditorConfig holds editor session and submission configuration
type EditorConfig struct {
	// Endpoint is the base URL of the remote media processing service
	Endpoint       string
	Timeout        time.Duration
	FallbackURL    string
	Strict         bool
	WorkDir        string
	MaxUploadBytes int64
	PreviewBaseURL string
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	MediaBucket     string
	HistoryTable    string
	PublishExpiry   time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
}

// HistoryConfig selects where edit history is recorded
type HistoryConfig struct {
	Backend    string
	SQLitePath string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// History backends
const (
	HistoryBackendNone     = "none"
	HistoryBackendDynamoDB = "dynamodb"
	HistoryBackendSQLite   = "sqlite"
)

// DefaultFallbackURL is the publicly hosted sample clip substituted when the
// processing endpoint cannot be reached.
const DefaultFallbackURL = "https://res.cloudinary.com/demo/video/upload/v1690380631/samples/sea-turtle.mp4"

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/smartclips-editor")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; continue with defaults and env vars
	}

	v.SetEnvPrefix("EDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints viper cannot express
func (c *Config) Validate() error {
	switch c.History.Backend {
	case HistoryBackendNone, HistoryBackendDynamoDB, HistoryBackendSQLite:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.Editor.Timeout <= 0 {
		return fmt.Errorf("editor.timeout must be positive, got %s", c.Editor.Timeout)
	}
	if c.Editor.Endpoint == "" {
		return fmt.Errorf("editor.endpoint is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "smartclips-editor")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readtimeout", 30*time.Second)
	v.SetDefault("server.writetimeout", 90*time.Second)
	v.SetDefault("server.idletimeout", 60*time.Second)

	// Editor defaults
	v.SetDefault("editor.endpoint", "http://localhost:8000")
	v.SetDefault("editor.timeout", 60*time.Second)
	v.SetDefault("editor.fallbackurl", DefaultFallbackURL)
	v.SetDefault("editor.strict", false)
	v.SetDefault("editor.workdir", "/tmp/smartclips-editor")
	v.SetDefault("editor.maxuploadbytes", int64(500<<20))
	v.SetDefault("editor.previewbaseurl", "http://localhost:8080")

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.mediabucket", "smartclips-media")
	v.SetDefault("aws.historytable", "edit-history")
	v.SetDefault("aws.publishexpiry", 24*time.Hour)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockttl", 2*time.Minute)

	// History defaults
	v.SetDefault("history.backend", HistoryBackendSQLite)
	v.SetDefault("history.sqlitepath", "/tmp/smartclips-editor/history.db")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

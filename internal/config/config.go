package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Log      LogConfig
	Redis    RedisConfig
	Alerts   AlertsConfig
	Backup   BackupConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Path string
}

type SecurityConfig struct {
	JWTSecret         string
	CSRFSecret        string
	SessionDuration   time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	LoginRateLimit    int
	LoginRateWindow   time.Duration
	CSPEnabled        bool
	HSTSEnabled       bool
	// AllowedOrigins may read responses with credentials. Bare scheme
	// wildcards are rejected.
	AllowedOrigins []string
}

type LogConfig struct {
	Level     string
	Format    string
	Path      string
	MaxSizeMB int
}

// RedisConfig is optional. An empty Addr disables live alert broadcast.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AlertsConfig struct {
	Channel       string
	TTL           time.Duration
	SweepInterval time.Duration
}

// BackupConfig controls database snapshots. Keep applies to scheduled
// backups only.
type BackupConfig struct {
	Dir  string
	Keep int
}

// LoadDotEnv loads variables from the given files into the environment.
// Missing files are ignored and existing variables are never overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &ConfigError{"failed to load " + f + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/pharmacy.db"),
		},
		Security: SecurityConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			CSRFSecret:        getEnv("CSRF_SECRET", ""),
			SessionDuration:   getDuration("SESSION_DURATION", 12*time.Hour),
			RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
			LoginRateLimit:    getInt("LOGIN_RATE_LIMIT", 5),
			LoginRateWindow:   getDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
			CSPEnabled:        getBool("CSP_ENABLED", true),
			HSTSEnabled:       getBool("HSTS_ENABLED", true),
			AllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			Path:      getEnv("LOG_PATH", ""),
			MaxSizeMB: getInt("LOG_MAX_SIZE_MB", 100),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Alerts: AlertsConfig{
			Channel:       getEnv("ALERT_CHANNEL", "pharmacy:alerts"),
			TTL:           getDuration("ALERT_TTL", 7*24*time.Hour),
			SweepInterval: getDuration("ALERT_SWEEP_INTERVAL", time.Hour),
		},
		Backup: BackupConfig{
			Dir:  getEnv("BACKUP_DIR", "./data/backups"),
			Keep: getInt("BACKUP_KEEP", 7),
		},
	}

	// Validate required fields
	if cfg.Security.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	if cfg.Security.CSRFSecret == "" {
		return nil, ErrMissingCSRFSecret
	}

	for _, origin := range cfg.Security.AllowedOrigins {
		switch origin {
		case "*", "http://*", "https://*":
			return nil, &ConfigError{"CORS_ALLOWED_ORIGINS must list explicit origins, got " + origin}
		}
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// getList splits a comma separated variable, dropping blank entries
func getList(key string, defaultValue []string) []string {
	var list []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

var (
	ErrMissingJWTSecret  = &ConfigError{"JWT_SECRET environment variable is required"}
	ErrMissingCSRFSecret = &ConfigError{"CSRF_SECRET environment variable is required"}
)

type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

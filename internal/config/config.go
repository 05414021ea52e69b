package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Email     EmailConfig
	Redis     RedisConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string // CIDRs whose forwarding headers are honoured
}

type AuthConfig struct {
	SessionSecret       string
	SessionTTL          time.Duration
	CookieName          string
	CookieDomain        string
	CookieSecure        bool
	CookieSameSite      string
	BcryptCost          int
	LockoutThreshold    int
	LockoutDuration     time.Duration
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type RateLimitConfig struct {
	LoginWindow       time.Duration
	LoginMax          int
	Store             string // "memory" or "redis"
	SweepInterval     time.Duration
	RegisterPerMinute int
	UploadPerMinute   int
}

type StorageConfig struct {
	Backend          string // "local" or "azure"
	LocalDir         string
	AzureEndpoint    string
	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string
	AvatarMaxBytes   int64
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

type RedisConfig struct {
	URL string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "accounts"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			Env:             env,
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			SessionSecret:       sessionSecret,
			SessionTTL:          getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			CookieName:          getEnv("SESSION_COOKIE_NAME", "session"),
			CookieDomain:        getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure:        getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			CookieSameSite:      getEnv("SESSION_COOKIE_SAMESITE", "Lax"),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 10),
			LockoutThreshold:    getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
		},
		RateLimit: RateLimitConfig{
			LoginWindow:       getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 15*time.Minute),
			LoginMax:          getEnvAsInt("LOGIN_RATE_LIMIT_MAX", 10),
			Store:             strings.ToLower(getEnv("RATE_LIMIT_STORE", "memory")),
			SweepInterval:     getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
			RegisterPerMinute: getEnvAsInt("REGISTER_RATE_LIMIT_PER_MINUTE", 5),
			UploadPerMinute:   getEnvAsInt("UPLOAD_RATE_LIMIT_PER_MINUTE", 10),
		},
		Storage: StorageConfig{
			Backend:          strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
			LocalDir:         getEnv("STORAGE_LOCAL_DIR", "./data/avatars"),
			AzureEndpoint:    getEnv("AZURE_STORAGE_ENDPOINT", ""),
			AzureAccountName: getEnv("AZURE_STORAGE_ACCOUNT_NAME", ""),
			AzureAccountKey:  getEnv("AZURE_STORAGE_ACCOUNT_KEY", ""),
			AzureContainer:   getEnv("AZURE_STORAGE_CONTAINER", "avatars"),
			AvatarMaxBytes:   int64(getEnvAsInt("AVATAR_MAX_BYTES", 2<<20)),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30),
			Compress:   getEnvAsBool("LOG_FILE_COMPRESS", true),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate session secret strength
	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSessionSecret enforces minimum security standards for the cookie signing key
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits for HS256
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *Config) validate() error {
	if c.RateLimit.LoginMax <= 0 || c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT_MAX and LOGIN_RATE_LIMIT_WINDOW must be positive")
	}
	if c.Auth.LockoutThreshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive")
	}

	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_STORE %q", c.RateLimit.Store)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("STORAGE_LOCAL_DIR is required when STORAGE_BACKEND=local")
		}
	case "azure":
		if c.Storage.AzureEndpoint == "" || c.Storage.AzureAccountName == "" || c.Storage.AzureAccountKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ENDPOINT, AZURE_STORAGE_ACCOUNT_NAME and AZURE_STORAGE_ACCOUNT_KEY are required when STORAGE_BACKEND=azure")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Email.Enabled && c.Email.FromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_ENABLED=true")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

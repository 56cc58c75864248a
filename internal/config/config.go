package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	TwoFA    TwoFAConfig    `mapstructure:"twofactor"`
	Email    EmailConfig    `mapstructure:"email"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	TLS  struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps all state
	// in-process and is intended for single-instance deployments and tests.
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Password     PasswordConfig     `mapstructure:"password"`
	Tokens       TokenConfig        `mapstructure:"tokens"`
	Lockout      LockoutConfig      `mapstructure:"lockout"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Reset        ResetConfig        `mapstructure:"reset"`
}

// PasswordConfig holds password hashing configuration
type PasswordConfig struct {
	MinLength  int `mapstructure:"min_length"`
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// TokenConfig holds JWT token configuration
type TokenConfig struct {
	// Secret is the HMAC signing secret. Rotating it invalidates every
	// outstanding token.
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

// LockoutConfig holds account lockout configuration
type LockoutConfig struct {
	// Threshold is the number of consecutive failed attempts that locks the account
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// ResetConfig holds password reset ticket configuration
type ResetConfig struct {
	TicketTTL     time.Duration `mapstructure:"ticket_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxPerHour caps reset requests per account to slow down mail bombing
	MaxPerHour int `mapstructure:"max_per_hour"`
}

// TwoFAConfig holds TOTP second-factor configuration
type TwoFAConfig struct {
	Issuer string `mapstructure:"issuer"`
	Digits int    `mapstructure:"digits"`
	Period int    `mapstructure:"period"`
}

// EmailConfig holds email sending configuration
type EmailConfig struct {
	// Provider is the email provider to use: "gmail" or "log" (no delivery,
	// message contents are logged instead)
	Provider string `mapstructure:"provider"`
	// AppName is the application name shown in emails
	AppName string `mapstructure:"app_name"`
	// Gmail holds Gmail-specific configuration
	Gmail GmailEmailConfig `mapstructure:"gmail"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nexus")

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Bind environment variables
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.tls.enabled", false)

	// Storage defaults
	v.SetDefault("storage.driver", "postgres")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "nexus")
	v.SetDefault("database.user", "nexus")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.password.min_length", 8)
	v.SetDefault("security.password.bcrypt_cost", 12)

	v.SetDefault("security.tokens.secret", "")
	v.SetDefault("security.tokens.ttl", "168h")
	v.SetDefault("security.tokens.issuer", "nexus-optimizer")

	v.SetDefault("security.lockout.threshold", 5)
	v.SetDefault("security.lockout.duration", "15m")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.limit", 5)
	v.SetDefault("security.rate_limiting.window", "15m")

	v.SetDefault("security.reset.ticket_ttl", "1h")
	v.SetDefault("security.reset.sweep_interval", "15m")
	v.SetDefault("security.reset.max_per_hour", 3)

	// Two-factor defaults
	v.SetDefault("twofactor.issuer", "Nexus Optimizer")
	v.SetDefault("twofactor.digits", 6)
	v.SetDefault("twofactor.period", 30)

	// Email defaults
	v.SetDefault("email.provider", "log")
	v.SetDefault("email.app_name", "Nexus Optimizer")
	v.SetDefault("email.gmail.sender_address", "")
	v.SetDefault("email.gmail.sender_name", "Nexus Optimizer")
}

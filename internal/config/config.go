package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `validate:"required,oneof=development test staging production"`
	Port        string `validate:"required,numeric"`
	Log         LogConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Request     RequestConfig
	JWT         JWTConfig
	Metrics     MetricsConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"required,oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"required,oneof=text json"`
}

// CORSConfig holds cross-origin configuration
type CORSConfig struct {
	AllowOrigin string `validate:"required"`
}

// RateLimitConfig holds per-client rate limiting configuration. A zero
// rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `validate:"gte=0"`
	Burst             int     `validate:"gte=0"`
}

// RequestConfig holds request handling limits
type RequestConfig struct {
	MaxBodyBytes int64 `validate:"gte=0"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string
	Issuer      string
	ExpiryHours int `validate:"gte=0"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool
	Namespace string `validate:"required_if=Enabled true"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Set up Viper
	viper.AutomaticEnv()
	viper.SetDefault("PORT", "8081")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("CORS_ALLOW_ORIGIN", "*")
	viper.SetDefault("RATE_LIMIT_RPS", 0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("MAX_BODY_BYTES", 6*1024*1024)
	viper.SetDefault("JWT_ISSUER", "expressless")
	viper.SetDefault("JWT_EXPIRY_HOURS", 24)
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("METRICS_NAMESPACE", "expressless")

	config := &Config{
		Environment: viper.GetString("ENVIRONMENT"),
		Port:        viper.GetString("PORT"),
		Log: LogConfig{
			Level:  strings.ToLower(viper.GetString("LOG_LEVEL")),
			Format: strings.ToLower(viper.GetString("LOG_FORMAT")),
		},
		CORS: CORSConfig{
			AllowOrigin: viper.GetString("CORS_ALLOW_ORIGIN"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             viper.GetInt("RATE_LIMIT_BURST"),
		},
		Request: RequestConfig{
			MaxBodyBytes: viper.GetInt64("MAX_BODY_BYTES"),
		},
		JWT: JWTConfig{
			Secret:      viper.GetString("JWT_SECRET"),
			Issuer:      viper.GetString("JWT_ISSUER"),
			ExpiryHours: viper.GetInt("JWT_EXPIRY_HOURS"),
		},
		Metrics: MetricsConfig{
			Enabled:   viper.GetBool("METRICS_ENABLED"),
			Namespace: viper.GetString("METRICS_NAMESPACE"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New()

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// NewLogger builds the application logger from the logging configuration
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// IsProduction reports whether the application runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

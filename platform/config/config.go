// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CarrierConfig provides settings for the telephony carrier API.
type CarrierConfig interface {
	GetCarrierAccountSID() string
	GetCarrierAuthToken() string
	GetCarrierFromNumber() string
	GetPublicBaseURL() string
	IsCarrierConfigured() bool
}

// MLDetectorConfig provides settings for the remote ML detection service.
type MLDetectorConfig interface {
	GetMLServiceURL() string
	GetMLServiceTimeout() time.Duration
	IsMLDetectorEnabled() bool
}

// GenAIDetectorConfig provides settings for the generative-AI audio detector.
type GenAIDetectorConfig interface {
	GetGenAIAPIKey() string
	GetGenAIModel() string
	GetGenAITimeout() time.Duration
	IsGenAIDetectorEnabled() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// StorageConfig provides settings for the recording archive.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetRecordingBucket() string
	IsRecordingArchiveEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool

	PublicBaseURL     string
	CarrierAccountSID string
	CarrierAuthToken  string
	CarrierFromNumber string

	MLServiceURL     string
	MLServiceTimeout time.Duration

	GenAIAPIKey  string
	GenAIModel   string
	GenAITimeout time.Duration

	RedisURL         string
	AsynqQueueName   string
	AsynqConcurrency int

	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	RecordingBucket        string
	RecordingArchiveEnable bool
}

// Load reads configuration from the environment, applying .env if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CarrierAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		CarrierAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		CarrierFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),

		MLServiceURL:     strings.TrimRight(getEnv("AMD_SERVICE_URL", ""), "/"),
		MLServiceTimeout: mustDuration(getEnv("AMD_SERVICE_TIMEOUT", "30s")),

		GenAIAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GenAIModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GenAITimeout: mustDuration(getEnv("GEMINI_TIMEOUT", "60s")),

		RedisURL:         getEnv("REDIS_URL", ""),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),

		MinIOEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:            strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		RecordingBucket:        getEnv("MINIO_BUCKET_RECORDINGS", "call-recordings"),
		RecordingArchiveEnable: strings.EqualFold(getEnv("RECORDING_ARCHIVE_ENABLED", "false"), "true"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetCarrierAccountSID() string { return c.CarrierAccountSID }
func (c *Config) GetCarrierAuthToken() string  { return c.CarrierAuthToken }
func (c *Config) GetCarrierFromNumber() string { return c.CarrierFromNumber }
func (c *Config) GetPublicBaseURL() string     { return c.PublicBaseURL }
func (c *Config) IsCarrierConfigured() bool {
	return c.CarrierAccountSID != "" && c.CarrierAuthToken != "" && c.CarrierFromNumber != ""
}

func (c *Config) GetMLServiceURL() string            { return c.MLServiceURL }
func (c *Config) GetMLServiceTimeout() time.Duration { return c.MLServiceTimeout }
func (c *Config) IsMLDetectorEnabled() bool          { return c.MLServiceURL != "" }

func (c *Config) GetGenAIAPIKey() string         { return c.GenAIAPIKey }
func (c *Config) GetGenAIModel() string          { return c.GenAIModel }
func (c *Config) GetGenAITimeout() time.Duration { return c.GenAITimeout }
func (c *Config) IsGenAIDetectorEnabled() bool   { return c.GenAIAPIKey != "" }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetRecordingBucket() string { return c.RecordingBucket }
func (c *Config) IsRecordingArchiveEnabled() bool {
	return c.RecordingArchiveEnable && c.MinIOEndpoint != ""
}

// Helpers.

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 10
	}
	return n
}

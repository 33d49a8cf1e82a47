// Package config reads jobtrail's configuration from the environment,
// following the same getEnv/getEnvAsInt/getEnvAsDuration pattern as the
// repo this one is grown from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Spool     SpoolConfig
	Redis     RedisConfig
	Log       LogConfig
	S3        S3Config
	Email     EmailConfig
	Sentry    SentryConfig
	Embed     EmbedConfig
	Engine    EngineConfig
	Submitter SubmitterConfig
	Inbox     InboxConfig
}

// ServerConfig holds the ops HTTP surface's listen configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds Postgres server-engine configuration.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SpoolConfig points at the embedded single-file engine used offline or
// as a pre-sync spool ahead of the Postgres server engine (§6).
type SpoolConfig struct {
	Path    string
	Backend string // "embedded" (default) or "postgres"
}

// RedisConfig backs the cross-host ports.Lock implementation.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LogConfig controls the zap logger's level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// S3Config backs the scheduler's backup snapshotting.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// EmailConfig backs DriftAlert notifications via resend.
type EmailConfig struct {
	APIKey string
	From   string
	To     string
}

// SentryConfig reports permanent-external, invariant-violation and internal errors.
type SentryConfig struct {
	DSN         string
	Environment string
}

// EmbedConfig selects and configures the EmbeddingModel adapter.
type EmbedConfig struct {
	Mode         string // "local" or "http"
	HTTPBaseURL  string
	ModelVersion string
	Dimensions   int
}

// SubmitterConfig points at the residential-host submission agent (§5:
// "the Submitter ... runs on the residential-IP host").
type SubmitterConfig struct {
	BaseURL string
}

// InboxConfig points at the mail-parsing service backing ports.Inbox.
type InboxConfig struct {
	BaseURL string
}

// EngineConfig carries the dynamic thresholds referenced throughout §4 and
// §9: classifier tie-break margins, centroid window sizing, drift
// thresholds, and the rewrite cooldown. All are operator-tunable without
// a redeploy per §9's "dynamic config" note.
type EngineConfig struct {
	CombinedScoreThreshold float64
	CloseCallDelta         float64
	WindowDays             int
	MinWindowJDCount       int
	ShiftThreshold         float64
	StalenessThreshold     float64
	RewriteCooldownDays    int
	MatchAutoConfidence    float64
}

// Load reads configuration from environment variables, applying the same
// defaults-then-override shape as the repo's original Load.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "jobtrail"),
			Password:        getEnv("DB_PASSWORD", "jobtrail"),
			DBName:          getEnv("DB_NAME", "jobtrail"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Spool: SpoolConfig{
			Path:    getEnv("SPOOL_PATH", "./jobtrail-spool.db"),
			Backend: getEnv("STORE_BACKEND", "embedded"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "eu-central"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		Email: EmailConfig{
			APIKey: getEnv("RESEND_API_KEY", ""),
			From:   getEnv("ALERT_EMAIL_FROM", ""),
			To:     getEnv("ALERT_EMAIL_TO", ""),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", getEnv("SERVER_ENV", "development")),
		},
		Embed: EmbedConfig{
			Mode:         getEnv("EMBED_MODE", "local"),
			HTTPBaseURL:  getEnv("EMBED_HTTP_BASE_URL", ""),
			ModelVersion: getEnv("EMBED_MODEL_VERSION", "local-hash-v1"),
			Dimensions:   getEnvAsInt("EMBED_DIMENSIONS", 64),
		},
		Submitter: SubmitterConfig{
			BaseURL: getEnv("SUBMITTER_BASE_URL", ""),
		},
		Inbox: InboxConfig{
			BaseURL: getEnv("INBOX_BASE_URL", ""),
		},
		Engine: EngineConfig{
			CombinedScoreThreshold: getEnvAsFloat("COMBINED_SCORE_THRESHOLD", 0.15),
			CloseCallDelta:         getEnvAsFloat("CLOSE_CALL_DELTA", 0.10),
			WindowDays:             getEnvAsInt("CENTROID_WINDOW_DAYS", 30),
			MinWindowJDCount:       getEnvAsInt("CENTROID_MIN_JD_COUNT", 5),
			ShiftThreshold:         getEnvAsFloat("SHIFT_THRESHOLD", 0.05),
			StalenessThreshold:     getEnvAsFloat("STALENESS_THRESHOLD", 0.08),
			RewriteCooldownDays:    getEnvAsInt("REWRITE_COOLDOWN_DAYS", 21),
			MatchAutoConfidence:    getEnvAsFloat("MATCH_AUTO_CONFIDENCE", 0.5),
		},
	}
	return cfg, nil
}

// DSN returns the Postgres connection string consumed by pgxpool.ParseConfig.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

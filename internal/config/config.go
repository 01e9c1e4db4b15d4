package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/storyreel/studio/internal/poller"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Poller    PollerConfig
	Pipeline  PipelineConfig
	R2        R2Config
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig selects how callers are identified. Mode "jwt" verifies bearer
// tokens; mode "gateway" trusts X-User-* headers set by a forward-auth proxy.
type AuthConfig struct {
	Mode      string
	JWTSecret string
}

type RateLimitConfig struct {
	StartPerHour int
	RetryPerHour int
}

// PollerConfig holds the defaults applied to every polling session.
type PollerConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration
	StopOnComplete bool
	RequestTimeout time.Duration
}

// PipelineConfig points at the generation backend and tunes the bundled
// simulation worker.
type PipelineConfig struct {
	// StatusURL is the base URL of a remote generation API. Empty means the
	// in-process Redis store is polled directly.
	StatusURL   string
	APIToken    string
	StepDelay   time.Duration
	Concurrency int
	RecordTTL   time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	PresignExpiry   time.Duration
}

// Enabled reports whether enough credentials are present to build a client.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// EngineConfig converts the poller section to the engine defaults.
func (c PollerConfig) EngineConfig() poller.Config {
	return poller.Config{
		MaxRetries:     c.MaxRetries,
		RetryDelay:     c.RetryDelay,
		StopOnComplete: c.StopOnComplete,
		RequestTimeout: c.RequestTimeout,
	}
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("PIPELINE_API_TOKEN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("auth.mode", "AUTH_MODE")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("ratelimit.start_per_hour", "RATELIMIT_START_PER_HOUR")
	_ = v.BindEnv("ratelimit.retry_per_hour", "RATELIMIT_RETRY_PER_HOUR")
	_ = v.BindEnv("poller.max_retries", "POLLER_MAX_RETRIES")
	_ = v.BindEnv("poller.retry_delay", "POLLER_RETRY_DELAY")
	_ = v.BindEnv("poller.stop_on_complete", "POLLER_STOP_ON_COMPLETE")
	_ = v.BindEnv("poller.request_timeout", "POLLER_REQUEST_TIMEOUT")
	_ = v.BindEnv("pipeline.status_url", "PIPELINE_STATUS_URL")
	_ = v.BindEnv("pipeline.api_token", "PIPELINE_API_TOKEN")
	_ = v.BindEnv("pipeline.step_delay", "PIPELINE_STEP_DELAY")
	_ = v.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")
	_ = v.BindEnv("pipeline.record_ttl", "PIPELINE_RECORD_TTL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("r2.presign_expiry", "R2_PRESIGN_EXPIRY")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("ratelimit.start_per_hour", 10)
	v.SetDefault("ratelimit.retry_per_hour", 20)

	// Polling defaults
	v.SetDefault("poller.max_retries", 5)
	v.SetDefault("poller.retry_delay", 2*time.Second)
	v.SetDefault("poller.stop_on_complete", true)
	v.SetDefault("poller.request_timeout", 15*time.Second)

	// Pipeline defaults
	v.SetDefault("pipeline.status_url", "")
	v.SetDefault("pipeline.step_delay", 2*time.Second)
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.record_ttl", 24*time.Hour)

	v.SetDefault("r2.presign_expiry", 15*time.Minute)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			Mode:      v.GetString("auth.mode"),
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		RateLimit: RateLimitConfig{
			StartPerHour: v.GetInt("ratelimit.start_per_hour"),
			RetryPerHour: v.GetInt("ratelimit.retry_per_hour"),
		},
		Poller: PollerConfig{
			MaxRetries:     v.GetInt("poller.max_retries"),
			RetryDelay:     v.GetDuration("poller.retry_delay"),
			StopOnComplete: v.GetBool("poller.stop_on_complete"),
			RequestTimeout: v.GetDuration("poller.request_timeout"),
		},
		Pipeline: PipelineConfig{
			StatusURL:   v.GetString("pipeline.status_url"),
			APIToken:    v.GetString("pipeline.api_token"),
			StepDelay:   v.GetDuration("pipeline.step_delay"),
			Concurrency: v.GetInt("pipeline.concurrency"),
			RecordTTL:   v.GetDuration("pipeline.record_ttl"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			PresignExpiry:   v.GetDuration("r2.presign_expiry"),
		},
	}

	return cfg, nil
}

package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Composer  ComposerConfig
	Melody    MelodyConfig
	Render    RenderConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GeneratePerHour int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type ComposerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type MelodyConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type RenderConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type RetentionConfig struct {
	TTLHours      int
	SweepSchedule string // cron spec for the sweep task
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("COMPOSER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("composer.api_key", "COMPOSER_API_KEY")
	_ = viper.BindEnv("composer.base_url", "COMPOSER_BASE_URL")
	_ = viper.BindEnv("composer.model", "COMPOSER_MODEL")
	_ = viper.BindEnv("melody.service_url", "MELODY_SERVICE_URL")
	_ = viper.BindEnv("melody.timeout", "MELODY_SERVICE_TIMEOUT")
	_ = viper.BindEnv("render.service_url", "RENDER_SERVICE_URL")
	_ = viper.BindEnv("render.timeout", "RENDER_SERVICE_TIMEOUT")
	_ = viper.BindEnv("retention.ttl_hours", "RETENTION_TTL_HOURS")
	_ = viper.BindEnv("retention.sweep_schedule", "RETENTION_SWEEP_SCHEDULE")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.generate_per_hour", 10)

	// Composer defaults
	viper.SetDefault("composer.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("composer.model", "llama-3.3-70b-versatile")

	// Melody service defaults
	viper.SetDefault("melody.service_url", "http://localhost:8083")
	viper.SetDefault("melody.timeout", 120)

	// Render service defaults
	viper.SetDefault("render.service_url", "http://localhost:8084")
	viper.SetDefault("render.timeout", 120)

	// Retention defaults: 48h artifact TTL, daily sweep
	viper.SetDefault("retention.ttl_hours", 48)
	viper.SetDefault("retention.sweep_schedule", "@daily")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
		},
		Composer: ComposerConfig{
			APIKey:  viper.GetString("composer.api_key"),
			BaseURL: viper.GetString("composer.base_url"),
			Model:   viper.GetString("composer.model"),
		},
		Melody: MelodyConfig{
			ServiceURL: viper.GetString("melody.service_url"),
			Timeout:    viper.GetInt("melody.timeout"),
		},
		Render: RenderConfig{
			ServiceURL: viper.GetString("render.service_url"),
			Timeout:    viper.GetInt("render.timeout"),
		},
		Retention: RetentionConfig{
			TTLHours:      viper.GetInt("retention.ttl_hours"),
			SweepSchedule: viper.GetString("retention.sweep_schedule"),
		},
	}

	return cfg, nil
}

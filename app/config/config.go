package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Log      LogConfig               `mapstructure:"log"`
	JWT      JWTConfig               `mapstructure:"jwt"`
	Queues   map[string]QueueConfig  `mapstructure:"queues"`
	Retry    RetryConfig             `mapstructure:"retry"`
	Sweep    SweepConfig             `mapstructure:"sweep"`
	Services ServicesConfig          `mapstructure:"services"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json or text
	Output     string `mapstructure:"output"`      // stdout or file
	MaxSize    int    `mapstructure:"max_size"`    // megabytes
	MaxBackups int    `mapstructure:"max_backups"` // number of backups
	MaxAge     int    `mapstructure:"max_age"`     // days
	Compress   bool   `mapstructure:"compress"`    // compress rotated files
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT signing key
	ExpireTime int    `mapstructure:"expire_time"` // expiry in hours
	Issuer     string `mapstructure:"issuer"`      // token issuer
}

// QueueConfig is the per-queue execution policy.
type QueueConfig struct {
	Workers       int `mapstructure:"workers"`         // concurrency ceiling
	SoftTimeLimit int `mapstructure:"soft_time_limit"` // seconds, cooperative cancel
	HardTimeLimit int `mapstructure:"hard_time_limit"` // seconds, forced failure
}

type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelay   int `mapstructure:"base_delay"` // seconds, doubled per attempt
	MaxDelay    int `mapstructure:"max_delay"`  // seconds, backoff ceiling
}

type SweepConfig struct {
	StuckInterval          string `mapstructure:"stuck_interval"`           // cron spec for the stuck-task sweep
	FailedCheckInterval    string `mapstructure:"failed_check_interval"`    // cron spec for the failed-task check
	CleanupInterval        string `mapstructure:"cleanup_interval"`         // cron spec for expired-task cleanup
	CompletedRetentionDays int    `mapstructure:"completed_retention_days"` // keep SUCCESS tasks this long
	FailedRetentionDays    int    `mapstructure:"failed_retention_days"`    // keep FAILURE/REVOKED tasks this long
	RequeueMaxAgeHours     int    `mapstructure:"requeue_max_age_hours"`    // default window for requeueing failures
}

type ServicesConfig struct {
	Content ContentServiceConfig `mapstructure:"content"`
	TTS     TTSServiceConfig     `mapstructure:"tts"`
	Render  RenderServiceConfig  `mapstructure:"render"`
	Social  SocialServiceConfig  `mapstructure:"social"`
}

type ContentServiceConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type TTSServiceConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Voice  string `mapstructure:"voice"`
}

type RenderServiceConfig struct {
	URL          string `mapstructure:"url"`
	PollInterval int    `mapstructure:"poll_interval"` // seconds between render status polls
}

type SocialServiceConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

func Load() *Config {
	setDefaults()

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("no config file found, using defaults")
		} else {
			log.Fatalf("failed to read config file: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	return &config
}

// setDefaults sets the default configuration.
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// Logging defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT defaults
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24 hours
	viper.SetDefault("jwt.issuer", "reelforge")

	// Queue defaults. GPU rendering is capped at a single worker so that
	// concurrent renders cannot exhaust the card.
	viper.SetDefault("queues.content.workers", 4)
	viper.SetDefault("queues.content.soft_time_limit", 600)
	viper.SetDefault("queues.content.hard_time_limit", 1200)
	viper.SetDefault("queues.video.workers", 2)
	viper.SetDefault("queues.video.soft_time_limit", 1800)
	viper.SetDefault("queues.video.hard_time_limit", 3600)
	viper.SetDefault("queues.gpu.workers", 1)
	viper.SetDefault("queues.gpu.soft_time_limit", 3600)
	viper.SetDefault("queues.gpu.hard_time_limit", 7200)
	viper.SetDefault("queues.social.workers", 2)
	viper.SetDefault("queues.social.soft_time_limit", 600)
	viper.SetDefault("queues.social.hard_time_limit", 1200)
	viper.SetDefault("queues.maintenance.workers", 1)
	viper.SetDefault("queues.maintenance.soft_time_limit", 600)
	viper.SetDefault("queues.maintenance.hard_time_limit", 1200)

	// Retry defaults
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", 60)
	viper.SetDefault("retry.max_delay", 900)

	// Sweep defaults
	viper.SetDefault("sweep.stuck_interval", "@every 5m")
	viper.SetDefault("sweep.failed_check_interval", "@every 10m")
	viper.SetDefault("sweep.cleanup_interval", "@every 1h")
	viper.SetDefault("sweep.completed_retention_days", 7)
	viper.SetDefault("sweep.failed_retention_days", 30)
	viper.SetDefault("sweep.requeue_max_age_hours", 24)

	// External service defaults
	viper.SetDefault("services.content.model", "gpt-4o-mini")
	viper.SetDefault("services.tts.voice", "alloy")
	viper.SetDefault("services.render.poll_interval", 5)
}

// validateConfig checks that the configuration is usable.
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server port is not set")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is not set")
	}
	for name, q := range config.Queues {
		if q.Workers < 1 {
			return fmt.Errorf("queue %s: workers must be at least 1", name)
		}
		if q.HardTimeLimit < q.SoftTimeLimit {
			return fmt.Errorf("queue %s: hard_time_limit must not be below soft_time_limit", name)
		}
	}
	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// SoftLimit returns the soft time limit of a queue as a duration.
func (q QueueConfig) SoftLimit() time.Duration {
	return time.Duration(q.SoftTimeLimit) * time.Second
}

// HardLimit returns the hard time limit of a queue as a duration.
func (q QueueConfig) HardLimit() time.Duration {
	return time.Duration(q.HardTimeLimit) * time.Second
}

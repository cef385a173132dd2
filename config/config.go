package config

import (
	"fmt"
	"time"

	"mochimo/pkg/config"
)

// Config 是 server、worker 与 mochimoctl 共用的配置
type Config struct {
	Env      string               `yaml:"env"`
	LogLevel string               `yaml:"log_level"`
	DB       config.DBConfig      `yaml:"db"`
	MQ       config.MQConfig      `yaml:"mq"`
	Redis    config.RedisConfig   `yaml:"redis"`
	JWT      config.JWTConfig     `yaml:"jwt"`
	Server   config.ServerConfig  `yaml:"server"`
	Storage  config.StorageConfig `yaml:"storage"`
	Uploads  config.UploadConfig  `yaml:"uploads"`
	Outbox   config.OutboxConfig  `yaml:"outbox"`
	OTel     config.OTelConfig    `yaml:"otel"`
	Worker   WorkerConfig         `yaml:"worker"`
}

// WorkerConfig 通知消费者配置
type WorkerConfig struct {
	MaxRetries int64         `yaml:"max_retries"`
	DedupTTL   time.Duration `yaml:"dedup_ttl"`
	RetryTTL   time.Duration `yaml:"retry_ttl"`
}

// Load 读取 CONFIG_ENV 对应的配置（默认 local），目录由 CONFIG_DIR 指定
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := Defaults()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Env == "" {
		cfg.Env = env
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideStorageFromEnv(&cfg.Storage)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults 返回未在 YAML 中出现的字段的默认值
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		DB: config.DBConfig{
			Port:          5432,
			SSLMode:       "disable",
			MaxConns:      10,
			SlowThreshold: 100 * time.Millisecond,
		},
		MQ: config.MQConfig{Queue: "notifications.q"},
		JWT: config.JWTConfig{
			TTL:        24 * time.Hour,
			CookieName: "mochimo_token",
		},
		Server: config.ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: config.StorageConfig{Region: "us-east-1", Bucket: "mochimo"},
		Uploads: config.UploadConfig{
			MaxBytes: 5 << 20,
			Timeout:  30 * time.Second,
		},
		Outbox: config.OutboxConfig{
			Interval:   time.Second,
			BatchSize:  100,
			MaxRetries: 5,
		},
		Worker: WorkerConfig{
			MaxRetries: 3,
			DedupTTL:   24 * time.Hour,
			RetryTTL:   time.Hour,
		},
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("jwt.secret must be at least 16 bytes")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	return nil
}

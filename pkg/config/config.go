package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Name          string        `yaml:"name"`
	SSLMode       string        `yaml:"sslmode"`
	MaxConns      int32         `yaml:"max_conns"`
	MinConns      int32         `yaml:"min_conns"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig 令牌与 cookie 配置
type JWTConfig struct {
	Secret       string        `yaml:"secret"`
	TTL          time.Duration `yaml:"ttl"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`
	CookieDomain string        `yaml:"cookie_domain"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// StorageConfig 图片存储（MinIO / S3 兼容）配置
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Region        string `yaml:"region"`
	UseSSL        bool   `yaml:"use_ssl"`
	Bucket        string `yaml:"bucket"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// UploadConfig 上传限制
type UploadConfig struct {
	MaxBytes int64         `yaml:"max_bytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OutboxConfig outbox dispatcher 配置
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
	if mode := os.Getenv("DB_SSLMODE"); mode != "" {
		cfg.SSLMode = mode
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
	if secure := os.Getenv("COOKIE_SECURE"); secure != "" {
		if b, err := strconv.ParseBool(secure); err == nil {
			cfg.CookieSecure = b
		}
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
}

// OverrideStorageFromEnv 从环境变量覆盖对象存储配置
func OverrideStorageFromEnv(cfg *StorageConfig) {
	if endpoint := os.Getenv("STORAGE_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("STORAGE_ACCESS_KEY"); key != "" {
		cfg.AccessKey = key
	}
	if secret := os.Getenv("STORAGE_SECRET_KEY"); secret != "" {
		cfg.SecretKey = secret
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		cfg.Bucket = bucket
	}
	if base := os.Getenv("STORAGE_PUBLIC_BASE_URL"); base != "" {
		cfg.PublicBaseURL = base
	}
}

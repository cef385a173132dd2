package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"mochimo/pkg/config"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	Bucket        string
	PublicBaseURL string
}

func ConfigFrom(c config.StorageConfig) Config {
	cfg := Config{
		Endpoint:      c.Endpoint,
		AccessKey:     c.AccessKey,
		SecretKey:     c.SecretKey,
		Region:        c.Region,
		UseSSL:        c.UseSSL,
		Bucket:        c.Bucket,
		PublicBaseURL: strings.TrimRight(c.PublicBaseURL, "/"),
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// ObjectURL 返回对象的公开访问地址
func (c Config) ObjectURL(key string) string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL + "/" + key
	}
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, c.Endpoint, c.Bucket, key)
}

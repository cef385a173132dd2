package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"mochimo/pkg/circuitbreaker"
	"mochimo/pkg/metrics"
)

// ErrUnavailable 存储熔断打开时返回
var ErrUnavailable = errors.New("object storage unavailable")

// ImageStore 保存任务凭证与付款截图
type ImageStore interface {
	Save(ctx context.Context, kind string, projectID int64, img Image) (string, error)
}

// objectPutter 是 *minio.Client 的子集
type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioStore struct {
	client  objectPutter
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// EnsureBucket 启动时创建 bucket（已存在则忽略）
func EnsureBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
	}
	return nil
}

func NewMinioStore(client *minio.Client, cfg Config, logger *zap.Logger) *MinioStore {
	return newMinioStore(client, cfg, logger)
}

func newMinioStore(client objectPutter, cfg Config, logger *zap.Logger) *MinioStore {
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:                "objectstore",
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &MinioStore{client: client, cfg: cfg, breaker: breaker, logger: logger}
}

// Save 写入对象并返回其访问 URL；key 形如 <kind>/<projectID>/<uuid><ext>
func (s *MinioStore) Save(ctx context.Context, kind string, projectID int64, img Image) (string, error) {
	key := fmt.Sprintf("%s/%d/%s%s", kind, projectID, uuid.NewString(), img.Extension())

	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, img.Body, img.Size, minio.PutObjectOptions{
			ContentType: img.ContentType,
		})
		return err
	})
	if err != nil {
		metrics.IncrementUpload(kind, "error")
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.logger.Error("Failed to store object",
			zap.String("key", key),
			zap.Error(err),
		)
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.IncrementUpload(kind, "ok")
	return s.cfg.ObjectURL(key), nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const (
	// HeaderName 请求与响应中携带 trace id 的 header
	HeaderName = "X-Trace-ID"
	// RequestIDHeader 网关常用的备用 header，只读不写
	RequestIDHeader = "X-Request-ID"
)

const maxIDLength = 64

type ctxKey struct{}

// GenerateTraceID 返回 32 位十六进制 id
func GenerateTraceID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromHeaders 取第一个合法的上游 id；都不合法时生成新的，避免把任意输入写进日志
func FromHeaders(get func(string) string) string {
	for _, name := range []string{HeaderName, RequestIDHeader} {
		if id := strings.TrimSpace(get(name)); valid(id) {
			return id
		}
	}
	return GenerateTraceID()
}

func valid(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/handler"
	"mochimo/internal/service"
	"mochimo/pkg/metrics"
	"mochimo/pkg/rbac"
	"mochimo/pkg/trace"
	"mochimo/pkg/util"
)

// Authenticator 由 service.AuthService 实现
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*util.Claims, error)
}

// AuthMiddleware 从 cookie 或 Authorization: Bearer 读取 token，写入 user_id 与 role
func AuthMiddleware(auth Authenticator, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			logger.Error("Session check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}

		c.Set(handler.CtxUserID, claims.UserID)
		c.Set(handler.CtxRole, claims.Role)
		c.Set(handler.CtxToken, token)
		c.Next()
	}
}

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(handler.CtxRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		roleStr, _ := role.(string)
		if err := rbac.CheckPermission(roleStr, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}

		c.Next()
	}
}

// TraceMiddleware 读取或生成 trace id，写入 context 与响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeaders(c.GetHeader)
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// RequestLogger 请求日志中间件
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
		}
		if userID := c.GetInt64(handler.CtxUserID); userID != 0 {
			fields = append(fields, zap.Int64("user_id", userID))
		}
		logger.Info("HTTP Request", fields...)
	}
}

// MetricsMiddleware 按路由模板记录请求延迟，避免 id 造成高基数
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// CORS 只允许配置中的来源，并允许携带 cookie。
// 携带凭证时 "*" 不能作为来源，配置里出现会被忽略
func CORS(allowedOrigins []string, logger *zap.Logger) gin.HandlerFunc {
	origins := corsOrigins(allowedOrigins, logger)
	if len(origins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", trace.HeaderName},
		ExposeHeaders:    []string{trace.HeaderName},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func corsOrigins(allowedOrigins []string, logger *zap.Logger) []string {
	out := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			logger.Warn("ignoring wildcard CORS origin, credentials are enabled")
		case !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://"):
			logger.Warn("ignoring CORS origin without scheme", zap.String("origin", o))
		default:
			out = append(out, o)
		}
	}
	return out
}

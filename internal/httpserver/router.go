package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mochimo/internal/handler"
	"mochimo/pkg/otel"
	"mochimo/pkg/rbac"
)

// Pinger 用于 /readyz
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers 汇总路由需要的全部 handler
type Handlers struct {
	Auth          *handler.AuthHandler
	Projects      *handler.ProjectHandler
	Requirements  *handler.RequirementHandler
	Contracts     *handler.ContractHandler
	Tasks         *handler.TaskHandler
	Payments      *handler.PaymentHandler
	Notifications *handler.NotificationHandler
	Admin         *handler.AdminHandler
}

type Options struct {
	Authenticator  Authenticator
	CookieName     string
	AllowedOrigins []string
	Ready          []Pinger
	Logger         *zap.Logger
}

func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(RequestLogger(opts.Logger))
	r.Use(MetricsMiddleware())
	r.Use(CORS(opts.AllowedOrigins, opts.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, p := range opts.Ready {
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Public
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	// Protected
	auth := api.Group("/")
	auth.Use(AuthMiddleware(opts.Authenticator, opts.CookieName, opts.Logger))
	{
		auth.POST("/auth/logout", h.Auth.Logout)
		auth.GET("/auth/me", h.Auth.Me)

		auth.GET("/projects", h.Projects.List)
		auth.POST("/projects", h.Projects.Create)
		auth.POST("/projects/join", h.Projects.Join)
		auth.GET("/projects/:id", h.Projects.Get)
		auth.PATCH("/projects/:id", h.Projects.Update)
		auth.DELETE("/projects/:id", h.Projects.Delete)
		auth.GET("/projects/:id/overview", h.Projects.Overview)
		auth.POST("/projects/:id/invite", h.Projects.RegenerateInvite)
		auth.POST("/projects/:id/submit", h.Projects.Submit)
		auth.POST("/projects/:id/approve", h.Projects.Approve)
		auth.POST("/projects/:id/reject", h.Projects.Reject)
		auth.POST("/projects/:id/complete", h.Projects.Complete)

		auth.GET("/projects/:id/requirements", h.Requirements.List)
		auth.POST("/projects/:id/requirements", h.Requirements.Add)
		auth.PATCH("/requirements/:id", h.Requirements.Update)
		auth.DELETE("/requirements/:id", h.Requirements.Delete)
		auth.POST("/requirements/:id/approve", h.Requirements.Approve)
		auth.POST("/requirements/:id/reject", h.Requirements.Reject)

		auth.GET("/projects/:id/contract", h.Contracts.Get)
		auth.PUT("/projects/:id/contract", h.Contracts.Draft)
		auth.POST("/projects/:id/contract/submit", h.Contracts.Submit)
		auth.POST("/projects/:id/contract/approve", h.Contracts.Approve)
		auth.POST("/projects/:id/contract/revise", h.Contracts.Revise)

		auth.GET("/projects/:id/tasks", h.Tasks.List)
		auth.PATCH("/tasks/:id", h.Tasks.Update)
		auth.POST("/tasks/:id/proof", h.Tasks.AttachProof)

		auth.GET("/projects/:id/payments", h.Payments.List)
		auth.POST("/projects/:id/payments", h.Payments.Upload)
		auth.GET("/projects/:id/payments/summary", h.Payments.Summary)
		auth.POST("/payments/:id/verify", h.Payments.Verify)
		auth.POST("/payments/:id/reject", h.Payments.Reject)

		auth.GET("/notifications", h.Notifications.List)
		auth.POST("/notifications/:id/read", h.Notifications.MarkRead)

		admin := auth.Group("/admin")
		admin.Use(RequirePermission(rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", h.Admin.ReplayOutbox)
	}

	return r
}

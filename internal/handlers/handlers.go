package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docchat/gateway/internal/config"
	"docchat/gateway/internal/middleware"
	"docchat/gateway/internal/models"
	"docchat/gateway/internal/security"
	"docchat/gateway/internal/upstream"
)

// LogoutRetryQueue receives backend logouts the gateway could not deliver.
type LogoutRetryQueue interface {
	EnqueueLogout(ctx context.Context, task models.LogoutRetryTask) error
}

// EventRecorder persists audit events.
type EventRecorder interface {
	Record(ctx context.Context, event models.AuthEvent) error
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators of the route layer. Only Upstream is
// required; nil optional collaborators switch their feature off.
type Dependencies struct {
	Upstream *upstream.Client
	Retry    LogoutRetryQueue
	Events   EventRecorder
	Limiter  middleware.Counter
	Database Pinger
	Cache    *redis.Client
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	upstream *upstream.Client
	cookies  security.CookiePolicy
	retry    LogoutRetryQueue
	events   EventRecorder
	limiter  middleware.Counter
	db       Pinger
	cache    *redis.Client
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	return HandlerSet{
		log:      log,
		cfg:      cfg,
		upstream: deps.Upstream,
		cookies:  security.NewCookiePolicy(cfg),
		retry:    deps.Retry,
		events:   deps.Events,
		limiter:  deps.Limiter,
		db:       deps.Database,
		cache:    deps.Cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	session := middleware.RequireSession(h.cookies)

	auth := router.Group("/auth")
	{
		auth.POST("/login", h.audit(models.OpLogin), h.rateLimit(), h.Login)
		auth.POST("/signup", h.audit(models.OpSignup), h.rateLimit(), h.Signup)
		auth.GET("/me", h.audit(models.OpMe), session, h.Me)
		auth.GET("/refresh", h.audit(models.OpRefresh), session, h.Refresh)
		auth.POST("/refresh", h.audit(models.OpRefresh), session, h.Refresh)
		auth.POST("/logout", h.audit(models.OpLogout), h.Logout)
		auth.POST("/change-password", h.audit(models.OpChangePassword), session, h.ChangePassword)
		auth.POST("/forgot-password", h.audit(models.OpForgotPassword), h.rateLimit(), h.ForgotPassword)
		auth.POST("/reset-password", h.audit(models.OpResetPassword), h.rateLimit(), h.ResetPassword)
		auth.GET("/validate-reset-token/:token", h.audit(models.OpValidateResetToken), h.ValidateResetToken)
	}

	for _, route := range resourceRoutes {
		chain := []gin.HandlerFunc{}
		if route.auth == authBearer {
			chain = append(chain, session)
		}
		chain = append(chain, h.forward(route))
		router.Handle(route.method, route.path, chain...)
	}
}

// rateLimit is a no-op unless limiting is enabled and a counter is wired.
func (h HandlerSet) rateLimit() gin.HandlerFunc {
	if !h.cfg.RateLimit.Enabled || h.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(h.limiter, h.cfg.RateLimit.Requests, h.cfg.RateLimit.Window, h.log)
}

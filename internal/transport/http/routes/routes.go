package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/infra/config"
	"github.com/arklim/authflow/internal/transport/http/handlers"
	"github.com/arklim/authflow/internal/transport/http/middleware"
	"github.com/arklim/authflow/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Registration  *usecase.RegistrationService
	PasswordReset *usecase.PasswordResetService
	Sessions      *usecase.SessionService
	Authorizer    *usecase.Authorizer
}

func (s ServiceSet) complete() bool {
	return s.Auth != nil && s.Registration != nil && s.PasswordReset != nil && s.Sessions != nil && s.Authorizer != nil
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	Services ServiceSet
	Database HealthChecker
	Cache    HealthChecker
}

// HealthChecker exposes readiness behaviour for a backing service.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	serviceName := deps.Config.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = deps.Config.App.Name
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Trace(serviceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if !deps.Services.complete() {
		if deps.Logger != nil {
			deps.Logger.Warn("auth services not configured; /api/v1/auth routes disabled")
		}
		return r
	}

	svc := deps.Services
	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Registration, svc.PasswordReset, svc.Sessions)
	limits := newLimitBuilder(deps)

	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/sign-in", limits.chain(authHandler.SignIn,
			limits.byIP("sign_in", limits.cfg.SignInMaxAttempts))...)
		auth.POST("/sign-up", limits.chain(authHandler.SignUp,
			limits.byIP("sign_up", limits.cfg.SignUpMaxAttempts))...)
		auth.POST("/verify-signup-otp", limits.chain(authHandler.VerifySignupOTP,
			limits.byEmail("verify_signup_otp", limits.cfg.VerifyOTPMaxAttempts))...)
		auth.POST("/complete-registration", authHandler.CompleteRegistration)
		auth.POST("/resend-otp", limits.chain(authHandler.ResendOTP,
			limits.byEmail("resend_otp", limits.cfg.ResendMaxAttempts))...)
		auth.POST("/refresh-token", limits.chain(authHandler.RefreshToken,
			limits.byIP("refresh_token", limits.cfg.RefreshTokenMaxAttempts))...)
		auth.POST("/forget-password", limits.chain(authHandler.ForgetPassword,
			limits.byEmail("forget_password", limits.cfg.ForgetPasswordAttempts))...)
		auth.POST("/verify-reset-otp", limits.chain(authHandler.VerifyResetOTP,
			limits.byEmail("verify_reset_otp", limits.cfg.VerifyOTPMaxAttempts))...)
		auth.POST("/reset-password", authHandler.ResetPassword)

		auth.GET("/me", middleware.RequireAuth(svc.Authorizer), authHandler.Me)
		auth.GET("/admin/ping", middleware.RequireAuth(svc.Authorizer, domain.RoleAdmin), authHandler.AdminPing)
	}

	return r
}

// limitBuilder turns rate_limit settings into per-route middleware. Rules
// with a non-positive limit are skipped.
type limitBuilder struct {
	limiter *middleware.RateLimiter
	cfg     config.RateLimitSettings
	window  time.Duration
}

func newLimitBuilder(deps Dependencies) limitBuilder {
	b := limitBuilder{limiter: deps.RateLimiter, cfg: deps.Config.RateLimit, window: deps.Config.RateLimit.WindowDuration}
	if b.window <= 0 {
		b.window = time.Minute
	}
	return b
}

func (b limitBuilder) byIP(name string, limit int) []middleware.RateLimitRule {
	return b.rule(name+"_ip", limit, middleware.ClientIPIdentifier())
}

// byEmail limits per address and, as a backstop, per client IP.
func (b limitBuilder) byEmail(name string, limit int) []middleware.RateLimitRule {
	rules := b.rule(name+"_email", limit, middleware.JSONFieldIdentifier("email"))
	return append(rules, b.rule(name+"_ip", limit*4, middleware.ClientIPIdentifier())...)
}

func (b limitBuilder) rule(name string, limit int, id middleware.IdentifierFunc) []middleware.RateLimitRule {
	if limit <= 0 {
		return nil
	}
	return []middleware.RateLimitRule{{Name: name, Limit: limit, Window: b.window, Identifier: id}}
}

func (b limitBuilder) chain(handler gin.HandlerFunc, rules []middleware.RateLimitRule) []gin.HandlerFunc {
	if b.limiter == nil || len(rules) == 0 {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{b.limiter.RateLimit(rules...), handler}
}

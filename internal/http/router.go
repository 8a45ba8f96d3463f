package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/bizhub/internal/config"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/http/handlers"
	"github.com/geocoder89/bizhub/internal/http/middlewares"
	"github.com/geocoder89/bizhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

type Accounts interface {
	handlers.AccountService
	handlers.UserService
}

type RouterDeps struct {
	Log      *slog.Logger
	Config   config.Config
	Accounts Accounts

	Verifier middlewares.CredentialVerifier
	Profiles middlewares.ProfileReader

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	DB    handlers.Pinger
	Cache handlers.Pinger
	Creds handlers.Pinger
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Config.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	handlers.RegisterValidators()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	if d.Config.OTelEnabled {
		r.Use(otelgin.Middleware(observability.ServiceName))
	}
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(d.Config.IsProd()))
	r.Use(middlewares.CORSMiddleware(d.Config.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))

	// health
	h := handlers.NewHealthHandler(d.DB, d.Cache, d.Creds)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authMW := middlewares.NewAuthMiddleware(d.Verifier, d.Profiles, d.Log)
	requireAuth := authMW.RequireAuth()
	adminOnly := middlewares.RequireRole(profile.RoleAdmin)

	// credential endpoints are limited per client IP
	credLimiter := middlewares.NewRateLimiter(10, time.Minute)
	userLimiter := middlewares.NewRateLimiter(120, time.Minute)

	authH := handlers.NewAuthHandler(d.Accounts)
	usersH := handlers.NewUsersHandler(d.Accounts)

	api := r.Group("/api")
	api.Use(middlewares.RequireJSON())

	auth := api.Group("/auth")
	{
		auth.POST("/signup", credLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authH.SignUp)
		auth.POST("/login", credLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authH.Login)

		authed := auth.Group("", requireAuth, userLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
		authed.POST("/logout", authH.Logout)
		authed.GET("/me", authH.Me)

		admin := authed.Group("", adminOnly)
		admin.GET("/pending-users", authH.PendingUsers)
		admin.POST("/approve-user/:id", authH.ApproveUser)
		admin.POST("/reject-user/:id", authH.RejectUser)
	}

	users := api.Group("/users", requireAuth, userLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	{
		users.GET("", adminOnly, usersH.ListUsers)
		users.GET("/:id", usersH.GetUser)
		users.PUT("/:id", usersH.UpdateUser)
		users.PUT("/:id/role", adminOnly, usersH.UpdateRole)
	}

	return r
}

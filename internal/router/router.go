package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/handler"
	"github.com/campustest/testgate/internal/middleware"
	"github.com/campustest/testgate/internal/response"
	"github.com/campustest/testgate/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	Beacon  *handler.BeaconHandler
	Events  *handler.EventsHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the beacon route. sendBeacon payloads arrive
	// unauthenticated at the header level, so the bucket is per IP.
	beaconLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/session", handlers.Auth.ExchangeToken)
	}

	// ─── 2. Beacon (Token in body, rate limited) ───────────────────────
	router.POST("/api/v1/beacon", beaconLimiter.Middleware(), handlers.Beacon.SaveBeacon)

	// ─── 3. Session Group (JWT) ────────────────────────────────────────
	sessionAPI := router.Group("/api/v1/session")
	sessionAPI.Use(middleware.RequireSessionAuth(authService))
	{
		sessionAPI.POST("/tests/:test_id/start", handlers.Session.StartSession)
		sessionAPI.GET("/tests/:test_id/state", handlers.Session.GetState)
		sessionAPI.GET("/tests/:test_id/paper", handlers.Session.GetPaper)
		sessionAPI.POST("/tests/:test_id/answer", handlers.Session.Answer)
		sessionAPI.POST("/tests/:test_id/navigate", handlers.Session.Navigate)
		sessionAPI.POST("/tests/:test_id/submit", handlers.Session.RequestSubmit)
		sessionAPI.POST("/tests/:test_id/submit/confirm", handlers.Session.ConfirmSubmit)
		sessionAPI.POST("/tests/:test_id/submit/cancel", handlers.Session.CancelSubmit)
		sessionAPI.GET("/tests/:test_id/result", handlers.Session.GetResult)
		sessionAPI.DELETE("/tests/:test_id", handlers.Session.EndSession)

		sessionAPI.POST("/events", handlers.Events.ReportEvent)
		sessionAPI.GET("/tests/:test_id/events", handlers.Events.ListEvents)
	}

	// ─── 4. WebSocket Group (Query token auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/session/tests/:test_id/stream", handlers.WS.SessionStream)
	}

	return router
}

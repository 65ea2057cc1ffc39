package http

import (
	"github.com/gin-gonic/gin"
	"github.com/medoxie/wristband/ports"
	"github.com/medoxie/wristband/service"
	"golang.org/x/time/rate"
)

// RouterConfig carries the transport-level knobs.
type RouterConfig struct {
	// APIKey optionally bypasses wallet auth on the auth endpoints.
	APIKey string
}

// SetupRouter sets up the Gin router.
func SetupRouter(
	wallet *service.WalletAuthenticator,
	scoped *service.ScopedAuthenticator,
	sessions *service.SessionManager,
	directory ports.ProfileDirectory,
	cfg RouterConfig,
) *gin.Engine {
	router := gin.Default()

	handlers := NewHandlers(wallet, sessions)

	router.GET("/healthz", handlers.Health)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/nonce", RateLimitMiddleware(rate.Limit(1), 5), handlers.Nonce)

		signed := auth.Group("", WalletAuthMiddleware(wallet, cfg.APIKey))
		signed.POST("/start", handlers.AuthStart)
		signed.POST("/mfa", handlers.AuthResume)
	}

	// Data routes, bound to one profile and one path per signature
	api := router.Group("/api")
	api.Use(ScopedAuthMiddleware(scoped, directory))
	{
		api.GET("/summary/:day", handlers.DailySummary)
		api.GET("/sleep/:day", handlers.Sleep)
		api.GET("/activities", handlers.Activities)
		api.GET("/activities/:id", handlers.ActivityDetails)
	}

	return router
}

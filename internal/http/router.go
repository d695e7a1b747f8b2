package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/arcade-auth/internal/config"
	"github.com/smallbiznis/arcade-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/arcade-auth/internal/http/middleware"
	"github.com/smallbiznis/arcade-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)

		authGroup.POST("/logout", authMiddleware.RequireAccessToken, authHandler.Logout)
		authGroup.GET("/me", authMiddleware.RequireAccessToken, authHandler.Me)
		authGroup.PUT("/profile", authMiddleware.RequireAccessToken, authHandler.UpdateProfile)
		authGroup.PUT("/change-password", authMiddleware.RequireAccessToken, authHandler.ChangePassword)
	}

	r.GET("/healthz", authHandler.Healthz)

	return r
}

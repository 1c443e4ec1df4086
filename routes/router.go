package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/winsome/config"
	"github.com/cppla/winsome/controllers"
	"github.com/cppla/winsome/middleware"
	"github.com/cppla/winsome/utils"
)

// SetupRouter wires the out-of-band HTTP API: signup, follower callbacks and health.
func SetupRouter(cfg config.AppConfig, app *controllers.App, logger *zap.Logger) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if logger == nil {
		logger = zap.NewNop()
	}
	r.Use(middleware.Ginzap(logger.Named("http")))
	r.Use(middleware.RecoveryWithZap(logger.Named("http")))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Respond(ctx, http.StatusOK, utils.Success(utils.H{
			"status":   "ok",
			"sessions": app.Sessions.Count(),
		}))
	})

	api := r.Group("/api/v1")
	api.POST("/signup", middleware.RateLimitMiddleware(cfg.RateLimitPerMinute), app.SignupHTTP)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(cfg.JWTSecret, app.Tokens))
	protected.GET("/notifications", app.RegisterCallback)
	protected.DELETE("/notifications", app.UnregisterCallback)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Respond(ctx, http.StatusNotFound, utils.Error(-404, "route not found"))
	})

	return r
}

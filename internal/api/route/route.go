package route

import (
	"net/http"

	"github.com/bassista/go_syncstore/internal/api/middleware"
	"github.com/bassista/go_syncstore/internal/app"
	"github.com/bassista/go_syncstore/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the main router. notifier may be nil.
func SetupRoutes(appCtx *app.App, notifier telemetry.Notifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.HoneybadgerMiddleware(notifier))
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	publicRouter := r.Group("")
	NewStoreRouter(appCtx.Config.Server.RequestTimeout, publicRouter, appCtx.Registry)

	return r
}

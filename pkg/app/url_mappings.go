package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renderq/renderq/internal/controllers"
	"github.com/renderq/renderq/internal/middleware"
	"github.com/renderq/renderq/internal/ratelimit"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController().Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submitBucket := ratelimit.Bucket{
		RequestsPerMinute: app.Config.RateLimit.Submit.RequestsPerMinute,
		BurstSize:         app.Config.RateLimit.Submit.BurstSize,
	}

	v1 := app.Engine.Group("/v1/renderq")
	authed := v1.Group("", middleware.AuthMiddleware(app.TokenAuth))
	{
		authed.POST("/conversions",
			middleware.RateLimitSubmissions(app.RateLimiter, submitBucket),
			controllers.NewConvertController(app.Orchestrator, app.Logger).Handle)
		authed.GET("/conversions/:id", controllers.NewStatusController(app.Ledger).Handle)
	}
}

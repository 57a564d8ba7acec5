package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailclean/api/handlers"
	"github.com/customeros/mailclean/api/middleware"
	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
	"github.com/customeros/mailclean/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, appConfig *config.AppConfig, log logger.Logger) {
	if s == nil {
		panic("Services cannot be nil")
	}

	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer(), log))
	r.Use(middleware.CORSMiddleware(appConfig.CorsOrigins))

	apiHandlers := handlers.InitHandlers(s)

	// Health check (no api key, no custom context)
	r.GET("/health", handlers.HealthCheck)

	api := r.Group("")
	api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: appConfig.APIKey,
	}))
	api.Use(middleware.RequestIdMiddleware())
	api.Use(middleware.CustomContextMiddleware(utils.AppSourceApi))
	api.Use(middleware.TracingMiddleware())
	{
		api.GET("/oauth/me", apiHandlers.Auth.Me())

		scan := api.Group("/scan")
		{
			scan.GET("/summary", apiHandlers.Scan.Summary())
			scan.POST("/run", apiHandlers.Scan.Run())
		}

		api.GET("/insights/unsubscribe-candidates", apiHandlers.Senders.UnsubscribeCandidates())

		senders := api.Group("/senders")
		{
			senders.GET("", apiHandlers.Senders.List())
			senders.GET("/:id", apiHandlers.Senders.Get())
		}

		api.DELETE("/categories/:category", apiHandlers.Actions.WipeCategory())

		plan := api.Group("/plan")
		{
			plan.POST("/generate", apiHandlers.Plan.Generate())
			plan.POST("/simulate", apiHandlers.Plan.Simulate())
			plan.POST("/execute", apiHandlers.Actions.Execute())
			plan.GET("/:id", apiHandlers.Plan.Get())
		}

		api.POST("/action/undo/:id", apiHandlers.Actions.Undo())
		api.GET("/undo/status/:id", apiHandlers.Actions.UndoStatus())

		api.GET("/audit/logs", apiHandlers.Audit.Logs())
	}
}

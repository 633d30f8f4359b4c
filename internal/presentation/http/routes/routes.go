// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/SocialGouv/champollion-go/internal/application/container"
	"github.com/SocialGouv/champollion-go/internal/presentation/http/handlers"
	"github.com/SocialGouv/champollion-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(container.Config.CORSOrigins))

	// Initialize handlers
	systemHandlers := handlers.NewSystemHandlers(container.LoadRegistry, container.Logger, container.PerfTracker)
	synthesisHandlers := handlers.NewSynthesisHandlers(
		container.SynthesisService,
		container.LoadRegistry,
		container.Logger,
		container.PerfTracker,
		container.Config.SSEHeartbeatInterval,
	)
	correctionsHandlers := handlers.NewCorrectionsHandlers(container.CorrectionsService, container.Logger, container.PerfTracker)

	r.GET("/health", systemHandlers.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.InspectorAuthMiddleware(container.Config.JWTSecret, container.Logger))
	{
		establishments := api.Group("/etablissements/:siret")
		{
			establishments.GET("/synthese", synthesisHandlers.GetSynthesis)
			establishments.GET("/corrections", correctionsHandlers.GetCorrections)
			establishments.PUT("/corrections", correctionsHandlers.PutCorrections)
			establishments.DELETE("/corrections", correctionsHandlers.DeleteCorrections)
		}

		synthesis := api.Group("/synthese/:loadId")
		{
			synthesis.GET("", synthesisHandlers.GetSnapshot)
			synthesis.DELETE("", synthesisHandlers.CancelLoad)
			synthesis.GET("/indicateurs/:kind", synthesisHandlers.GetIndicator)
			synthesis.GET("/stream", synthesisHandlers.StreamIndicators)
			synthesis.GET("/ws", synthesisHandlers.StreamIndicatorsWS)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/stats", systemHandlers.GetStats)
			admin.GET("/logs/levels", systemHandlers.GetLogLevels)
			admin.PUT("/logs/levels", systemHandlers.SetLogLevel)
		}
	}

	return r
}

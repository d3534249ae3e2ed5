package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/medscribe/medscribe-backend/internal/handlers"
	"github.com/medscribe/medscribe-backend/internal/middleware"
)

type RouterConfig struct {
	ConsultationHandler *handlers.ConsultationHandler
	IdentityMiddleware  *middleware.IdentityMiddleware
	AllowOrigins        []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("medscribe"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.UserIDHeader},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.IdentityMiddleware.RequireUser())
	{
		api.POST("/consultations", cfg.ConsultationHandler.Create)
		api.GET("/consultations", cfg.ConsultationHandler.List)
		api.GET("/consultations/:id", cfg.ConsultationHandler.Get)
		api.PUT("/consultations/:id/note", cfg.ConsultationHandler.UpdateNote)
		api.POST("/consultations/:id/approve", cfg.ConsultationHandler.Approve)
		api.POST("/consultations/:id/reject", cfg.ConsultationHandler.Reject)
		api.GET("/consultations/:id/history", cfg.ConsultationHandler.History)
		api.GET("/consultations/:id/document", cfg.ConsultationHandler.Document)
	}

	return router
}

package app

import (
	"github.com/gin-gonic/gin"

	"github.com/medscribe/medscribe-backend/internal/handlers"
	"github.com/medscribe/medscribe-backend/internal/middleware"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/server"
)

type Handlers struct {
	Consultation *handlers.ConsultationHandler
}

type Middleware struct {
	Identity *middleware.IdentityMiddleware
}

func wireHandlers(log *logger.Logger, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Consultation: handlers.NewConsultationHandler(s.Consultation, s.Review),
	}
}

func wireMiddleware(log *logger.Logger) Middleware {
	return Middleware{
		Identity: middleware.NewIdentityMiddleware(log),
	}
}

func wireRouter(cfg Config, h Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ConsultationHandler: h.Consultation,
		IdentityMiddleware:  mw.Identity,
		AllowOrigins:        cfg.AllowOrigins,
	})
}

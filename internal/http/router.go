package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/walehn/reader-study-backend/internal/http/handlers"
	httpMW "github.com/walehn/reader-study-backend/internal/http/middleware"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	AuthHandler    *httpH.AuthHandler
	ConfigHandler  *httpH.ConfigHandler
	CaseHandler    *httpH.CaseHandler
	SessionHandler *httpH.SessionHandler
	StudyHandler   *httpH.StudyHandler
	AuditHandler   *httpH.AuditHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthHandler != nil {
			api.POST("/auth/login", cfg.AuthHandler.Login)
			api.POST("/auth/refresh", cfg.AuthHandler.Refresh)
		}
		if cfg.ConfigHandler != nil {
			api.GET("/study-config/public", cfg.ConfigHandler.GetPublic)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.AuthHandler != nil {
			protected.POST("/auth/logout", cfg.AuthHandler.Logout)
		}

		if cfg.CaseHandler != nil {
			protected.GET("/cases/count", cfg.CaseHandler.Count)
			protected.GET("/cases/allocation/preview", cfg.CaseHandler.AllocationPreview)
			protected.GET("/cases/:caseID/volume/:series", cfg.CaseHandler.Volume)
		}

		if cfg.SessionHandler != nil {
			protected.GET("/sessions/my", cfg.SessionHandler.ListMine)
			protected.POST("/sessions/:id/enter", cfg.SessionHandler.Enter)
			protected.GET("/sessions/:id/current", cfg.SessionHandler.Current)
			protected.POST("/sessions/:id/advance", cfg.SessionHandler.Advance)
		}

		if cfg.StudyHandler != nil {
			protected.POST("/study/submit", cfg.StudyHandler.Submit)
		}
	}

	admin := protected.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			admin.Use(cfg.AuthMiddleware.RequireAdmin())
		}

		if cfg.AuthHandler != nil {
			admin.POST("/auth/register", cfg.AuthHandler.Register)
		}
		if cfg.ConfigHandler != nil {
			admin.GET("/study-config", cfg.ConfigHandler.Get)
			admin.PUT("/study-config", cfg.ConfigHandler.Update)
			admin.POST("/study-config/lock", cfg.ConfigHandler.Lock)
		}
		if cfg.CaseHandler != nil {
			admin.POST("/cases/allocate", cfg.CaseHandler.Allocate)
		}
		if cfg.SessionHandler != nil {
			admin.POST("/sessions/assign", cfg.SessionHandler.Assign)
			admin.POST("/sessions/:id/reset", cfg.SessionHandler.Reset)
		}
		if cfg.StudyHandler != nil {
			admin.GET("/study/results/:caseID", cfg.StudyHandler.ResultsByCase)
		}
		if cfg.AuditHandler != nil {
			admin.GET("/audit-logs", cfg.AuditHandler.ListForReader)
		}
	}

	return r
}

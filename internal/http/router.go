package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/ridgeline-labs/review-orchestrator/internal/http/handlers"
	"github.com/ridgeline-labs/review-orchestrator/internal/http/middleware"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
)

// RouterConfig wires every handler this service exposes, mirroring the
// teacher's RouterConfig-struct-of-handlers pattern.
type RouterConfig struct {
	Log  *logger.Logger
	Auth *middleware.Auth

	Jobs  *handlers.JobsHandler
	Admin *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS())

	r.GET("/healthz", handlers.Health)

	api := r.Group("/api")
	{
		protected := api.Group("/")
		if cfg.Auth != nil {
			protected.Use(cfg.Auth.RequireServiceToken())
		}

		if cfg.Jobs != nil {
			protected.POST("/jobs", cfg.Jobs.CreateJob)
			protected.GET("/jobs/:id", cfg.Jobs.GetJob)
			protected.GET("/jobs/:id/stream", cfg.Jobs.Stream)
			protected.POST("/jobs/:id/feedback", cfg.Jobs.PublishFeedback)
		}

		if cfg.Admin != nil {
			protected.GET("/admin/jobs", cfg.Admin.ListJobs)
			protected.GET("/admin/jobs/:id", cfg.Admin.GetJob)
			protected.PATCH("/admin/jobs/:id", cfg.Admin.UpdateJob)
			protected.DELETE("/admin/jobs/:id", cfg.Admin.DeleteJob)
			protected.POST("/admin/jobs/:id/cancel", cfg.Admin.CancelJob)
		}
	}

	return r
}

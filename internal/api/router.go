// Package api assembles the HTTP surface.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/orrn/labelflow/internal/api/handlers"
	"github.com/orrn/labelflow/internal/engine"
	"github.com/orrn/labelflow/internal/printers"
	"github.com/orrn/labelflow/internal/store"
)

type RouterConfig struct {
	ProfilesPath string
	PrintersPath string
}

func NewRouter(e *engine.Engine, profiles *store.ProfileStore, printerStore *store.PrinterStore, sender *printers.TCPSender, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	labels := handlers.NewLabelHandler(e)
	sessions := handlers.NewSessionHandler(e)
	admin := handlers.NewAdminHandler(profiles, printerStore, sender, cfg.ProfilesPath, cfg.PrintersPath)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/descriptor/:profile", labels.NewDescriptor)
		apiGroup.POST("/edit", labels.EditField)
		apiGroup.POST("/print", labels.Print)
		apiGroup.POST("/options", labels.Options)
		apiGroup.POST("/ingest", labels.Ingest)

		apiGroup.POST("/sessions", sessions.Create)
		apiGroup.GET("/sessions/:id", sessions.Get)
		apiGroup.POST("/sessions/:id/edit", sessions.EditField)
		apiGroup.POST("/sessions/:id/print", sessions.Print)
		apiGroup.POST("/sessions/:id/clear", sessions.Clear)
		apiGroup.DELETE("/sessions/:id", sessions.Delete)

		apiGroup.GET("/profiles", admin.ListProfiles)
		apiGroup.GET("/printers", admin.ListPrinters)
		apiGroup.POST("/reload", admin.Reload)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "sessions": e.Sessions().Count()})
	})

	return r
}

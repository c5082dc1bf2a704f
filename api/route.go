package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter registers every route under /api.
func NewRouter(a *API) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(a.log))

	g := r.Group("/api")
	{
		g.POST("/downloads", a.Create)
		g.GET("/downloads", a.List)
		g.DELETE("/downloads", a.Prune)
		g.GET("/downloads/:id", a.Get)
		g.POST("/downloads/:id/pause", a.Pause)
		g.POST("/downloads/:id/resume", a.Resume)
		g.POST("/downloads/:id/cancel", a.Cancel)
		g.GET("/stats", a.Stats)
		g.PUT("/concurrency", a.SetConcurrency)
		g.PUT("/bandwidth", a.SetBandwidth)
		g.GET("/events", a.Events)
		g.GET("/ws", a.WS)
	}

	return r
}

func requestLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)),
		)
	}
}

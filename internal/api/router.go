package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celerix-dev/celerix-comms/internal/metrics"
)

// NewRouter builds the gin engine serving h under /api plus /metrics.
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if h.Logger == nil {
		h.Logger = logger
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), metrics.Middleware(), cors)

	h.Routes(r.Group("/api"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// Routes registers the archive endpoints on g.
func (h *Handler) Routes(g *gin.RouterGroup) {
	g.GET("/messages", h.ListMessages)
	g.POST("/messages", h.AppendMessage)
	g.DELETE("/messages", h.ClearMessages)
	g.GET("/messages/export", h.ExportMessages)

	g.GET("/files", h.ListFiles)
	g.POST("/files", h.UploadFiles)
	g.DELETE("/files", h.ClearFiles)
	g.GET("/files/usage", h.FileUsage)
	g.GET("/files/:id", h.GetFile)
	g.DELETE("/files/:id", h.DeleteFile)
	g.GET("/files/:id/content", h.FileContent)

	g.GET("/stats", h.GetStats)
	g.DELETE("/stats", h.ResetStats)
	g.GET("/stats/export", h.ExportStats)
	g.POST("/stats/session", h.StartSession)
	g.POST("/stats/worktime", h.AddWorkTime)

	g.GET("/events", h.Events)
}

func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// RequestLogger logs one line per request with slog.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With(slog.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

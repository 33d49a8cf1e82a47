// Package httpserver exposes the minimal ops/health HTTP surface (§12
// supplemented feature): no CRUD resource API, since the engine is
// driven by the scheduler and the CLI, not by a frontend — only the
// observability endpoints an operator or uptime check would hit. Wiring
// (gin, request-id/logger middleware, JSON envelope) is adapted from
// internal/platform/http.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/internal/platform/logger"
	"github.com/kazimov/jobtrail/ports"
	"go.uber.org/zap"
)

// RequestIDMiddleware tags each request with a correlation id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggerMiddleware logs each request's method, path, status and duration.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		duration := time.Since(start).Milliseconds()
		status := c.Writer.Status()
		requestID, _ := c.Get("request_id")
		fields := []zap.Field{
			zap.String("request_id", requestID.(string)),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", duration),
		}
		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

// New builds the ops HTTP surface. sentryEnabled false disables the sentrygin
// middleware (it would otherwise be a silent no-op client).
func New(store ports.Store, log *logger.Logger, sentryEnabled bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(log))
	if sentryEnabled {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.GET("/status", func(c *gin.Context) {
		fc, err := store.FunnelCounts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, fc)
	})

	r.GET("/alerts", func(c *gin.Context) {
		alerts, err := store.ListUnacknowledgedAlerts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	})

	return r
}

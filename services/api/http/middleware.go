package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/02loveslollipop/sensorthings-metadata/internal/logger"
)

// RequestIDHeader carries the request id in and out of the API.
const RequestIDHeader = "X-Request-ID"

// requestLogger logs every request with a request id and attaches the
// request-scoped logger to the request context.
func requestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		log := base.With(
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"client_ip", c.ClientIP(),
		)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		c.Next()

		// health checks are not logged
		if path == "/healthz" {
			return
		}
		latency := time.Since(start)
		status := c.Writer.Status()
		log = log.With("status", status, "latency_ms", latency.Milliseconds())

		switch {
		case status >= 500:
			log.Error("request completed with server error", "errors", c.Errors.String())
		case status >= 400:
			log.Warn("request completed with client error")
		default:
			log.Info("request completed")
		}
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// health checks stay reachable without credentials
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			abortWithError(c, NewAPIError(ErrorCodeUnauthorized, "missing bearer token", nil, http.StatusUnauthorized))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			abortWithError(c, NewAPIError(ErrorCodeUnauthorized, "invalid bearer token", nil, http.StatusUnauthorized))
			return
		}
		c.Next()
	}
}

// apiVersionMiddleware tags versioned responses.
func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}

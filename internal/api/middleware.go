package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/mmcdole/b4/internal/pipeline"
	"github.com/mmcdole/b4/internal/ratelimit"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// requestID tags each request with a ULID, keeping one the caller sent
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs one line per request once it has been served
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDKey),
			"client", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

// rateLimit rejects clients that exceed their token bucket. A nil limiter
// lets everything through.
func rateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP(), time.Now()) {
			abortWithError(c, http.StatusTooManyRequests, "too_many_requests", "Rate limit exceeded.")
			return
		}
		c.Next()
	}
}

// recovery turns a panic outside an operation into the same bad_gateway
// answer a failed operation gets
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("handler panicked",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDKey),
			"panic", fmt.Sprint(recovered),
		)
		render(c, pipeline.GatewayFailed(pipeline.CodePanic))
		c.Abort()
	})
}

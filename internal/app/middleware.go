package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/seawire/vela/internal/core/constants"
	"github.com/seawire/vela/internal/router"
	"github.com/seawire/vela/internal/util"
	"github.com/seawire/vela/pkg/format"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LoggerKey    contextKey = "logger"
)

// responseWriter wraps http.ResponseWriter to capture response size and status
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += int64(size)
	return size, err
}

func (rw *responseWriter) WriteHeader(s int) {
	rw.status = s
	rw.ResponseWriter.WriteHeader(s)
}

// Flush keeps event-stream responses moving; without it chunks pool in the
// server buffer and the client sees choppy output.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// GetLogger retrieves the request-scoped logger from context
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// loggingMiddleware tags every request with an ID, propagates a scoped logger
// through context and logs start/completion with sizes and timing.
func (a *Application) loggingMiddleware() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(constants.HeaderXRequestID)
			if requestID == "" {
				requestID = util.GenerateRequestID()
			}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			baseLogger := a.logger.GetUnderlying().With("request_id", requestID)
			ctx = context.WithValue(ctx, LoggerKey, baseLogger)

			w.Header().Set("X-Vela-Request-ID", requestID)
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			baseLogger.Debug("Request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"request_bytes", requestSize)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)
			baseLogger.Info("Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", format.Duration(duration),
				"request_bytes", requestSize,
				"response_bytes", wrapped.size)
		})
	}
}

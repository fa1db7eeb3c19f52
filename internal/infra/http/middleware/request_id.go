package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"zapdesk/platform/logger"
)

type requestContextKey string

const (
	requestIDContextKey requestContextKey = "request_id"
	loggerContextKey    requestContextKey = "logger"
)

// RequestID tags every request with an id, honoring one supplied by the
// caller, and puts a request-scoped logger on the context.
func RequestID(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)

			requestLogger := log.WithField("request_id", requestID)
			ctx = context.WithValue(ctx, loggerContextKey, requestLogger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetLoggerFromContext(r *http.Request) *logger.Logger {
	if log, ok := r.Context().Value(loggerContextKey).(*logger.Logger); ok {
		return log
	}
	return logger.New()
}

func GetRequestIDFromContext(r *http.Request) string {
	if requestID, ok := r.Context().Value(requestIDContextKey).(string); ok {
		return requestID
	}
	return ""
}

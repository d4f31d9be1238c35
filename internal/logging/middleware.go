package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var sensitiveParams = []string{"token", "password", "secret", "refresh", "access"}

// RequestLogger logs one line per request with its outcome. It replaces
// chi's middleware.Logger and expects middleware.RequestID to run first.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	log := WithComponent(logger, "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", r.RemoteAddr),
			}

			reqLog := WithRequestID(log, middleware.GetReqID(r.Context()))
			switch {
			case status >= http.StatusInternalServerError:
				reqLog.Error("request completed", fields...)
			case status >= http.StatusBadRequest:
				reqLog.Warn("request completed", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}

// sanitizeQuery redacts query parameters that may carry credentials.
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	parts := strings.Split(query, "&")
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		key, _, found := strings.Cut(part, "=")
		if !found {
			sanitized = append(sanitized, part)
			continue
		}
		lowerKey := strings.ToLower(key)
		redact := false
		for _, s := range sensitiveParams {
			if strings.Contains(lowerKey, s) {
				redact = true
				break
			}
		}
		if redact {
			sanitized = append(sanitized, key+"=[REDACTED]")
		} else {
			sanitized = append(sanitized, part)
		}
	}
	return strings.Join(sanitized, "&")
}

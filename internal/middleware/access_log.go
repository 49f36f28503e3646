package middleware

import (
	"net/http"
	"strconv"
	"time"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// AccessLog loguea cada request y cuenta http_requests_total.
// Va después de AuthContext para poder loguear el user id.
func AccessLog(log logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if m != nil {
				m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			}

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  chimw.GetReqID(r.Context()),
			}
			if c, ok := GetClaims(r.Context()); ok {
				fields["user_id"] = c.UserID
			}

			if status >= 500 {
				log.Error("http request", fields)
				return
			}
			log.Info("http request", fields)
		})
	}
}

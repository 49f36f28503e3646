package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"medication-reminder/internal/platform/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Recover corta el panic, lo loguea con el request id y responde 500.
func Recover(log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// http.ErrAbortHandler se re-lanza, igual que chi Recoverer
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic recovered", map[string]any{
					"error":      fmt.Sprint(rec),
					"request_id": chimw.GetReqID(r.Context()),
					"path":       r.URL.Path,
					"stack":      string(debug.Stack()),
				})
				http.Error(w, "internal error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

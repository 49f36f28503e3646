package middleware

import (
	"context"
	"net/http"
	"strings"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/ports/auth"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// DebugUserHeader solo se acepta sin verifier (modo dev).
const DebugUserHeader = "X-Debug-User-ID"

// Motivos de auth_failures_total.
const (
	authReasonMalformedHeader = "malformed_header"
	authReasonInvalidToken    = "invalid_token"
	authReasonEmptySubject    = "empty_subject"
)

// AuthContext resuelve quién es el usuario del request y deja los claims en el contexto.
// - verifier != nil: Authorization: Bearer <token> pasa por Verify(); el header de debug se ignora.
// - verifier == nil: modo dev, X-Debug-User-ID define el usuario.
// Credenciales rechazadas se loguean y cuentan, pero el request sigue sin claims:
// RequireUser (en cada handler) decide el 401.
func AuthContext(verifier auth.AuthVerifier, log logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	reject := func(r *http.Request, reason string, err error) {
		if m != nil {
			m.AuthFailures.WithLabelValues(reason).Inc()
		}
		fields := map[string]any{
			"reason":     reason,
			"path":       r.URL.Path,
			"request_id": chimw.GetReqID(r.Context()),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.Warn("credentials rejected", fields)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				uid := strings.TrimSpace(r.Header.Get(DebugUserHeader))
				if uid == "" {
					next.ServeHTTP(w, r)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), auth.Claims{UserID: uid})))
				return
			}

			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := bearerToken(header)
			if token == "" {
				reject(r, authReasonMalformedHeader, nil)
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				reject(r, authReasonInvalidToken, err)
				next.ServeHTTP(w, r)
				return
			}
			claims.UserID = strings.TrimSpace(claims.UserID)
			if claims.UserID == "" {
				reject(r, authReasonEmptySubject, nil)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims guarda claims en ctx. Claims sin UserID no se guardan.
func WithClaims(ctx context.Context, c auth.Claims) context.Context {
	if strings.TrimSpace(c.UserID) == "" {
		return ctx
	}
	return context.WithValue(ctx, claimsKey, c)
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.Claims)
	if !ok || c.UserID == "" {
		return auth.Claims{}, false
	}
	return c, true
}

// RequireUser devuelve los claims del request o responde 401.
func RequireUser(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	c, ok := GetClaims(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	return c, true
}

func bearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitOptions: RPS <= 0 desactiva el límite.
type RateLimitOptions struct {
	RPS   float64
	Burst int
	// Limiters sin uso por más de IdleTTL se descartan. Default 10m.
	IdleTTL time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// PerUserRateLimit limita por usuario autenticado (o por IP si no hay claims).
// Excedido => 429 con Retry-After.
func PerUserRateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	var (
		mu        sync.Mutex
		limiters  = map[string]*limiterEntry{}
		lastSweep = time.Now()
	)

	get := func(key string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if now.Sub(lastSweep) > ttl {
			for k, e := range limiters {
				if now.Sub(e.lastSeen) > ttl {
					delete(limiters, k)
				}
			}
			lastSweep = now
		}

		e, ok := limiters[key]
		if !ok {
			e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(opts.RPS), burst)}
			limiters[key] = e
		}
		e.lastSeen = now
		return e.lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + r.RemoteAddr
			if c, ok := GetClaims(r.Context()); ok && c.UserID != "" {
				key = "user:" + c.UserID
			}

			now := time.Now()
			res := get(key, now).ReserveN(now, 1)
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				secs := int(delay/time.Second) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

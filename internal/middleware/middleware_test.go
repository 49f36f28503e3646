package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/ports/auth"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	switch token {
	case "good":
		return auth.Claims{UserID: "u1"}, nil
	case "anonymous":
		return auth.Claims{UserID: "  "}, nil
	}
	return auth.Claims{}, errors.New("bad token")
}

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := RequireUser(w, r)
		if !ok {
			return
		}
		_, _ = w.Write([]byte(c.UserID))
	})
}

func TestAuthContext_DevHeader(t *testing.T) {
	h := AuthContext(nil, nil, nil)(whoami())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-User-ID", "dev-user")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "dev-user" {
		t.Fatalf("expected dev-user, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestAuthContext_Verifier(t *testing.T) {
	h := AuthContext(stubVerifier{}, nil, nil)(whoami())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Body.String() != "u1" {
		t.Fatalf("expected u1, got %q", rr.Body.String())
	}

	// con verifier, el header de debug se ignora
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-User-ID", "dev-user")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthContext_RejectedCredentialsAreLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.New()
	h := AuthContext(stubVerifier{}, logger.NewZap(zap.New(core)), m)(whoami())

	cases := []struct {
		header string
		reason string
	}{
		{"Bearer bad", authReasonInvalidToken},
		{"Basic dXNlcjpwYXNz", authReasonMalformedHeader},
		{"Bearer anonymous", authReasonEmptySubject},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tc.header)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.header, rr.Code)
		}
		if got := testutil.ToFloat64(m.AuthFailures.WithLabelValues(tc.reason)); got != 1 {
			t.Fatalf("%s: expected 1 failure with reason %s, got %v", tc.header, tc.reason, got)
		}
	}

	entries := logs.FilterMessage("credentials rejected").All()
	if len(entries) != len(cases) {
		t.Fatalf("expected %d warnings, got %d", len(cases), len(entries))
	}
	if entries[0].ContextMap()["error"] != "bad token" {
		t.Fatalf("expected verifier error in log, got %v", entries[0].ContextMap())
	}

	// sin header no es un rechazo
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized || logs.Len() != len(cases) {
		t.Fatalf("anonymous request should not be logged as rejected")
	}
}

func TestWithClaims_IgnoresEmptyUser(t *testing.T) {
	ctx := WithClaims(context.Background(), auth.Claims{UserID: " "})
	if _, ok := GetClaims(ctx); ok {
		t.Fatalf("claims without user id should not be stored")
	}
	ctx = WithClaims(context.Background(), auth.Claims{UserID: "u2"})
	if c, ok := GetClaims(ctx); !ok || c.UserID != "u2" {
		t.Fatalf("expected u2, got %+v %v", c, ok)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestPerUserRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := AuthContext(nil, nil, nil)(PerUserRateLimit(RateLimitOptions{RPS: 0.001, Burst: 2})(ok))

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Debug-User-ID", user)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Fatalf("429 without Retry-After")
		}
		return rr.Code
	}

	if c := do("a"); c != http.StatusNoContent {
		t.Fatalf("1st: %d", c)
	}
	if c := do("a"); c != http.StatusNoContent {
		t.Fatalf("2nd: %d", c)
	}
	if c := do("a"); c != http.StatusTooManyRequests {
		t.Fatalf("3rd: expected 429, got %d", c)
	}
	// otro usuario tiene su propio bucket
	if c := do("b"); c != http.StatusNoContent {
		t.Fatalf("other user: %d", c)
	}
}

func TestPerUserRateLimit_Disabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := PerUserRateLimit(RateLimitOptions{})(ok)
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, rr.Code)
		}
	}
}

func TestAccessLog_CountsRequests(t *testing.T) {
	m := metrics.New()
	h := AccessLog(nil, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "201")); got != 1 {
		t.Fatalf("expected 1 request counted, got %v", got)
	}
}

package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSON_SendsHeadersAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/echo", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer ts.Close()

	c, err := NewWithOptions(Options{BaseURL: ts.URL + "/", Headers: map[string]string{"X-Api-Key": "secret"}})
	require.NoError(t, err)

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, c.DoJSON(context.Background(), http.MethodPost, "v1/echo", nil, map[string]string{"msg": "hi"}, &out))
	assert.Equal(t, "hi", out.Echo)
}

func TestDoJSON_Non2xxReturnsHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c, err := NewWithOptions(Options{BaseURL: ts.URL})
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "nope", httpErr.Body)
}

func TestDoJSON_RelativePathWithoutBaseURL(t *testing.T) {
	c := New(time.Second)
	assert.Error(t, c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil))
}

func TestNewWithOptions_InvalidBaseURL(t *testing.T) {
	_, err := NewWithOptions(Options{BaseURL: "::not a url"})
	assert.Error(t, err)
}

func TestBreaker_OpensOnServerErrorsButNotOnClientErrors(t *testing.T) {
	var status atomic.Int32
	var hits atomic.Int32
	status.Store(http.StatusBadRequest)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer ts.Close()

	c, err := NewWithOptions(Options{
		BaseURL: ts.URL,
		Breaker: BreakerOptions{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute},
	})
	require.NoError(t, err)
	ctx := context.Background()

	// 4xx no cuenta como falla del upstream
	for i := 0; i < 3; i++ {
		_ = c.DoJSON(ctx, http.MethodGet, "/x", nil, nil, nil)
	}
	assert.Equal(t, "closed", c.BreakerState())

	status.Store(http.StatusBadGateway)
	_ = c.DoJSON(ctx, http.MethodGet, "/x", nil, nil, nil)
	_ = c.DoJSON(ctx, http.MethodGet, "/x", nil, nil, nil)
	assert.Equal(t, "open", c.BreakerState())

	before := hits.Load()
	err = c.DoJSON(ctx, http.MethodGet, "/x", nil, nil, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, hits.Load(), "open circuit must not reach upstream")
}

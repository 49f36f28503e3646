package pushgateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/platform/httpclient"
)

var (
	ErrPushNotConfigured = errors.New("push gateway client not configured")
	ErrPushUnauthorized  = errors.New("push gateway unauthorized")
	ErrPushUpstream      = errors.New("push gateway upstream error")
)

const sendPath = "/v1/notifications"

type Config struct {
	BaseURL string
	APIKey  string

	APIKeyHeader string
	Timeout      time.Duration

	Transport http.RoundTripper
}

type Client struct {
	http       *httpclient.Client
	configured bool
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" || apiKey == "" {
		return &Client{}, nil
	}

	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc, err := httpclient.NewWithOptions(httpclient.Options{
		BaseURL:   baseURL,
		Timeout:   timeout,
		Headers:   map[string]string{h: apiKey},
		Breaker:   httpclient.BreakerOptions{Name: "push-gateway"},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("push gateway: %w", err)
	}
	return &Client{http: hc, configured: true}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.configured && c.http != nil
}

// Notification es el payload que acepta el gateway.
type Notification struct {
	UserID string `json:"user_id"`
	// Clave de idempotencia: el gateway descarta duplicados con la misma clave.
	DedupKey string            `json:"dedup_key"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

func (c *Client) Send(ctx context.Context, n Notification) error {
	if !c.IsConfigured() {
		return ErrPushNotConfigured
	}
	if strings.TrimSpace(n.UserID) == "" {
		return errors.New("user_id required")
	}

	err := c.http.DoJSON(ctx, http.MethodPost, sendPath, map[string]string{"Idempotency-Key": n.DedupKey}, n, nil)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) &&
			(httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return ErrPushUnauthorized
		}
		return fmt.Errorf("%w: %v", ErrPushUpstream, err)
	}
	return nil
}

package iam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/platform/httpclient"
	"medication-reminder/internal/ports/auth"
)

var (
	ErrIAMNotConfigured = errors.New("iam client not configured")
	ErrIAMUnauthorized  = errors.New("iam unauthorized")
	ErrIAMUpstream      = errors.New("iam upstream error")
)

const verifyPath = "/v1/tokens/verify"

// Config del cliente IAM. BaseURL y APIKey vienen de config (auth.iam.*).
type Config struct {
	BaseURL string
	APIKey  string

	// Si está vacío se usa "X-Api-Key".
	APIKeyHeader string

	Timeout time.Duration

	// Transport opcional (tests).
	Transport http.RoundTripper
}

type Client struct {
	http       *httpclient.Client
	configured bool
}

// NewClient arma el cliente con circuit breaker: si IAM se cae, los requests
// fallan rápido en vez de colgar cada handler hasta el timeout.
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
		Breaker:   httpclient.BreakerOptions{Name: "iam"},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("iam: %w", err)
	}
	return &Client{http: hc, configured: true}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.configured && c.http != nil
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
}

// VerifyToken llama a IAM para verificar un token y traer claims.
func (c *Client) VerifyToken(ctx context.Context, token string) (auth.Claims, error) {
	if !c.IsConfigured() {
		return auth.Claims{}, ErrIAMNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrIAMUnauthorized
	}

	var out verifyResponse
	err := c.http.DoJSON(ctx, http.MethodPost, verifyPath,
		map[string]string{"Authorization": "Bearer " + token},
		verifyRequest{Token: token},
		&out,
	)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) &&
			(httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return auth.Claims{}, ErrIAMUnauthorized
		}
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrIAMUpstream, err)
	}

	out.UserID = strings.TrimSpace(out.UserID)
	if out.UserID == "" {
		return auth.Claims{}, fmt.Errorf("%w: response missing user_id", ErrIAMUpstream)
	}

	return auth.Claims{
		UserID:   out.UserID,
		Email:    strings.TrimSpace(out.Email),
		TenantID: strings.TrimSpace(out.TenantID),
	}, nil
}

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	DefaultTimeout = 10 * time.Second
)

var (
	ErrNilClient   = errors.New("httpclient: nil client")
	ErrCircuitOpen = errors.New("httpclient: circuit open")
)

// Options para construir un Client de adapter (IAM, push gateway).
type Options struct {
	BaseURL string
	Timeout time.Duration

	// Headers que se mandan en todos los requests (p.ej. API key).
	Headers map[string]string

	// Si Breaker.Name != "", las llamadas pasan por un circuit breaker.
	Breaker BreakerOptions

	// Transport opcional (tests).
	Transport http.RoundTripper
}

type BreakerOptions struct {
	Name string
	// Fallas consecutivas para abrir. Default 5.
	ConsecutiveFailures uint32
	// Tiempo abierto antes de pasar a half-open. Default 30s.
	OpenTimeout time.Duration
}

// Client envuelve *http.Client con helpers comunes para adapters.
type Client struct {
	HTTP    *http.Client
	BaseURL string // opcional; si se define, DoJSON puede recibir paths relativos

	headers map[string]string
	breaker *gobreaker.CircuitBreaker
}

// New crea un Client con timeout razonable.
func New(timeout time.Duration) *Client {
	c, _ := NewWithOptions(Options{Timeout: timeout})
	return c
}

// NewWithOptions valida BaseURL y arma breaker si se pidió.
func NewWithOptions(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := opts.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}

	c := &Client{
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		headers: map[string]string{},
	}

	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		if _, err := url.ParseRequestURI(base); err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		c.BaseURL = strings.TrimRight(base, "/")
	}

	for k, v := range opts.Headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		c.headers[k] = v
	}

	if name := strings.TrimSpace(opts.Breaker.Name); name != "" {
		c.breaker = newBreaker(name, opts.Breaker)
	}

	return c, nil
}

func newBreaker(name string, opts BreakerOptions) *gobreaker.CircuitBreaker {
	failures := opts.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Un 4xx es culpa del request, no del upstream: no abre el circuito.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500
			}
			return false
		},
	})
}

// BreakerState devuelve "closed", "open", "half-open" o "" si no hay breaker.
func (c *Client) BreakerState() string {
	if c == nil || c.breaker == nil {
		return ""
	}
	return c.breaker.State().String()
}

// HTTPError representa una respuesta no-2xx.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("http error: status=%d body=%s", e.StatusCode, e.Body)
}

// DoJSON hace un request JSON.
// - method: GET/POST/etc
// - pathOrURL: puede ser URL absoluta o path relativo si BaseURL está seteado
// - headers: headers extra (opcional)
// - in: body a enviar (opcional). Si nil => no body.
// - out: donde decodificar JSON (opcional). Si nil => ignora body.
// Retorna *HTTPError si status no es 2xx y ErrCircuitOpen si el breaker corta.
func (c *Client) DoJSON(
	ctx context.Context,
	method string,
	pathOrURL string,
	headers map[string]string,
	in any,
	out any,
) error {
	if c == nil || c.HTTP == nil {
		return ErrNilClient
	}
	if c.breaker == nil {
		return c.doJSON(ctx, method, pathOrURL, headers, in, out)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doJSON(ctx, method, pathOrURL, headers, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, c.breaker.Name())
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, pathOrURL string, headers map[string]string, in, out any) error {
	fullURL, err := c.resolveURL(pathOrURL)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpclient: marshal json: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("httpclient: new request: %w", err)
	}

	// Defaults
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	// Extra headers
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	// traceparent hacia el upstream
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: do request: %w", err)
	}
	defer resp.Body.Close()

	// Leer body (limitado) para errores / decode
	raw, _ := readAtMost(resp.Body, 1<<20) // 1MB max

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("httpclient: unmarshal json: %w", err)
	}
	return nil
}

func (c *Client) resolveURL(pathOrURL string) (string, error) {
	pathOrURL = strings.TrimSpace(pathOrURL)
	if pathOrURL == "" {
		return "", errors.New("httpclient: empty url")
	}

	// Si ya es URL absoluta, úsala tal cual.
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL, nil
	}

	// Si no es absoluta, requiere BaseURL.
	if strings.TrimSpace(c.BaseURL) == "" {
		return "", errors.New("httpclient: relative path requires BaseURL")
	}

	if !strings.HasPrefix(pathOrURL, "/") {
		pathOrURL = "/" + pathOrURL
	}
	return c.BaseURL + pathOrURL, nil
}

func readAtMost(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = 1 << 20
	}
	lr := io.LimitReader(r, max)
	return io.ReadAll(lr)
}

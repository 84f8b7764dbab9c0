package asaas

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

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	headerAccessToken = "access_token"
	maxErrorBody      = 64 << 10
)

var (
	errAPIKeyRequired  = errors.New("asaas api key is required")
	errBaseURLRequired = errors.New("asaas base url is required")
	errLoggerRequired  = errors.New("asaas logger is required")
)

// Client talks to the Asaas REST API with centralized auth, logging and error
// mapping.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	userAgent string
	http      *http.Client
	logger    *logger.Logger
	metrics   *metrics.ProviderMetrics
}

// Option customises the client at construction.
type Option func(*Client)

// WithHTTPClient overrides the transport, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMetrics records call counts and latency per operation.
func WithMetrics(m *metrics.ProviderMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient initializes the Asaas wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.AsaasConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	rawBase := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawBase == "" {
		return nil, errBaseURLRequired
	}
	base, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("parse asaas base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL:   base,
		apiKey:    apiKey,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
		logger:    logg,
	}
	for _, opt := range opts {
		opt(c)
	}

	logg.Info(ctx, "asaas client initialized")
	return c, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode asaas %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build asaas %s request: %w", op, err)
	}
	req.Header.Set(headerAccessToken, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.log(ctx, "request", op, map[string]any{"method": method, "path": path})

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.Observe(op, 0, time.Since(started))
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("asaas %s failed", op))
	}
	defer resp.Body.Close()
	c.metrics.Observe(op, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(op, resp)
		c.log(ctx, "error", op, map[string]any{"status": resp.StatusCode, "error": apiErr.Error()})
		return apiErr
	}

	c.log(ctx, "response", op, map[string]any{"status": resp.StatusCode})
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode asaas %s response", op))
	}
	return nil
}

func decodeAPIError(op string, resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Operation: op}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return apiErr
	}
	var payload struct {
		Errors []ErrorItem `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Errors = payload.Errors
	}
	return apiErr
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"provider":  "asaas",
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Warn(ctx, fmt.Sprintf("asaas %s failed", op))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("asaas %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "ccv", "token", "cpf", "cnpj", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

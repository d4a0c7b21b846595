// Package epo is a client for the European Patent Office Open Patent Services
// (OPS) REST API and the patent toolkit exposed to the language model.
package epo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/sozercan/patentgpt/internal/config"
)

const maxResponseBytes = 4 << 20

// HTTPClient lets tests substitute the transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL       string
	httpClient    HTTPClient
	limiter       *rate.Limiter
	retryAttempts int
	retryDelay    time.Duration
	maxBodyBytes  int64
}

// NewClient builds an OPS client that authenticates with the OAuth2 client
// credentials flow. The token is fetched lazily and refreshed before expiry.
func NewClient(cfg config.EPOConfig) (*Client, error) {
	slog.Info("Creating EPO OPS client", "endpoint", cfg.BaseURL)
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("EPO client id and secret cannot be empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("EPO base URL cannot be empty")
	}

	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, bearerSource{src: oauthCfg.TokenSource(ctx)})
	httpClient.Timeout = cfg.Timeout

	return newClient(cfg, httpClient), nil
}

// bearerSource normalizes the "BearerToken" type OPS reports so requests carry
// a plain "Bearer" authorization header.
type bearerSource struct {
	src oauth2.TokenSource
}

func (b bearerSource) Token() (*oauth2.Token, error) {
	tok, err := b.src.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch OPS access token: %w", err)
	}
	if tok.TokenType == "Bearer" {
		return tok, nil
	}
	normalized := *tok
	normalized.TokenType = "Bearer"
	return &normalized, nil
}

func newClient(cfg config.EPOConfig, httpClient HTTPClient) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, burst),
		retryAttempts: attempts,
		retryDelay:    500 * time.Millisecond,
		maxBodyBytes:  maxResponseBytes,
	}
}

// get performs a GET against an OPS service path and returns the JSON body.
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for i := 0; i < c.retryAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for OPS rate limiter: %w", err)
		}

		slog.Debug("Calling OPS", "path", path, "attempt", i+1)
		body, err := c.do(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return nil, err
		}
		if errors.Is(err, ErrResponseTooLarge) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("OPS request failed", "attempt", i+1, "path", path, "error", err)
	}
	return nil, fmt.Errorf("OPS request failed after %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build OPS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OPS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read OPS response: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: status %d, limit %d bytes", ErrResponseTooLarge, resp.StatusCode, c.maxBodyBytes)
	}

	if control := resp.Header.Get("X-Throttling-Control"); control != "" {
		slog.Debug("OPS throttling status", "control", control)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp, body)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("OPS returned a non-JSON body (content-type %q)", resp.Header.Get("Content-Type"))
	}
	return body, nil
}

// Package client provides the core DTE Insight HTTP client with request
// pacing, authentication, and bounded retry on upstream overload.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dte_requests_total",
		Help: "Total DTE API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dte_request_duration_seconds",
		Help:    "DTE API request duration in seconds by endpoint",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dte_retries_total",
		Help: "Total number of 502 retry attempts by endpoint",
	}, []string{"endpoint"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dte_retry_exhausted_total",
		Help: "Total number of times 502 retry attempts were exhausted by endpoint",
	}, []string{"endpoint"})
)

// DefaultBaseURL is the production DTE Insight API base path.
const DefaultBaseURL = "https://dtei-coreapi.pwly.io/v2"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API base path, without a trailing slash.
	BaseURL string

	// PacingDelay is slept before every outbound request, unconditionally.
	// The upstream service degrades under bursty traffic.
	PacingDelay time.Duration

	// RetryDelayStep is added to the pacing delay for each 502 retry.
	RetryDelayStep time.Duration

	// MaxRetries is the maximum number of 502 retries per request
	// (total attempts = MaxRetries + 1).
	MaxRetries int

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		PacingDelay:    2 * time.Second,
		RetryDelayStep: 60 * time.Second,
		MaxRetries:     10,
		Timeout:        30 * time.Second,
	}
}

// Request describes a single API call.
type Request struct {
	Method string
	Path   string

	// Auth marks the request as requiring the cached authorization token.
	Auth bool

	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any
}

// Response is a decoded API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the DTE Insight API client. It holds the authorization token
// once a session has logged in; the token is set exactly once and never
// rotated.
type Client struct {
	httpClient *http.Client
	config     Config
	token      string
	sleep      func(ctx context.Context, d time.Duration) error
	logger     zerolog.Logger
}

// New creates a new API client. Zero config fields fall back to defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PacingDelay == 0 {
		cfg.PacingDelay = def.PacingDelay
	}
	if cfg.RetryDelayStep == 0 {
		cfg.RetryDelayStep = def.RetryDelayStep
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	logger := log.With().Str("component", "dte-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		sleep:  sleepContext,
		logger: logger,
	}
}

// SetToken caches the authorization token for authenticated requests.
// Called once by session login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// HasToken reports whether an authorization token has been cached.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Do performs an API request: pacing delay, auth header injection, and
// bounded retry with a growing delay when the upstream answers 502.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := req.Path

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if req.Auth && c.token == "" {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrAuthRequired)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	reqURL := c.config.BaseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	delay := c.config.PacingDelay

	for attempt := 0; ; attempt++ {
		c.logger.Debug().
			Str("method", req.Method).
			Str("endpoint", endpoint).
			Bool("auth", req.Auth).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Sending API request")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if req.Body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if req.Auth {
			httpReq.Header.Set("Authorization", c.token)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		apiRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusBadGateway {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: respBody}

			if attempt >= c.config.MaxRetries {
				apiRetryExhaustedTotal.WithLabelValues(endpoint).Inc()
				c.logger.Warn().
					Str("endpoint", endpoint).
					Int("attempts", attempt+1).
					Msg("502 retry attempts exhausted")
				return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, apiErr)
			}

			apiRetriesTotal.WithLabelValues(endpoint).Inc()
			delay += c.config.RetryDelayStep
			c.logger.Warn().
				Str("endpoint", endpoint).
				Dur("next_delay", delay).
				Msg("API returned a 502, increasing delay")
			continue
		}

		if readErr != nil {
			return nil, fmt.Errorf("read response body: %w", readErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
		}

		if attempt > 0 {
			c.logger.Info().
				Str("endpoint", endpoint).
				Int("attempts", attempt+1).
				Msg("Request succeeded after retry")
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}, nil
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, auth bool) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Auth: auth})
}

// PostJSON performs an unauthenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleep sets a custom sleep function (for testing).
func (c *Client) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}

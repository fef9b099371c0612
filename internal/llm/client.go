// Package llm wraps the external LLM invocation service.
//
// The service carries two status codes per call: the outer HTTP transport
// status and an inner application status embedded in the response body.
// A 200 transport response can still carry a non-200 inner status when a
// content firewall filtered the prompt, so callers must check both. The
// client surfaces transport failures as errors and returns the inner
// status untouched for the caller to interpret.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metrics"
	"github.com/fyrsmithlabs/specforge/internal/retry"
)

const (
	defaultTimeout   = 300 * time.Second
	defaultRateLimit = 2.0 // requests per second
	defaultBurst     = 4
)

// Request is the payload sent to the invocation service.
type Request struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Codebase     string `json:"codebase"`
}

// Response is the service's reply. StatusCode is the inner application
// status; 200 means the model actually ran, anything else typically means
// content-policy filtering.
type Response struct {
	StatusCode int    `json:"status_code"`
	Output     string `json:"output"`
}

// OK reports whether the inner application status is success.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Invoker is the interface consumed by the extraction worker and the
// orchestrator's transformation calls.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Config configures the client.
type Config struct {
	// BaseURL is the invocation endpoint, e.g. "http://llm:8082/LLM-API".
	BaseURL string

	// Timeout bounds a single call. Detection calls use tens of seconds;
	// large-payload transformation calls need several hundred.
	Timeout time.Duration

	// RateLimit and Burst throttle outbound calls.
	RateLimit float64
	Burst     int
}

// Client calls the LLM invocation service with rate limiting.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger
}

// NewClient creates a client for the invocation service.
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	if log == nil {
		log = logging.NewNop()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		log:        log.Named("llm"),
	}, nil
}

// Invoke performs one call. Transport failures (connection errors and
// non-200 outer status) return an error; the error carries the status
// code via *retry.StatusError so retry policies can classify it. A nil
// error guarantees a non-nil Response, whose inner StatusCode the caller
// must still check.
func (c *Client) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	timer := prometheus.NewTimer(metrics.LLMCallDuration)
	defer timer.ObserveDuration()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{
			StatusCode: resp.StatusCode,
			Service:    "llm",
			Body:       truncate(string(body), 200),
		}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response body: %w", err)
	}
	return &out, nil
}

// InvokeWithRetry wraps Invoke in the given retry policy. Used by
// transformation calls where transient failures should not lose the run;
// per-chunk detection calls go through Invoke directly and treat failure
// as a skipped chunk.
func (c *Client) InvokeWithRetry(ctx context.Context, policy retry.Policy, req Request) (*Response, error) {
	var out *Response
	err := policy.Do(ctx, c.log, "llm invoke", func(ctx context.Context) error {
		resp, err := c.Invoke(ctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Invoker = (*Client)(nil)

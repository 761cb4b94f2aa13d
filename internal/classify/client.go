package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/phishguard/internal/engine"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single classification call end to end.
	DefaultTimeout = 5000 * time.Millisecond

	checkPath  = "/api/check"
	healthPath = "/health"

	maxResponseBytes = 1 << 20
)

// Config holds settings for the classification client.
type Config struct {
	// BaseURL returns the current service base URL (e.g. "http://localhost:5000").
	// It is called on every request so settings changes apply immediately.
	BaseURL func() string
	Timeout time.Duration
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// Client talks to the external URL scoring service.
//
// Every failure mode (non-2xx, timeout, transport error, malformed body) is
// logged and turned into a nil verdict. Nothing is retried: the next trigger
// for the same URL is the retry.
type Client struct {
	baseURL func() string
	timeout time.Duration
	http    *http.Client
	schema  *jsonschema.Schema
	logger  *zap.Logger
}

// NewClient creates a classification client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == nil {
		return nil, fmt.Errorf("NewClient: BaseURL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	sch, err := compileResponseSchema()
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		schema: sch,
		logger: logger,
	}, nil
}

type checkRequest struct {
	URL string `json:"url"`
}

// Classify implements engine.Classifier.
func (c *Client) Classify(ctx context.Context, url string) *engine.Verdict {
	v, err := c.classify(ctx, url)
	if err != nil {
		c.logger.Warn("classification failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil
	}
	return v
}

func (c *Client) classify(ctx context.Context, url string) (*engine.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(checkRequest{URL: url})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(checkPath), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if err := validateBody(c.schema, body); err != nil {
		return nil, err
	}

	return parseVerdict(body, url), nil
}

// Health reports whether GET {base}/health answers with a 2xx status.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(healthPath), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("classifier health check failed", zap.Error(err))
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL(), "/") + path
}

// Package node implements the Contributor Node API client: salt retrieval
// from GlobalConfig, chunked multipart upload of the hashed CSV to
// LoadHashedRecords, and token download from GetPersonTokens.
//
// The HTTP layer keeps a tiny, explicit API with built-in retry/backoff:
//
//   - Transient failures (transport errors, 5xx, 429) are retried with
//     exponential backoff; everything else is final.
//   - TLS verification can be disabled or pointed at a specific CA file,
//     mirroring the REQUESTS_CA_VERIFY contract.
//   - Context cancellation is respected during requests and backoff waits.
//   - The sleep function is injectable so tests stay fast and deterministic.
package node

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Config configures the node client.
//
// Zero values are given sensible defaults:
//   - Timeout:        60s
//   - MaxRetries:     3
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	// BaseURL is the Contributor API base, e.g. the output of config.NodeURL.
	// It must end with a slash; endpoint names are appended to it.
	BaseURL string

	// APIKey is sent as the basic-auth password for user "api".
	APIKey string

	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	// Negative disables retries entirely.
	MaxRetries int

	// InitialBackoff is the base backoff for the first retry; each subsequent
	// retry doubles it up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration.
	MaxBackoff time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// CAFile, when non-empty, is a PEM CA certificate file used as the trust
	// root instead of the system pool.
	CAFile string

	// Transport is an optional custom RoundTripper. When nil, a transport is
	// constructed from the TLS settings above.
	Transport http.RoundTripper
}

// Client talks to one Contributor Node.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// sleep is injectable to make tests fast and deterministic.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("node: BaseURL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
		}
		if cfg.CAFile != "" {
			pem, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("node: read CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("node: no certificates found in %s", cfg.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
		transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		sleep:          sleepWithContext,
	}, nil
}

// do sends a request to baseURL+endpoint with retry and backoff on transient
// errors. The body is supplied as a byte slice so it can be safely re-sent on
// retry. The returned response has a non-nil Body the caller must close.
func (c *Client) do(
	ctx context.Context,
	method, endpoint string,
	query map[string]string,
	body []byte,
	headers http.Header,
) (*http.Response, error) {
	url := c.baseURL + endpoint

	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("node: build request: %w", err)
		}
		req.SetBasicAuth("api", c.apiKey)
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}
		if len(query) > 0 {
			q := req.URL.Query()
			for k, v := range query {
				q.Set(k, v)
			}
			req.URL.RawQuery = q.Encode()
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network or transport-level error. Treat as retryable.
			lastErr = fmt.Errorf("node: contributor node is unreachable: %w", err)
		} else {
			if !isRetryableStatus(resp.StatusCode) {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("node: retryable status %d from %s %s", resp.StatusCode, method, endpoint)
		}

		if attempt+1 >= attempts {
			return nil, lastErr
		}

		backoff := backoffDuration(c.initialBackoff, attempt, c.maxBackoff)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// checkStatus drains and closes the body and converts a non-2xx response
// into an error carrying the status and (truncated) response text.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	return fmt.Errorf("node: error %d: %s", resp.StatusCode, bytes.TrimSpace(buf[:n]))
}

// isRetryableStatus reports whether the status should trigger a retry.
// Intentionally conservative: 5xx and 429 are transient, the rest final.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns the exponential backoff for the given 0-based
// retry index, clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial > max {
			return max
		}
		return initial
	}
	d := initial << attempt
	if d > max {
		return max
	}
	return d
}

// sleepWithContext sleeps for d, aborting early if ctx is canceled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

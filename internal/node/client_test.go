package node

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient returns a Client against srv with retries enabled and the
// backoff sleep stubbed out, recording requested backoff durations.
func newTestClient(t *testing.T, srv *httptest.Server, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:        srv.URL + "/api/Contributor/v1/",
		APIKey:         "test-key",
		MaxRetries:     maxRetries,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

/*
TestDo_RetryThenSuccess verifies transient 5xx responses are retried with
exponential backoff until a success, and that requests authenticate as basic
auth user "api" with the configured key.
*/
func TestDo_RetryThenSuccess(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "test-key" {
			t.Errorf("basic auth = (%q, %q, %v), want (api, test-key, true)", user, pass, ok)
		}
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv, 3)
	resp, err := c.do(context.Background(), http.MethodGet, "GlobalConfig", nil, nil, nil)
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server calls = %d, want 3", got)
	}
	if len(*slept) != 2 || (*slept)[0] != 10*time.Millisecond || (*slept)[1] != 20*time.Millisecond {
		t.Fatalf("backoffs = %v, want [10ms 20ms]", *slept)
	}
}

/*
TestDo_FinalStatusNotRetried verifies a 4xx (other than 429) is returned
immediately without retries, and checkStatus converts it to an error carrying
the status and a body excerpt.
*/
func TestDo_FinalStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "DBUUID missing")
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv, 3)
	resp, err := c.do(context.Background(), http.MethodPost, "LoadHashedRecords", nil, nil, nil)
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server calls = %d, want 1 (no retry on 400)", got)
	}
	if len(*slept) != 0 {
		t.Fatalf("backoffs = %v, want none", *slept)
	}

	err = checkStatus(resp)
	if err == nil {
		t.Fatalf("checkStatus(400) = nil, want error")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "DBUUID missing") {
		t.Fatalf("checkStatus error = %q, want status and body excerpt", err)
	}
}

/*
TestDo_RetriesExhausted verifies a persistently failing endpoint surfaces the
last error after MaxRetries+1 attempts.
*/
func TestDo_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 1)
	_, err := c.do(context.Background(), http.MethodGet, "GetPersonTokens", nil, nil, nil)
	if err == nil {
		t.Fatalf("do() error = nil, want retryable status error")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("server calls = %d, want 2 (1 + 1 retry)", got)
	}
}

/*
TestDo_QueryAndHeaders verifies query parameters and extra headers reach the
server.
*/
func TestDo_QueryAndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("DBUUID"); got != "abc-123" {
			t.Errorf("DBUUID = %q, want abc-123", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		if r.URL.Path != "/api/Contributor/v1/GetPersonTokens" {
			t.Errorf("path = %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, 0)
	h := http.Header{}
	h.Set("Accept", "application/json")
	resp, err := c.do(context.Background(), http.MethodGet, "GetPersonTokens",
		map[string]string{"DBUUID": "abc-123"}, nil, h)
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	resp.Body.Close()
}

/*
TestNewClient_Validation verifies the constructor contract: BaseURL is
required and zero values pick up defaults.
*/
func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("NewClient without BaseURL succeeded, want error")
	}

	c, err := NewClient(Config{BaseURL: "https://node/api/Contributor/v1/"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.maxRetries != 3 || c.initialBackoff != 200*time.Millisecond || c.maxBackoff != 5*time.Second {
		t.Fatalf("defaults = retries=%d initial=%v max=%v", c.maxRetries, c.initialBackoff, c.maxBackoff)
	}
	if c.httpClient.Timeout != 60*time.Second {
		t.Fatalf("timeout = %v, want 60s", c.httpClient.Timeout)
	}

	if _, err := NewClient(Config{
		BaseURL: "https://node/",
		CAFile:  "/no/such/ca.pem",
	}); err == nil {
		t.Fatalf("NewClient with missing CA file succeeded, want error")
	}
}

/*
TestBackoffDuration pins the exponential schedule and its cap.
*/
func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{2, 800 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{10, 5 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := backoffDuration(200*time.Millisecond, tt.attempt, 5*time.Second); got != tt.want {
			t.Fatalf("backoffDuration(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

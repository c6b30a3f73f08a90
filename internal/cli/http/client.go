package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	TraceID    string
}

// Envelope is the common response wrapper of the code API.
type Envelope struct {
	Success   bool            `json:"success"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorType string          `json:"errorType"`
	Data      json.RawMessage `json:"data"`
	TraceID   string          `json:"trace_id"`
}

// Envelope decodes the body. ok is false when the body is not an envelope.
func (r ResponseInfo) Envelope() (Envelope, bool) {
	var env Envelope
	if len(r.Body) == 0 || json.Unmarshal(r.Body, &env) != nil {
		return Envelope{}, false
	}
	return env, true
}

// Client wraps HTTP requests for CLI.
type Client struct {
	baseURL       string
	http          *http.Client
	tokenProvider func() string
}

func New(baseURL string, timeout time.Duration, tokenProvider func() string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.http.Timeout = timeout
	}
}

// Do sends one request. Every request carries a fresh X-Trace-Id so server logs can be matched.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	info.TraceID = uuid.NewString()
	req.Header.Set("X-Trace-Id", info.TraceID)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if c.tokenProvider != nil {
		if token := c.tokenProvider(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}

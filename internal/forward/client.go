// Package forward posts extracted symptoms to an external prediction API.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultURL is used when NewClient gets no URL.
const DefaultURL = "http://localhost:10000/predict"

// DefaultTimeout bounds one forwarded request.
const DefaultTimeout = 15 * time.Second

const maxResponseBytes = 1 << 20

// ErrUpstreamStatus is returned when the prediction API answers with a non-200 status.
var ErrUpstreamStatus = errors.New("prediction API failed")

// Request is the body sent upstream.
type Request struct {
	Symptoms []string `json:"symptoms"`
}

// Client forwards symptom lists.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// NewClient returns a Client for url. Empty values fall back to the defaults.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "forward")),
	}
}

// URL returns the upstream endpoint.
func (c *Client) URL() string { return c.url }

// Forward posts symptoms and returns the upstream JSON body unchanged.
func (c *Client) Forward(ctx context.Context, symptoms []string) (json.RawMessage, error) {
	if symptoms == nil {
		symptoms = []string{}
	}
	body, err := json.Marshal(Request{Symptoms: symptoms})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call prediction API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read prediction response: %w", err)
	}

	c.logger.Debug("prediction forwarded",
		zap.Strings("symptoms", symptoms),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}
	if !json.Valid(data) {
		return nil, errors.New("prediction API returned invalid JSON")
	}
	return json.RawMessage(data), nil
}

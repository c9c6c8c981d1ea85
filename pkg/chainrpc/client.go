// Package chainrpc provides the HTTP implementation of the RemoteClient
// capability used for all endpoint-pool-driven calls.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/models"
)

// StatusError is returned when a remote call completed but the endpoint
// answered with a non-2xx status. It lets callers distinguish "endpoint does
// not serve this data" from transport-level failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// IsUnavailable reports whether the error indicates the endpoint cannot serve
// the requested data at all (not implemented or server-side failure), as
// opposed to a transient transport failure.
func IsUnavailable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotImplemented || se.StatusCode >= 500
	}
	return false
}

// Client is an HTTP JSON client for the submission network's RPC endpoints.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
}

var _ models.RemoteClient = (*Client)(nil)

// New creates a new RPC client with the given per-call timeout.
func New(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log,
	}
}

// Query performs a GET against endpointURL+path and decodes the JSON body
// into out. Non-JSON bodies (typically an HTML error page from a proxy) are
// reported as transport errors so the caller retries elsewhere.
func (c *Client) Query(ctx context.Context, endpointURL, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s%s: %v", endpointURL, path, err)
	}
	return nil
}

// Broadcast posts a signed transaction to the endpoint's broadcast route and
// parses the cosmos-style {tx_hash, code, raw_log} result. A parse failure is
// a transport error; an explicit nonzero code is returned to the caller for
// classification, not as an error.
func (c *Client) Broadcast(ctx context.Context, endpointURL string, signedTx []byte) (models.BroadcastResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL+"v1/tx/broadcast", bytes.NewReader(signedTx))
	if err != nil {
		return models.BroadcastResult{}, fmt.Errorf("failed to build broadcast request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return models.BroadcastResult{}, err
	}

	var result models.BroadcastResult
	if err := json.Unmarshal(body, &result); err != nil {
		return models.BroadcastResult{}, fmt.Errorf("failed to decode broadcast response: %v", err)
	}
	if result.TxHash == "" && result.Code == 0 {
		return models.BroadcastResult{}, fmt.Errorf("malformed broadcast response: no tx hash and no rejection code")
	}
	return result, nil
}

// do executes the request and returns the body, converting non-2xx statuses
// and HTML bodies into errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %v", req.URL.Host, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	// Read the response body regardless of status code
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		return nil, fmt.Errorf("non-JSON response from %s: %s", req.URL.Host, truncate(string(body), 128))
	}
	return body, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

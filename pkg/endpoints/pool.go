// Package endpoints tracks the health of redundant RPC endpoints and selects
// among them. The pool performs no network I/O itself; callers report the
// outcome of every call made through a selected endpoint.
package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/metrics"
)

// ErrAllEndpointsDisabled is returned by Select when no endpoint can be
// returned even after a full reset, which only happens with an empty pool.
var ErrAllEndpointsDisabled = errors.New("all endpoints disabled")

// DefaultEndpoints is the fallback list used when no endpoints are configured.
var DefaultEndpoints = []string{
	"https://rpc.forecasthq.network/",
	"https://rpc-backup.forecasthq.network/",
}

// Endpoint describes one remote RPC endpoint and its rolling health state.
type Endpoint struct {
	URL                 string
	Name                string
	ConsecutiveFailures int
	TotalSuccesses      int
	Disabled            bool
	LastError           string
	UpdatedAt           time.Time
}

// Status is a read-only snapshot of one endpoint, suitable for the health server.
type Status struct {
	URL                 string    `json:"url"`
	Name                string    `json:"name"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalSuccesses      int       `json:"total_successes"`
	Disabled            bool      `json:"disabled"`
	LastError           string    `json:"last_error,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Pool holds an ordered list of endpoints with failure tracking and
// round-robin selection. All health state is owned exclusively by the pool.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*Endpoint
	next        int
	maxFailures int
	logger      logger.Logger
}

// ParseEndpointList parses a configured endpoint list from either a
// comma-separated string or a JSON array of URLs. An empty value falls back
// to DefaultEndpoints.
func ParseEndpointList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultEndpoints, nil
	}

	if strings.HasPrefix(raw, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(raw), &urls); err != nil {
			return nil, fmt.Errorf("invalid RPC_ENDPOINTS JSON array: %v", err)
		}
		if len(urls) == 0 {
			return DefaultEndpoints, nil
		}
		return urls, nil
	}

	var urls []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		urls = append(urls, part)
	}
	if len(urls) == 0 {
		return DefaultEndpoints, nil
	}
	return urls, nil
}

// normalizeURL validates the scheme and ensures a single trailing slash.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL %q: %v", raw, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint URL %q: scheme must be https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint URL %q: missing host", raw)
	}
	return strings.TrimRight(u.String(), "/") + "/", nil
}

// NewPool builds a pool from the given URLs. Every URL must use https and is
// normalized to carry a single trailing slash. An empty list is a
// configuration error; callers should pass ParseEndpointList output.
func NewPool(urls []string, maxFailures int, log logger.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}
	if maxFailures <= 0 {
		return nil, fmt.Errorf("maxFailures must be greater than 0, got %d", maxFailures)
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	endpoints := make([]*Endpoint, 0, len(urls))
	seen := make(map[string]bool)
	for _, raw := range urls {
		normalized, err := normalizeURL(raw)
		if err != nil {
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		u, _ := url.Parse(normalized)
		endpoints = append(endpoints, &Endpoint{
			URL:       normalized,
			Name:      u.Host,
			UpdatedAt: time.Now().UTC(),
		})
	}

	return &Pool{
		endpoints:   endpoints,
		maxFailures: maxFailures,
		logger:      log,
	}, nil
}

// Select returns the next non-disabled endpoint in round-robin order starting
// after the last-returned index. When every endpoint is disabled, the pool
// resets all failure state and returns the next endpoint, so selection always
// recovers as long as at least one endpoint is configured.
func (p *Pool) Select() (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, ErrAllEndpointsDisabled
	}

	for i := 0; i < len(p.endpoints); i++ {
		ep := p.endpoints[p.next%len(p.endpoints)]
		p.next++
		if !ep.Disabled {
			return ep, nil
		}
	}

	// Pool exhausted: every endpoint is disabled. Reset and pick again rather
	// than leaving the submitter with nothing to talk to.
	p.logger.NoticeWith(logger.Pool, "All %d endpoints disabled, resetting pool", len(p.endpoints))
	p.resetAllLocked()
	metrics.PoolResets.Inc()

	ep := p.endpoints[p.next%len(p.endpoints)]
	p.next++
	return ep, nil
}

// ReportSuccess resets the endpoint's consecutive failure count. Idempotent.
func (p *Pool) ReportSuccess(ep *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep.ConsecutiveFailures = 0
	ep.TotalSuccesses++
	ep.LastError = ""
	ep.UpdatedAt = time.Now().UTC()
}

// ReportFailure increments the endpoint's consecutive failure count and
// disables it once the threshold is reached. The disable transition is
// logged exactly once, not on every subsequent failure.
func (p *Pool) ReportFailure(ep *Endpoint, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep.ConsecutiveFailures++
	ep.LastError = reason
	ep.UpdatedAt = time.Now().UTC()
	metrics.EndpointFailures.WithLabelValues(ep.Name).Inc()

	if ep.ConsecutiveFailures >= p.maxFailures && !ep.Disabled {
		ep.Disabled = true
		p.logger.NoticeWith(logger.Pool, "Endpoint %s disabled after %d consecutive failures (last: %s)",
			ep.URL, ep.ConsecutiveFailures, reason)
	}
	metrics.EndpointsDisabled.Set(float64(p.disabledCountLocked()))
}

// ResetAll clears the disabled flag and failure count on every endpoint.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetAllLocked()
}

func (p *Pool) resetAllLocked() {
	for _, ep := range p.endpoints {
		ep.Disabled = false
		ep.ConsecutiveFailures = 0
		ep.UpdatedAt = time.Now().UTC()
	}
	metrics.EndpointsDisabled.Set(0)
}

// HealthyCount returns the number of non-disabled endpoints.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints) - p.disabledCountLocked()
}

func (p *Pool) disabledCountLocked() int {
	disabled := 0
	for _, ep := range p.endpoints {
		if ep.Disabled {
			disabled++
		}
	}
	return disabled
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Snapshot returns a copy of the current endpoint health state.
func (p *Pool) Snapshot() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]Status, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		statuses = append(statuses, Status{
			URL:                 ep.URL,
			Name:                ep.Name,
			ConsecutiveFailures: ep.ConsecutiveFailures,
			TotalSuccesses:      ep.TotalSuccesses,
			Disabled:            ep.Disabled,
			LastError:           ep.LastError,
			UpdatedAt:           ep.UpdatedAt,
		})
	}
	return statuses
}

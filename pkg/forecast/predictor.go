// Package forecast is the inference-side adapter behind the Predictor
// capability: it pulls the latest observation from a configured data source
// and smooths it with an EMA. Model fitting lives elsewhere.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/forecasthq/forecast-submitter/pkg/logger"
)

// DefaultSmoothing is the EMA weight applied to the newest observation.
const DefaultSmoothing = 0.6

// observation tolerates the value living under any of the field names the
// upstream data sources use.
type observation struct {
	Value *float64 `json:"value,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Close *float64 `json:"close,omitempty"`
}

// Service fetches observations over HTTP and produces smoothed predictions.
type Service struct {
	sourceURL  string
	httpClient *http.Client
	alpha      float64
	logger     logger.Logger

	mu     sync.Mutex
	ema    float64
	primed bool
}

// New creates a predictor reading from sourceURL with the given per-call timeout.
func New(sourceURL string, timeout time.Duration, log logger.Logger) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Service{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		alpha:  DefaultSmoothing,
		logger: log,
	}
}

// Predict fetches the latest observation and folds it into the EMA.
func (s *Service) Predict(ctx context.Context) (float64, error) {
	obs, err := s.fetch(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primed {
		s.ema = obs
		s.primed = true
	} else {
		s.ema = s.alpha*obs + (1-s.alpha)*s.ema
	}
	s.logger.Debug("Prediction: observation %.6f, smoothed %.6f", obs, s.ema)
	return s.ema, nil
}

func (s *Service) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build data source request: %v", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch observation: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read observation body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code from data source: %d, body: %s", resp.StatusCode, string(body))
	}

	var obs observation
	if err := json.Unmarshal(body, &obs); err != nil {
		return 0, fmt.Errorf("failed to decode observation: %v", err)
	}
	switch {
	case obs.Value != nil:
		return *obs.Value, nil
	case obs.Price != nil:
		return *obs.Price, nil
	case obs.Close != nil:
		return *obs.Close, nil
	}
	return 0, fmt.Errorf("observation carries no value field: %s", string(body))
}

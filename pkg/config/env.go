package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/forecasthq/forecast-submitter/pkg/endpoints"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
)

const (
	// DefaultCadenceSeconds defines the default submission period in seconds
	DefaultCadenceSeconds = 3600

	// DefaultMaxEndpointFailures defines the consecutive failures before an endpoint is disabled
	DefaultMaxEndpointFailures = 3

	// DefaultMaxBroadcastAttempts defines the broadcast retry ceiling per cycle
	DefaultMaxBroadcastAttempts = 3

	// DefaultTopicID defines the default topic to submit predictions to
	DefaultTopicID = "1"

	// DefaultRPCTimeout defines the timeout applied to every remote call
	DefaultRPCTimeout = 15 * time.Second

	// DefaultAuditDBPath defines the default location of the audit trail database
	DefaultAuditDBPath = "submitter_audit.db"

	// DefaultDataSourceURL defines the default observation feed for the predictor
	DefaultDataSourceURL = "https://data.forecasthq.network/v1/latest"

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultPermissiveFallback defines whether unavailable auxiliary data is
	// substituted with permissive defaults instead of blocking submissions
	DefaultPermissiveFallback = true
)

// GetEnvEndpoints returns the configured endpoint URLs from environment variables
func GetEnvEndpoints() ([]string, error) {
	return endpoints.ParseEndpointList(os.Getenv("RPC_ENDPOINTS"))
}

// GetEnvCadence returns the cadence period from environment variables
func GetEnvCadence() (time.Duration, error) {
	cadence := os.Getenv("CADENCE_SECONDS")
	if cadence == "" {
		return DefaultCadenceSeconds * time.Second, nil
	}

	seconds, err := strconv.Atoi(cadence)
	if err != nil {
		return 0, fmt.Errorf("invalid CADENCE_SECONDS value: %s, must be an integer", cadence)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("CADENCE_SECONDS must be greater than 0")
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvMaxEndpointFailures returns the endpoint disable threshold from environment variables
func GetEnvMaxEndpointFailures() (int, error) {
	maxFailures := os.Getenv("MAX_ENDPOINT_FAILURES")
	if maxFailures == "" {
		return DefaultMaxEndpointFailures, nil
	}

	n, err := strconv.Atoi(maxFailures)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_ENDPOINT_FAILURES value: %s, must be an integer", maxFailures)
	}
	if n <= 0 {
		return 0, fmt.Errorf("MAX_ENDPOINT_FAILURES must be greater than 0")
	}
	return n, nil
}

// GetEnvMaxBroadcastAttempts returns the broadcast retry ceiling from environment variables
func GetEnvMaxBroadcastAttempts() (int, error) {
	maxAttempts := os.Getenv("MAX_BROADCAST_ATTEMPTS")
	if maxAttempts == "" {
		return DefaultMaxBroadcastAttempts, nil
	}

	n, err := strconv.Atoi(maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_BROADCAST_ATTEMPTS value: %s, must be an integer", maxAttempts)
	}
	if n <= 0 {
		return 0, fmt.Errorf("MAX_BROADCAST_ATTEMPTS must be greater than 0")
	}
	return n, nil
}

// GetEnvRunUntil returns the optional scheduler deadline from environment variables
func GetEnvRunUntil() (*time.Time, error) {
	runUntil := os.Getenv("RUN_UNTIL")
	if runUntil == "" {
		return nil, nil
	}

	deadline, err := time.Parse(time.RFC3339, runUntil)
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_UNTIL value: %s, must be RFC3339 (e.g. 2026-01-02T15:04:05Z)", runUntil)
	}
	utc := deadline.UTC()
	return &utc, nil
}

// GetEnvTopicID returns the topic identifier from environment variables
func GetEnvTopicID() (string, error) {
	topicID := os.Getenv("TOPIC_ID")
	if topicID == "" {
		return DefaultTopicID, nil
	}
	return topicID, nil
}

// GetEnvRPCTimeout returns the per-call remote timeout from environment variables
func GetEnvRPCTimeout() (time.Duration, error) {
	timeout := os.Getenv("RPC_TIMEOUT")
	if timeout == "" {
		return DefaultRPCTimeout, nil
	}

	parsed, err := time.ParseDuration(timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid RPC_TIMEOUT value: %s, must be a valid duration string", timeout)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("RPC_TIMEOUT must be greater than 0")
	}
	return parsed, nil
}

// GetEnvMinStake returns the minimum stake threshold from environment variables.
// An empty value disables the check.
func GetEnvMinStake() (*big.Int, error) {
	minStake := os.Getenv("MIN_STAKE")
	if minStake == "" {
		return nil, nil
	}

	n := new(big.Int)
	if _, ok := n.SetString(minStake, 10); !ok {
		return nil, fmt.Errorf("invalid MIN_STAKE value: %s, must be a valid integer string", minStake)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("MIN_STAKE must be greater than or equal to 0")
	}
	return n, nil
}

// GetEnvPermissiveFallback returns whether permissive degraded-mode defaults
// are enabled from environment variables
func GetEnvPermissiveFallback() (bool, error) {
	enabled := os.Getenv("PERMISSIVE_FALLBACK")
	if enabled == "" {
		return DefaultPermissiveFallback, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid PERMISSIVE_FALLBACK value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvAuditDBPath returns the audit store path from environment variables
func GetEnvAuditDBPath() (string, error) {
	path := os.Getenv("AUDIT_DB_PATH")
	if path == "" {
		return DefaultAuditDBPath, nil
	}
	return path, nil
}

// GetEnvDataSourceURL returns the predictor's data source URL from environment variables
func GetEnvDataSourceURL() (string, error) {
	url := os.Getenv("DATA_SOURCE_URL")
	if url == "" {
		return DefaultDataSourceURL, nil
	}
	return url, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of 'debug', 'info', 'notice', 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

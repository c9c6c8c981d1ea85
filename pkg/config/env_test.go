package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecasthq/forecast-submitter/pkg/endpoints"
	"github.com/forecasthq/forecast-submitter/pkg/logger"
)

func TestGetEnvEndpoints(t *testing.T) {
	t.Setenv("RPC_ENDPOINTS", "")
	urls, err := GetEnvEndpoints()
	require.NoError(t, err)
	assert.Equal(t, endpoints.DefaultEndpoints, urls)

	t.Setenv("RPC_ENDPOINTS", "https://a.example.com,https://b.example.com")
	urls, err = GetEnvEndpoints()
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestGetEnvCadence(t *testing.T) {
	t.Setenv("CADENCE_SECONDS", "")
	cadence, err := GetEnvCadence()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cadence)

	t.Setenv("CADENCE_SECONDS", "600")
	cadence, err = GetEnvCadence()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cadence)

	t.Setenv("CADENCE_SECONDS", "0")
	_, err = GetEnvCadence()
	assert.Error(t, err)

	t.Setenv("CADENCE_SECONDS", "hourly")
	_, err = GetEnvCadence()
	assert.Error(t, err)
}

func TestGetEnvMaxEndpointFailures(t *testing.T) {
	t.Setenv("MAX_ENDPOINT_FAILURES", "")
	n, err := GetEnvMaxEndpointFailures()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxEndpointFailures, n)

	t.Setenv("MAX_ENDPOINT_FAILURES", "5")
	n, err = GetEnvMaxEndpointFailures()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	t.Setenv("MAX_ENDPOINT_FAILURES", "-1")
	_, err = GetEnvMaxEndpointFailures()
	assert.Error(t, err)
}

func TestGetEnvMaxBroadcastAttempts(t *testing.T) {
	t.Setenv("MAX_BROADCAST_ATTEMPTS", "")
	n, err := GetEnvMaxBroadcastAttempts()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBroadcastAttempts, n)

	t.Setenv("MAX_BROADCAST_ATTEMPTS", "0")
	_, err = GetEnvMaxBroadcastAttempts()
	assert.Error(t, err)
}

func TestGetEnvRunUntil(t *testing.T) {
	t.Setenv("RUN_UNTIL", "")
	deadline, err := GetEnvRunUntil()
	require.NoError(t, err)
	assert.Nil(t, deadline)

	t.Setenv("RUN_UNTIL", "2026-03-01T11:00:00+02:00")
	deadline, err = GetEnvRunUntil()
	require.NoError(t, err)
	require.NotNil(t, deadline)
	assert.Equal(t, time.UTC, deadline.Location())
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), *deadline)

	t.Setenv("RUN_UNTIL", "tomorrow")
	_, err = GetEnvRunUntil()
	assert.Error(t, err)
}

func TestGetEnvMinStake(t *testing.T) {
	t.Setenv("MIN_STAKE", "")
	minStake, err := GetEnvMinStake()
	require.NoError(t, err)
	assert.Nil(t, minStake, "empty MIN_STAKE disables the check")

	t.Setenv("MIN_STAKE", "1000000000000000000000")
	minStake, err = GetEnvMinStake()
	require.NoError(t, err)
	expected, _ := new(big.Int).SetString("1000000000000000000000", 10)
	assert.Zero(t, minStake.Cmp(expected))

	t.Setenv("MIN_STAKE", "-5")
	_, err = GetEnvMinStake()
	assert.Error(t, err)

	t.Setenv("MIN_STAKE", "1.5")
	_, err = GetEnvMinStake()
	assert.Error(t, err)
}

func TestGetEnvPermissiveFallback(t *testing.T) {
	t.Setenv("PERMISSIVE_FALLBACK", "")
	enabled, err := GetEnvPermissiveFallback()
	require.NoError(t, err)
	assert.True(t, enabled)

	t.Setenv("PERMISSIVE_FALLBACK", "false")
	enabled, err = GetEnvPermissiveFallback()
	require.NoError(t, err)
	assert.False(t, enabled)

	t.Setenv("PERMISSIVE_FALLBACK", "yes")
	_, err = GetEnvPermissiveFallback()
	assert.Error(t, err)
}

func TestGetEnvRPCTimeout(t *testing.T) {
	t.Setenv("RPC_TIMEOUT", "")
	timeout, err := GetEnvRPCTimeout()
	require.NoError(t, err)
	assert.Equal(t, DefaultRPCTimeout, timeout)

	t.Setenv("RPC_TIMEOUT", "30s")
	timeout, err = GetEnvRPCTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)

	t.Setenv("RPC_TIMEOUT", "-1s")
	_, err = GetEnvRPCTimeout()
	assert.Error(t, err)
}

func TestGetEnvMetricsPort(t *testing.T) {
	t.Setenv("METRICS_PORT", "")
	port, err := GetEnvMetricsPort()
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsPort, port)

	t.Setenv("METRICS_PORT", "9090")
	port, err = GetEnvMetricsPort()
	require.NoError(t, err)
	assert.Equal(t, "9090", port)

	t.Setenv("METRICS_PORT", "http")
	_, err = GetEnvMetricsPort()
	assert.Error(t, err)
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	level, err := GetEnvLogLevel()
	require.NoError(t, err)
	assert.Equal(t, logger.InfoLevel, level)

	t.Setenv("LOG_LEVEL", "debug")
	level, err = GetEnvLogLevel()
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, level)

	t.Setenv("LOG_LEVEL", "verbose")
	_, err = GetEnvLogLevel()
	assert.Error(t, err)
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("RPC_ENDPOINTS", "https://a.example.com")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CADENCE_SECONDS", "")
	t.Setenv("RUN_UNTIL", "")
	t.Setenv("MIN_STAKE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.CadencePeriod)
	assert.Equal(t, DefaultMaxEndpointFailures, cfg.MaxEndpointFailures)
	assert.Equal(t, DefaultMaxBroadcastAttempts, cfg.MaxBroadcastAttempts)
	assert.Nil(t, cfg.RunUntil)
	assert.Nil(t, cfg.MinStake)
	assert.True(t, cfg.PermissiveFallback)
	assert.Equal(t, DefaultTopicID, cfg.TopicID)
	assert.Equal(t, DefaultAuditDBPath, cfg.AuditDBPath)
}

func TestLoadConfigRequiresPrivateKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRIVATE_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIVATE_KEY")
}

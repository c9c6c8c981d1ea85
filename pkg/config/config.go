package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/forecasthq/forecast-submitter/pkg/logger"
)

// Config holds the configuration for the submitter service
type Config struct {
	Endpoints            []string
	CadencePeriod        time.Duration
	MaxEndpointFailures  int
	MaxBroadcastAttempts int
	RunUntil             *time.Time
	TopicID              string
	PrivateKey           string
	MinStake             *big.Int
	PermissiveFallback   bool
	RPCTimeout           time.Duration
	AuditDBPath          string
	DataSourceURL        string
	MetricsPort          string
	LoggerConfig         LoggerConfig
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	endpointURLs, err := GetEnvEndpoints()
	if err != nil {
		return nil, err
	}

	cadence, err := GetEnvCadence()
	if err != nil {
		return nil, err
	}

	maxEndpointFailures, err := GetEnvMaxEndpointFailures()
	if err != nil {
		return nil, err
	}

	maxBroadcastAttempts, err := GetEnvMaxBroadcastAttempts()
	if err != nil {
		return nil, err
	}

	runUntil, err := GetEnvRunUntil()
	if err != nil {
		return nil, err
	}

	topicID, err := GetEnvTopicID()
	if err != nil {
		return nil, err
	}

	minStake, err := GetEnvMinStake()
	if err != nil {
		return nil, err
	}

	permissiveFallback, err := GetEnvPermissiveFallback()
	if err != nil {
		return nil, err
	}

	rpcTimeout, err := GetEnvRPCTimeout()
	if err != nil {
		return nil, err
	}

	auditDBPath, err := GetEnvAuditDBPath()
	if err != nil {
		return nil, err
	}

	dataSourceURL, err := GetEnvDataSourceURL()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Endpoints:            endpointURLs,
		CadencePeriod:        cadence,
		MaxEndpointFailures:  maxEndpointFailures,
		MaxBroadcastAttempts: maxBroadcastAttempts,
		RunUntil:             runUntil,
		TopicID:              topicID,
		PrivateKey:           os.Getenv("PRIVATE_KEY"),
		MinStake:             minStake,
		PermissiveFallback:   permissiveFallback,
		RPCTimeout:           rpcTimeout,
		AuditDBPath:          auditDBPath,
		DataSourceURL:        dataSourceURL,
		MetricsPort:          metricsPort,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	return nil
}

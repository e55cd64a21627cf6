package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", candidate)
	}
	return d, nil
}

func (c ConnectorConfig) QueryTimeoutDuration() (time.Duration, error) {
	return DurationOrDefault(c.QueryTimeout, DefaultConnectorQueryTimeout)
}

func (c OrchestratorConfig) GatewayTimeoutDuration() (time.Duration, error) {
	return DurationOrDefault(c.GatewayTimeout, DefaultOrchestratorGatewayTimeout)
}

func (c OrchestratorConfig) GatewayRetryBackoffDuration() (time.Duration, error) {
	return DurationOrDefault(c.GatewayRetryBackoff, DefaultOrchestratorGatewayBackoff)
}

func (c WeatherToolConfig) TimeoutDuration() (time.Duration, error) {
	return DurationOrDefault(c.Timeout, DefaultWeatherToolTimeout)
}

func (c ModelRegistry) RequestTimeoutDuration() (time.Duration, error) {
	return DurationOrDefault(c.RequestTimeout, DefaultModelRequestTimeout)
}

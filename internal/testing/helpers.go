// Package testing gates tests that need a live broker.
package testing

import (
	"os"
	"testing"
)

const (
	envUnitOnly    = "SERVICELOG_UNIT_TESTS_ONLY"
	envIntegration = "SERVICELOG_RUN_INTEGRATION_TESTS"
	envRedisURL    = "SERVICELOG_TEST_REDIS_URL"
	envNATSURL     = "SERVICELOG_TEST_NATS_URL"
)

// Unit returns true unless integration tests were explicitly requested
// with SERVICELOG_RUN_INTEGRATION_TESTS=true. SERVICELOG_UNIT_TESTS_ONLY
// and -short always force unit mode.
func Unit() bool {
	if os.Getenv(envUnitOnly) == "true" {
		return true
	}
	if testing.Short() {
		return true
	}
	return os.Getenv(envIntegration) != "true"
}

// Integration returns true if running in integration test mode.
func Integration() bool {
	return !Unit()
}

// SkipIfUnit skips the test if running in unit test mode.
func SkipIfUnit(t *testing.T, message ...string) {
	t.Helper()
	if Unit() {
		msg := "Skipping integration test in unit mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// RedisURL returns the broker used by live Redis tests.
func RedisURL() string {
	return envOr(envRedisURL, "redis://localhost:6379/0")
}

// NATSURL returns the broker used by live NATS tests.
func NATSURL() string {
	return envOr(envNATSURL, "nats://localhost:4222")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// A non-positive (<= 0) poll interval or lease batch size falls back to its
// documented default rather than guessing intent; the process batch size
// falls back only when negative.
func TestProperty_InvalidConfigFallback(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive poll interval returns default", prop.ForAll(
		func(invalidValue int) bool {
			cfg := &Config{PollIntervalMs: invalidValue}
			result := cfg.GetPollInterval(nil)
			expected := time.Duration(DefaultPollIntervalMs) * time.Millisecond
			return result == expected
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive lease batch size returns default", prop.ForAll(
		func(invalidValue int) bool {
			cfg := &Config{LeaseBatchSize: invalidValue}
			result := cfg.GetLeaseBatchSize(nil)
			return result == DefaultLeaseBatchSize
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("positive poll interval returns configured value", prop.ForAll(
		func(validValue int) bool {
			cfg := &Config{PollIntervalMs: validValue}
			result := cfg.GetPollInterval(nil)
			expected := time.Duration(validValue) * time.Millisecond
			return result == expected
		},
		gen.IntRange(1, 10000),
	))

	properties.Property("positive lease batch size returns configured value", prop.ForAll(
		func(validValue int) bool {
			cfg := &Config{LeaseBatchSize: validValue}
			result := cfg.GetLeaseBatchSize(nil)
			return result == validValue
		},
		gen.IntRange(1, 10000),
	))

	// Zero process batch size is a deliberate pathology, not an error: it
	// must pass through unchanged, unlike every other non-positive setting.
	properties.Property("zero process batch size passes through unchanged", prop.ForAll(
		func(_ int) bool {
			cfg := &Config{ProcessBatchSize: 0}
			return cfg.GetProcessBatchSize(nil) == 0
		},
		gen.Const(0),
	))

	properties.Property("negative process batch size returns default", prop.ForAll(
		func(invalidValue int) bool {
			cfg := &Config{ProcessBatchSize: invalidValue}
			return cfg.GetProcessBatchSize(nil) == DefaultProcessBatchSize
		},
		gen.IntRange(-1000, -1),
	))

	properties.TestingRun(t)
}

func TestGetPollInterval_DefaultValue(t *testing.T) {
	cfg := &Config{PollIntervalMs: 0}
	result := cfg.GetPollInterval(nil)
	expected := time.Duration(DefaultPollIntervalMs) * time.Millisecond
	assert.Equal(t, expected, result, "should return default when value is 0")
}

func TestGetPollInterval_NegativeValue(t *testing.T) {
	cfg := &Config{PollIntervalMs: -50}
	result := cfg.GetPollInterval(nil)
	expected := time.Duration(DefaultPollIntervalMs) * time.Millisecond
	assert.Equal(t, expected, result, "should return default when value is negative")
}

func TestGetPollInterval_ValidValue(t *testing.T) {
	cfg := &Config{PollIntervalMs: 200}
	result := cfg.GetPollInterval(nil)
	expected := 200 * time.Millisecond
	assert.Equal(t, expected, result, "should return configured value when valid")
}

func TestGetLeaseBatchSize_DefaultValue(t *testing.T) {
	cfg := &Config{LeaseBatchSize: 0}
	result := cfg.GetLeaseBatchSize(nil)
	assert.Equal(t, DefaultLeaseBatchSize, result, "should return default when value is 0")
}

func TestGetLeaseBatchSize_NegativeValue(t *testing.T) {
	cfg := &Config{LeaseBatchSize: -10}
	result := cfg.GetLeaseBatchSize(nil)
	assert.Equal(t, DefaultLeaseBatchSize, result, "should return default when value is negative")
}

func TestGetLeaseBatchSize_ValidValue(t *testing.T) {
	cfg := &Config{LeaseBatchSize: 50}
	result := cfg.GetLeaseBatchSize(nil)
	assert.Equal(t, 50, result, "should return configured value when valid")
}

func TestGetProcessBatchSize_ZeroPassesThrough(t *testing.T) {
	cfg := &Config{ProcessBatchSize: 0}
	result := cfg.GetProcessBatchSize(nil)
	assert.Equal(t, 0, result, "zero is a deliberate pause-processing setting, not invalid")
}

func TestGetProcessBatchSize_NegativeValue(t *testing.T) {
	cfg := &Config{ProcessBatchSize: -1}
	result := cfg.GetProcessBatchSize(nil)
	assert.Equal(t, DefaultProcessBatchSize, result, "should return default when value is negative")
}

func TestGetMaxAttempts_DefaultValue(t *testing.T) {
	cfg := &Config{MaxAttempts: 0}
	result := cfg.GetMaxAttempts(nil)
	assert.Equal(t, DefaultMaxAttempts, result)
}

func TestGetShutdownTimeout_DefaultValue(t *testing.T) {
	cfg := &Config{ShutdownTimeoutMs: 0}
	result := cfg.GetShutdownTimeout(nil)
	assert.Equal(t, time.Duration(DefaultShutdownTimeoutMs)*time.Millisecond, result)
}

func TestGetPollInterval_LogsWarningOnInvalidValue(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cfg := &Config{PollIntervalMs: -1}
	result := cfg.GetPollInterval(logger)
	expected := time.Duration(DefaultPollIntervalMs) * time.Millisecond
	assert.Equal(t, expected, result, "should return default and log warning")
}

func TestGetLeaseBatchSize_LogsWarningOnInvalidValue(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cfg := &Config{LeaseBatchSize: 0}
	result := cfg.GetLeaseBatchSize(logger)
	assert.Equal(t, DefaultLeaseBatchSize, result, "should return default and log warning")
}

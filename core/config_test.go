package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"sgrchat/parser"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "AGENT_BACKEND_URL", "AGENT_API_KEY", "AGENT_DEFAULT_MODEL", "MAX_TOKENS",
		"TEMPERATURE", "REQUEST_TIMEOUT", "CONTEXT_LIMIT", "SESSION_MAX_AGE_HOURS",
		"CLEANUP_INTERVAL_MINUTES", "DEFAULT_LOCALE", "LOG_LEVEL", "LOG_TRUNCATE_LENGTH", "DEBUG_MODE",
	} {
		t.Setenv(key, "")
	}

	config := LoadConfig()
	assert.Equal(t, "8080", config.Port)
	assert.Equal(t, "http://localhost:8010", config.BackendURL)
	assert.Equal(t, "sgr_agent", config.DefaultModel)
	assert.Equal(t, 1500, config.MaxTokens)
	assert.InDelta(t, 0.4, config.Temperature, 1e-9)
	assert.Equal(t, 300*time.Second, config.RequestTimeout)
	assert.Equal(t, 10, config.ContextLimit)
	assert.Equal(t, 24*time.Hour, config.SessionMaxAge)
	assert.Equal(t, time.Hour, config.CleanupInterval)
	assert.Equal(t, parser.Russian, config.DefaultLocale)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 500, config.LogTruncateLength)
	assert.False(t, config.DebugMode)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AGENT_BACKEND_URL", "http://agents:8010/")
	t.Setenv("AGENT_API_KEY", "secret")
	t.Setenv("AGENT_DEFAULT_MODEL", "sgr_tools_agent")
	t.Setenv("MAX_TOKENS", "4000")
	t.Setenv("TEMPERATURE", "1.2")
	t.Setenv("REQUEST_TIMEOUT", "60")
	t.Setenv("CONTEXT_LIMIT", "4")
	t.Setenv("SESSION_MAX_AGE_HOURS", "2")
	t.Setenv("CLEANUP_INTERVAL_MINUTES", "5")
	t.Setenv("DEFAULT_LOCALE", "en-US,en;q=0.9")
	t.Setenv("TERMINAL_MARKER", "## Final Report")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_TRUNCATE_LENGTH", "50")
	t.Setenv("DEBUG_MODE", "TRUE")

	config := LoadConfig()
	assert.Equal(t, "9090", config.Port)
	assert.Equal(t, "http://agents:8010", config.BackendURL)
	assert.Equal(t, "secret", config.APIKey)
	assert.Equal(t, "sgr_tools_agent", config.DefaultModel)
	assert.Equal(t, 4000, config.MaxTokens)
	assert.InDelta(t, 1.2, config.Temperature, 1e-9)
	assert.Equal(t, time.Minute, config.RequestTimeout)
	assert.Equal(t, 4, config.ContextLimit)
	assert.Equal(t, 2*time.Hour, config.SessionMaxAge)
	assert.Equal(t, 5*time.Minute, config.CleanupInterval)
	assert.Equal(t, parser.English, config.DefaultLocale)
	assert.Equal(t, "## Final Report", config.TerminalMarker)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 50, config.LogTruncateLength)
	assert.True(t, config.DebugMode)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_TOKENS", "-3")
	t.Setenv("TEMPERATURE", "7")
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("CONTEXT_LIMIT", "0")
	t.Setenv("SESSION_MAX_AGE_HOURS", "x")
	t.Setenv("DEFAULT_LOCALE", "ja")

	config := LoadConfig()
	assert.Equal(t, 1500, config.MaxTokens)
	assert.InDelta(t, 0.4, config.Temperature, 1e-9)
	assert.Equal(t, 300*time.Second, config.RequestTimeout)
	assert.Equal(t, 10, config.ContextLimit)
	assert.Equal(t, 24*time.Hour, config.SessionMaxAge)
	assert.Equal(t, parser.Russian, config.DefaultLocale)
}

func TestLoadConfigEmptyMarkerDisablesFreeze(t *testing.T) {
	t.Setenv("TERMINAL_MARKER", "")
	assert.Empty(t, LoadConfig().TerminalMarker)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateForLog("short", 10))
	assert.Equal(t, "abc...", truncateForLog("abcdef", 3))
	assert.Equal(t, "abcdef", truncateForLog("abcdef", 0))
}

/*
Package core provides configuration management and logging initialization
for the sgrchat service.

This file handles:
- Loading configuration from environment variables with sensible defaults
- Structured logging setup with configurable levels
- Agent backend, stream parsing and conversation memory parameters

Every variable is optional. Invalid values are ignored and the default is kept,
so a misconfigured deployment still starts.
*/
package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sgrchat/parser"
)

// Config holds all configurable values for the sgrchat service.
type Config struct {
	// Server configuration
	Port string // HTTP server port number (default: "8080")

	// Agent backend configuration
	BackendURL   string  // Base URL of the OpenAI-compatible agent backend (default: "http://localhost:8010")
	APIKey       string  // Optional bearer token sent to the backend
	DefaultModel string  // Agent used until a turn pins one (default: "sgr_agent")
	MaxTokens    int     // max_tokens sent with every turn (default: 1500)
	Temperature  float64 // temperature sent with every turn (default: 0.4)

	// Turn execution configuration
	RequestTimeout time.Duration // Upper bound for one bot turn (default: 300s)
	ContextLimit   int           // Messages of history sent with a turn (default: 10)

	// Conversation memory configuration
	SessionMaxAge   time.Duration // How long an idle conversation is kept (default: 24h)
	CleanupInterval time.Duration // How often expired conversations are swept (default: 1h)

	// Stream parsing configuration
	DefaultLocale  parser.Locale // Label locale when the client sends none (default: "ru")
	TerminalMarker string        // Heading that freezes the answer (default: "### Executive Summary")

	// Logging and debugging configuration
	LogLevel          string // Minimum log level: debug, info, warn, error (default: "info")
	LogTruncateLength int    // Maximum length of logged payloads (default: 500)
	DebugMode         bool   // Log every published stream update (default: false)
}

// LoadConfig loads configuration from environment variables with sensible defaults.
//
// Environment Variables:
//   - PORT: Server port (string)
//   - AGENT_BACKEND_URL: Agent backend base URL (string)
//   - AGENT_API_KEY: Backend bearer token (string)
//   - AGENT_DEFAULT_MODEL: Default agent id (string)
//   - MAX_TOKENS: Request max_tokens (integer)
//   - TEMPERATURE: Request temperature (float, 0..2)
//   - REQUEST_TIMEOUT: Turn timeout in seconds (integer)
//   - CONTEXT_LIMIT: History messages per turn (integer)
//   - SESSION_MAX_AGE_HOURS: Conversation expiry in hours (integer)
//   - CLEANUP_INTERVAL_MINUTES: Sweep frequency in minutes (integer)
//   - DEFAULT_LOCALE: "en" or "ru", or any Accept-Language value (string)
//   - TERMINAL_MARKER: Answer-freezing heading, empty disables (string)
//   - LOG_LEVEL: Logging level (string)
//   - LOG_TRUNCATE_LENGTH: Log truncation length (integer)
//   - DEBUG_MODE: Enable debug mode (boolean: "true"/"1")
func LoadConfig() *Config {
	config := &Config{
		Port: "8080",

		BackendURL:   "http://localhost:8010",
		DefaultModel: "sgr_agent",
		MaxTokens:    1500,
		Temperature:  0.4,

		RequestTimeout: 300 * time.Second,
		ContextLimit:   10,

		SessionMaxAge:   24 * time.Hour,
		CleanupInterval: 1 * time.Hour,

		DefaultLocale:  parser.Russian,
		TerminalMarker: parser.DefaultTerminalMarker,

		LogLevel:          "info",
		LogTruncateLength: 500,
		DebugMode:         false,
	}

	if port := os.Getenv("PORT"); port != "" {
		config.Port = port
	}

	// Agent backend
	if url := os.Getenv("AGENT_BACKEND_URL"); url != "" {
		config.BackendURL = strings.TrimRight(url, "/")
	}

	if apiKey := os.Getenv("AGENT_API_KEY"); apiKey != "" {
		config.APIKey = apiKey
	}

	if model := os.Getenv("AGENT_DEFAULT_MODEL"); model != "" {
		config.DefaultModel = model
	}

	if maxTokens := os.Getenv("MAX_TOKENS"); maxTokens != "" {
		if val, err := strconv.Atoi(maxTokens); err == nil && val > 0 {
			config.MaxTokens = val
		}
	}

	if temperature := os.Getenv("TEMPERATURE"); temperature != "" {
		if val, err := strconv.ParseFloat(temperature, 64); err == nil && val >= 0 && val <= 2 {
			config.Temperature = val
		}
	}

	// Turn execution
	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			config.RequestTimeout = time.Duration(val) * time.Second
		}
	}

	if contextLimit := os.Getenv("CONTEXT_LIMIT"); contextLimit != "" {
		if val, err := strconv.Atoi(contextLimit); err == nil && val > 0 {
			config.ContextLimit = val
		}
	}

	// Conversation memory
	if sessionMaxAge := os.Getenv("SESSION_MAX_AGE_HOURS"); sessionMaxAge != "" {
		if val, err := strconv.Atoi(sessionMaxAge); err == nil && val > 0 {
			config.SessionMaxAge = time.Duration(val) * time.Hour
		}
	}

	if cleanupInterval := os.Getenv("CLEANUP_INTERVAL_MINUTES"); cleanupInterval != "" {
		if val, err := strconv.Atoi(cleanupInterval); err == nil && val > 0 {
			config.CleanupInterval = time.Duration(val) * time.Minute
		}
	}

	// Stream parsing
	if locale := os.Getenv("DEFAULT_LOCALE"); locale != "" {
		config.DefaultLocale = parser.MatchLocale(locale, config.DefaultLocale)
	}

	// An explicitly empty marker disables the answer freeze.
	if marker, ok := os.LookupEnv("TERMINAL_MARKER"); ok {
		config.TerminalMarker = strings.TrimSpace(marker)
	}

	// Logging
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}

	if truncateLen := os.Getenv("LOG_TRUNCATE_LENGTH"); truncateLen != "" {
		if val, err := strconv.Atoi(truncateLen); err == nil && val > 0 {
			config.LogTruncateLength = val
		}
	}

	if debug := os.Getenv("DEBUG_MODE"); debug != "" {
		config.DebugMode = strings.ToLower(debug) == "true" || debug == "1"
	}

	return config
}

// InitializeLogger configures and returns a structured logger based on the provided configuration.
// The logger writes JSON to stdout with RFC3339 timestamps and logs the loaded
// configuration once. The API key is never logged.
//
// The standard logrus logger is configured the same way, so package-level
// component loggers (parser, backend) share the format and level.
func InitializeLogger(config *Config) *logrus.Logger {
	logger := logrus.New()
	formatter := &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	}
	level := parseLevel(config.LogLevel)

	logger.SetFormatter(formatter)
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)

	logrus.SetFormatter(formatter)
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)

	logger.WithFields(logrus.Fields{
		"backendURL":        config.BackendURL,
		"apiKeySet":         config.APIKey != "",
		"defaultModel":      config.DefaultModel,
		"maxTokens":         config.MaxTokens,
		"temperature":       config.Temperature,
		"requestTimeout":    config.RequestTimeout,
		"contextLimit":      config.ContextLimit,
		"sessionMaxAge":     config.SessionMaxAge,
		"cleanupInterval":   config.CleanupInterval,
		"defaultLocale":     config.DefaultLocale,
		"terminalMarker":    config.TerminalMarker,
		"logTruncateLength": config.LogTruncateLength,
		"debugMode":         config.DebugMode,
	}).Info("Configuration loaded")

	return logger
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// truncateForLog shortens text to limit bytes for logging.
func truncateForLog(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

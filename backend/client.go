/*
Package backend talks to the OpenAI-compatible agent backend.

Stream posts a chat completion request with stream=true and feeds the raw
response body, chunk by chunk, into a parser.Session. ListModels reads the
backend's agent catalogue.
*/
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sgrchat/parser"
)

const readBufferSize = 4096

var clientLogger = logrus.WithField("component", "backend")

// Config holds connection settings for the agent backend.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds non-streaming calls. Streams are bounded by their context.
	Timeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for all calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client is safe for concurrent use; each Stream call owns its session.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

// NewClient builds a client for the backend at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8010"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Message is one chat message sent as history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the body of POST /v1/chat/completions.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Model is one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type modelList struct {
	Data []Model `json:"data"`
}

// Stream runs one bot turn. The response body is consumed sequentially and
// every chunk is handed to session. On [DONE] the final result is returned.
//
// A non-2xx status yields *StatusError before anything is read. A body that
// fails or ends early yields *StreamError whose Partial is the session's
// best-effort final result; the session is finalized either way.
func (c *Client) Stream(ctx context.Context, req CompletionRequest, session *parser.Session) (parser.ParseResult, error) {
	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return parser.ParseResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return parser.ParseResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	c.authorize(httpReq)

	logger := clientLogger.WithFields(logrus.Fields{
		"model":    req.Model,
		"messages": len(req.Messages),
	})
	logger.Debug("Opening agent stream")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return parser.ParseResult{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return parser.ParseResult{}, &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := res.Body.Read(buf)
		if n > 0 {
			session.OnChunk(string(buf[:n]))
			if session.Done() {
				result := session.Finalize()
				logger.WithField("stats", session.Stats()).Debug("Agent stream completed")
				return result, nil
			}
		}

		if readErr == nil {
			continue
		}

		partial := session.Finalize()
		if session.Done() {
			logger.WithField("stats", session.Stats()).Debug("Agent stream completed")
			return partial, nil
		}
		if errors.Is(readErr, io.EOF) {
			logger.Warn("Agent stream ended without [DONE]")
			return partial, &StreamError{Partial: partial, Err: ErrIncompleteStream}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			readErr = ctxErr
		}
		logger.WithError(readErr).Warn("Agent stream interrupted")
		return partial, &StreamError{Partial: partial, Err: fmt.Errorf("read stream: %w", readErr)}
	}
}

// ListModels returns the agents the backend exposes.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.authorize(httpReq)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var list modelList
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return list.Data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

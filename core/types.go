/*
Package core contains the request/response types of the chat API.

Key type categories:
- Chat API types (ChatRequest, ChatResponse)
- Real-time streaming types (StreamEvent)
- Reload types (ParseRequest)
- Execution control types (StopRequest, StopResponse)
*/
package core

import (
	"time"

	"sgrchat/parser"
)

// ChatRequest is the input of POST /chat and POST /chat/stream.
type ChatRequest struct {
	Message        string `json:"message"`                  // The user's message
	ConversationID string `json:"conversationId,omitempty"` // Existing conversation, empty starts a new one
	Locale         string `json:"locale,omitempty"`         // "en", "ru" or an Accept-Language value; header is used when empty
}

// ChatResponse is the final result of a non-streaming turn.
type ChatResponse struct {
	ConversationID string             `json:"conversationId"`
	TurnID         string             `json:"turnId"`
	AgentID        string             `json:"agentId,omitempty"`
	Result         parser.ParseResult `json:"result"`
	Content        string             `json:"content"`           // Persisted form of Result
	Error          string             `json:"error,omitempty"`   // Set when the turn failed after partial output
	Partial        bool               `json:"partial,omitempty"` // Result is best-effort
}

// Stream event types sent on /chat/stream.
const (
	EventConversation = "conversation"
	EventTurnStarted  = "turn_started"
	EventAgent        = "agent"
	EventUpdate       = "update"
	EventDone         = "done"
	EventStopped      = "stopped"
	EventError        = "error"
)

// StreamEvent is one SSE `data:` payload of /chat/stream. Every event names its
// conversation and turn so a client can drop events of a superseded turn.
type StreamEvent struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversationId"`
	TurnID         string              `json:"turnId,omitempty"`
	AgentID        string              `json:"agentId,omitempty"`
	Result         *parser.ParseResult `json:"result,omitempty"`        // update and done
	ContentLength  int                 `json:"contentLength,omitempty"` // update and done
	Content        string              `json:"content,omitempty"`       // done: persisted form; error/stopped: message
	Partial        bool                `json:"partial,omitempty"`       // done: the turn ended without [DONE]
	Timestamp      time.Time           `json:"timestamp"`
}

// ParseRequest is the input of POST /parse, used to render stored content.
type ParseRequest struct {
	Content        string `json:"content"`
	Questions      string `json:"questions,omitempty"`
	StreamComplete bool   `json:"streamComplete,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

// StopRequest asks to cancel an in-flight turn.
type StopRequest struct {
	TurnID string `json:"turnId"`
}

// StopResponse represents the server's response to a stop request.
type StopResponse struct {
	Success bool   `json:"success"` // Whether the stop request was processed successfully
	Message string `json:"message"` // Human-readable message describing the result
	Stopped bool   `json:"stopped"` // Whether the turn was actually stopped (may already be completed)
}

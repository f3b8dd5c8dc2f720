/*
Package core provides the langchaingo model adapter for the agent backend.

AgentLLM implements llms.Model on top of backend.Client. Every GenerateContent
call is one bot turn: the messages are sent to the backend with stream=true,
the SSE body is consumed by a fresh parser.Session, and the final ParseResult
becomes the response choice. The structured result travels in the choice's
GenerationInfo and is also kept on the adapter as the last TurnResult, so
callers that only see strings (chains) can still read it afterwards.

An AgentLLM is meant to be created per turn; it is safe for concurrent use but
LastTurn only reports the most recent call.
*/
package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"sgrchat/backend"
	"sgrchat/parser"
)

// GenerationInfo keys set on every choice.
const (
	InfoSpoilerText  = "spoilerText"
	InfoSpoilerTitle = "spoilerTitle"
	InfoQuestions    = "questions"
	InfoAgentID      = "agentId"
	InfoPersisted    = "persisted"
)

// TurnResult is what one GenerateContent call produced. Result is best-effort
// when Err is set.
type TurnResult struct {
	Result  parser.ParseResult
	AgentID string
	Stats   parser.SessionStats
	Err     error
}

// AgentLLM is an llms.Model backed by the agent backend's SSE stream.
type AgentLLM struct {
	CallbacksHandler callbacks.Handler

	client      *backend.Client
	config      *Config
	logger      *logrus.Entry
	locale      parser.Locale
	sessionOpts []parser.SessionOption

	mutex sync.Mutex
	last  *TurnResult
}

var _ llms.Model = (*AgentLLM)(nil)

// NewAgentLLM creates a model adapter for one turn.
//
// Parameters:
//   - client: Backend client used to open the stream
//   - config: Application configuration providing request defaults
//   - logger: Request-scoped logger
//   - locale: Label locale of the turn
//   - opts: Extra session options, such as a pinned agent or a publisher
func NewAgentLLM(client *backend.Client, config *Config, logger *logrus.Entry, locale parser.Locale, opts ...parser.SessionOption) *AgentLLM {
	return &AgentLLM{
		client:      client,
		config:      config,
		logger:      logger,
		locale:      locale,
		sessionOpts: opts,
	}
}

// GenerateContent runs one bot turn.
//
// When a streaming function is set, it receives the text appended to the
// visible answer after every classification. An error from it stops the turn.
//
// Returns:
//   - *llms.ContentResponse: One choice holding the answer text
//   - error: *backend.StatusError, *backend.StreamError (with partial content) or a transport error
func (w *AgentLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if w.CallbacksHandler != nil {
		w.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := llms.CallOptions{
		Model:       w.config.DefaultModel,
		MaxTokens:   w.config.MaxTokens,
		Temperature: w.config.Temperature,
	}
	for _, opt := range options {
		opt(&opts)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionOpts := []parser.SessionOption{
		parser.WithLocale(w.locale),
		parser.WithTerminalMarker(w.config.TerminalMarker),
	}
	sessionOpts = append(sessionOpts, w.sessionOpts...)

	var streamErr error
	if opts.StreamingFunc != nil {
		sent := ""
		sessionOpts = append(sessionOpts, parser.WithPublisher(func(update parser.Update) {
			if streamErr != nil {
				return
			}
			main := update.Result.MainText
			if len(main) <= len(sent) || !strings.HasPrefix(main, sent) {
				return
			}
			chunk := main[len(sent):]
			sent = main
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				streamErr = err
				cancel()
			}
		}))
	}

	session := parser.NewSession(sessionOpts...)
	request := backend.CompletionRequest{
		Model:       opts.Model,
		Messages:    toBackendMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	w.logger.WithFields(logrus.Fields{
		"model":        request.Model,
		"messageCount": len(request.Messages),
	}).Debug("Starting agent turn")

	result, err := w.client.Stream(ctx, request, session)
	if streamErr != nil {
		err = streamErr
	}

	w.mutex.Lock()
	w.last = &TurnResult{
		Result:  result,
		AgentID: session.AgentID(),
		Stats:   session.Stats(),
		Err:     err,
	}
	w.mutex.Unlock()

	if err != nil {
		if w.CallbacksHandler != nil {
			w.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	response := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    result.MainText,
			StopReason: "stop",
			GenerationInfo: map[string]any{
				InfoSpoilerText:  result.SpoilerText,
				InfoSpoilerTitle: result.SpoilerTitle,
				InfoQuestions:    result.Questions,
				InfoAgentID:      session.AgentID(),
				InfoPersisted:    parser.FormatPersisted(result, w.locale),
			},
		}},
	}

	if w.CallbacksHandler != nil {
		w.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, response)
	}
	return response, nil
}

// Call implements the simple string interface of llms.Model.
func (w *AgentLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, w, prompt, options...)
}

// LastTurn returns the result of the most recent GenerateContent call.
func (w *AgentLLM) LastTurn() (TurnResult, bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.last == nil {
		return TurnResult{}, false
	}
	return *w.last, true
}

// IsIncomplete reports whether err is a stream that ended without [DONE].
func IsIncomplete(err error) bool {
	return errors.Is(err, backend.ErrIncompleteStream)
}

func toBackendMessages(messages []llms.MessageContent) []backend.Message {
	out := make([]backend.Message, 0, len(messages))
	for _, m := range messages {
		var text strings.Builder
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text.WriteString(tc.Text)
			}
		}
		out = append(out, backend.Message{Role: backendRole(m.Role), Content: text.String()})
	}
	return out
}

func backendRole(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeAI:
		return RoleAssistant
	case llms.ChatMessageTypeSystem:
		return "system"
	default:
		return RoleUser
	}
}

// historyMessages converts stored history plus the new user message into
// langchaingo messages.
func historyMessages(history []backend.Message, input string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	for _, h := range history {
		role := llms.ChatMessageTypeHuman
		if h.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, h.Content))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))
}

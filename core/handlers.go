package core

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

// CallbackLogger logs chain and model events of a turn. Tool, agent and
// retriever events never fire here; the embedded SimpleHandler ignores them.
type CallbackLogger struct {
	callbacks.SimpleHandler
	requestLogger *logrus.Entry
	config        *Config
	chunks        int
}

var _ callbacks.Handler = (*CallbackLogger)(nil)

func NewCallbackLogger(requestLogger *logrus.Entry, config *Config) *CallbackLogger {
	return &CallbackLogger{
		requestLogger: requestLogger,
		config:        config,
	}
}

func (h *CallbackLogger) truncateForLog(text string) string {
	return truncateForLog(text, h.config.LogTruncateLength)
}

func (h *CallbackLogger) HandleText(ctx context.Context, text string) {
	h.requestLogger.WithFields(logrus.Fields{
		"text":       h.truncateForLog(text),
		"textLength": len(text),
	}).Debug("Processing text")
}

func (h *CallbackLogger) HandleLLMStart(ctx context.Context, prompts []string) {
	h.requestLogger.WithFields(logrus.Fields{
		"promptCount": len(prompts),
		"firstPrompt": func() string {
			if len(prompts) > 0 {
				return h.truncateForLog(prompts[0])
			}
			return ""
		}(),
	}).Info("Agent call beginning")
}

func (h *CallbackLogger) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	h.requestLogger.WithFields(logrus.Fields{
		"messageCount": len(ms),
	}).Info("Agent turn started")
}

func (h *CallbackLogger) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	fields := logrus.Fields{"streamChunks": h.chunks}
	if res != nil && len(res.Choices) > 0 {
		choice := res.Choices[0]
		fields["response"] = h.truncateForLog(choice.Content)
		fields["responseLength"] = len(choice.Content)
		if agentID, ok := choice.GenerationInfo[InfoAgentID].(string); ok && agentID != "" {
			fields["agentId"] = agentID
		}
		if trace, ok := choice.GenerationInfo[InfoSpoilerText].(string); ok {
			fields["traceLength"] = len(trace)
		}
	}
	h.requestLogger.WithFields(fields).Info("Agent turn completed")
}

func (h *CallbackLogger) HandleLLMError(ctx context.Context, err error) {
	h.requestLogger.WithFields(logrus.Fields{
		"error":        err.Error(),
		"streamChunks": h.chunks,
	}).Error("Agent turn failed")
}

func (h *CallbackLogger) HandleChainStart(ctx context.Context, inputs map[string]any) {
	fields := logrus.Fields{}
	if input, ok := inputs["input"].(string); ok {
		fields["input"] = h.truncateForLog(input)
	}
	if history, ok := inputs["history"].(string); ok {
		fields["historyLength"] = len(history)
	}
	h.requestLogger.WithFields(fields).Info("Chain execution started")
}

func (h *CallbackLogger) HandleChainEnd(ctx context.Context, outputs map[string]any) {
	fields := logrus.Fields{}
	if text, ok := outputs["text"].(string); ok {
		fields["outputLength"] = len(text)
	}
	h.requestLogger.WithFields(fields).Info("Chain execution completed")
}

func (h *CallbackLogger) HandleChainError(ctx context.Context, err error) {
	h.requestLogger.WithFields(logrus.Fields{
		"error": err.Error(),
	}).Error("Chain execution failed")
}

func (h *CallbackLogger) HandleStreamingFunc(ctx context.Context, chunk []byte) {
	h.chunks++
	if h.config.DebugMode {
		h.requestLogger.WithFields(logrus.Fields{
			"chunk":     h.truncateForLog(string(chunk)),
			"chunkSize": len(chunk),
		}).Debug("Answer chunk received")
	}
}

package parser

import "strings"

// DoneSentinel is the data payload that ends a stream.
const DoneSentinel = "[DONE]"

// Frame is one decoded `data:` payload of the agent stream. Every field is
// optional; backends differ in which envelopes they fill.
type Frame struct {
	Model    string         `json:"model,omitempty"`
	Choices  []FrameChoice  `json:"choices,omitempty"`
	Chunk    *FrameEnvelope `json:"chunk,omitempty"`
	Snapshot *FrameEnvelope `json:"snapshot,omitempty"`
}

// FrameEnvelope wraps choices in the nested chunk and snapshot forms.
type FrameEnvelope struct {
	Choices []FrameChoice `json:"choices,omitempty"`
}

// FrameChoice carries an incremental delta and/or a full message.
type FrameChoice struct {
	Delta   *FrameMessage `json:"delta,omitempty"`
	Message *FrameMessage `json:"message,omitempty"`
}

// FrameMessage is the content-bearing part of a choice.
type FrameMessage struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is an OpenAI-style tool call fragment.
type ToolCall struct {
	Function *ToolFunction `json:"function,omitempty"`
}

// ToolFunction holds a tool name and a fragment of its JSON arguments.
type ToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// dataPayload extracts the payload of an SSE `data:` line. Other fields
// (event:, id:, retry:, comments) are reported as not data.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimPrefix(line, "data:")
	return strings.TrimPrefix(payload, " "), true
}

// choices flattens the top-level and chunk-wrapped choices of a frame.
func (f Frame) choices() []FrameChoice {
	if f.Chunk == nil {
		return f.Choices
	}
	all := make([]FrameChoice, 0, len(f.Choices)+len(f.Chunk.Choices))
	all = append(all, f.Choices...)
	return append(all, f.Chunk.Choices...)
}

package parser

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tool discriminators with special field placement. Any other value is
// treated generically: its details go to the trace only.
const (
	AgentCompletionTool = "agentcompletiontool"
	CreateReportTool    = "createreporttool"
)

// ErrNotParseable is returned by Decode when neither the text nor its
// completed form is valid JSON.
var ErrNotParseable = errors.New("agent state is not parseable")

// AgentState is one decoded snapshot of the agent's reasoning.
type AgentState struct {
	ReasoningSteps   []string      `json:"reasoning_steps,omitempty"`
	CurrentSituation string        `json:"current_situation,omitempty"`
	PlanStatus       string        `json:"plan_status,omitempty"`
	RemainingSteps   []string      `json:"remaining_steps,omitempty"`
	EnoughData       *bool         `json:"enough_data,omitempty"`
	TaskCompleted    *bool         `json:"task_completed,omitempty"`
	FunctionCall     *FunctionCall `json:"function,omitempty"`

	// Loose fields of payloads that are not wrapped in a function call.
	Reasoning  string `json:"reasoning,omitempty"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// FunctionCall is the tool payload carried by a snapshot.
type FunctionCall struct {
	ToolDiscriminator string   `json:"tool_name_discriminator,omitempty"`
	Reasoning         string   `json:"reasoning,omitempty"`
	Query             string   `json:"query,omitempty"`
	Title             string   `json:"title,omitempty"`
	Content           string   `json:"content,omitempty"`
	Questions         []string `json:"questions,omitempty"`
	NextSteps         []string `json:"next_steps,omitempty"`
	UnclearTerms      []string `json:"unclear_terms,omitempty"`
	Assumptions       []string `json:"assumptions,omitempty"`
	CompletedSteps    []string `json:"completed_steps,omitempty"`
	Status            string   `json:"status,omitempty"`
}

// IsEmpty reports whether the state carries no structured content yet.
func (s AgentState) IsEmpty() bool {
	return len(s.ReasoningSteps) == 0 &&
		s.CurrentSituation == "" &&
		s.PlanStatus == "" &&
		len(s.RemainingSteps) == 0 &&
		s.EnoughData == nil &&
		s.TaskCompleted == nil &&
		s.FunctionCall == nil &&
		s.Reasoning == "" &&
		s.Title == "" &&
		s.Content == "" &&
		s.Confidence == ""
}

// Decode parses a possibly truncated JSON snapshot. A direct parse is tried
// first, then one retry on the Complete-d text. Valid JSON of an unexpected
// shape (an array, a string, mistyped fields) still decodes; unrecognized
// parts are left empty.
func Decode(jsonText string) (AgentState, error) {
	data := []byte(jsonText)
	if !json.Valid(data) {
		data = []byte(Complete(jsonText))
		if !json.Valid(data) {
			return AgentState{}, ErrNotParseable
		}
	}

	var state AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		// Unmarshal keeps filling the remaining fields after a type mismatch.
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return AgentState{}, fmt.Errorf("%w: %v", ErrNotParseable, err)
		}
	}
	return state, nil
}

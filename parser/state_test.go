package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFullState(t *testing.T) {
	t.Parallel()

	state, err := Decode(`{
		"reasoning_steps": ["look", "think"],
		"current_situation": "Searching",
		"plan_status": "on track",
		"remaining_steps": ["report"],
		"enough_data": false,
		"task_completed": true,
		"function": {
			"tool_name_discriminator": "createreporttool",
			"title": "Report",
			"content": "Body text",
			"questions": ["What format?"]
		}
	}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"look", "think"}, state.ReasoningSteps)
	assert.Equal(t, "Searching", state.CurrentSituation)
	assert.Equal(t, "on track", state.PlanStatus)
	assert.Equal(t, []string{"report"}, state.RemainingSteps)
	require.NotNil(t, state.EnoughData)
	assert.False(t, *state.EnoughData)
	require.NotNil(t, state.TaskCompleted)
	assert.True(t, *state.TaskCompleted)
	require.NotNil(t, state.FunctionCall)
	assert.Equal(t, CreateReportTool, state.FunctionCall.ToolDiscriminator)
	assert.Equal(t, []string{"What format?"}, state.FunctionCall.Questions)
	assert.False(t, state.IsEmpty())
}

func TestDecodeRepairsTruncation(t *testing.T) {
	t.Parallel()

	state, err := Decode(`{"function":{"title":"Partial","content":"Some te`)
	require.NoError(t, err)
	require.NotNil(t, state.FunctionCall)
	assert.Equal(t, "Partial", state.FunctionCall.Title)
	assert.Equal(t, "Some te", state.FunctionCall.Content)
}

func TestDecodeUnexpectedShapesYieldEmptyState(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`[1,2,3]`, `null`, `"text"`, `{}`, `{"unknown":1}`} {
		state, err := Decode(in)
		require.NoErrorf(t, err, "input %s", in)
		assert.Truef(t, state.IsEmpty(), "input %s", in)
	}
}

func TestDecodeToleratesMistypedFields(t *testing.T) {
	t.Parallel()

	state, err := Decode(`{"plan_status":5,"reasoning_steps":["kept"],"function":{"title":"T"}}`)
	require.NoError(t, err)
	assert.Empty(t, state.PlanStatus)
	assert.Equal(t, []string{"kept"}, state.ReasoningSteps)
	require.NotNil(t, state.FunctionCall)
	assert.Equal(t, "T", state.FunctionCall.Title)
}

func TestDecodeNotParseable(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "plain words", `{"a":`, `{"a":"b",`} {
		_, err := Decode(in)
		assert.ErrorIsf(t, err, ErrNotParseable, "input %q", in)
	}
}

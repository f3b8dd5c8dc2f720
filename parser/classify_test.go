package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifyJSON(t *testing.T, c Classifier, in string, complete bool) ParseResult {
	t.Helper()
	state, err := Decode(in)
	require.NoError(t, err)
	return c.Classify(state, "", complete)
}

func TestClassifyScenarios(t *testing.T) {
	t.Parallel()

	var c Classifier

	t.Run("reasoning only stays in the trace", func(t *testing.T) {
		r := classifyJSON(t, c, `{"current_situation":"Searching","reasoning_steps":["step1"]}`, false)
		assert.Equal(t, "", r.MainText)
		assert.Contains(t, r.SpoilerText, "Reasoning steps:")
		assert.Contains(t, r.SpoilerText, "step1")
		assert.NotContains(t, r.SpoilerText, "Searching")
	})

	t.Run("report title and content", func(t *testing.T) {
		r := classifyJSON(t, c, `{"function":{"tool_name_discriminator":"createreporttool","title":"Report","content":"Body text"}}`, true)
		assert.Equal(t, "# Report\n\nBody text", r.MainText)
		assert.Equal(t, "**Function:**\n- Tool: createreporttool", r.SpoilerText)
	})

	t.Run("truncated payload is repaired", func(t *testing.T) {
		r := classifyJSON(t, c, `{"function":{"title":"Partial","content":"Some te`, false)
		assert.Equal(t, "# Partial\n\nSome te", r.MainText)
		assert.Empty(t, r.SpoilerText)
	})

	t.Run("completion tool substitutes situation and reasoning", func(t *testing.T) {
		r := classifyJSON(t, c, `{"function":{"tool_name_discriminator":"agentcompletiontool","reasoning":"done"},"current_situation":"All set"}`, true)
		assert.Equal(t, "# All set\n\ndone", r.MainText)
		assert.NotContains(t, r.SpoilerText, "done")
	})

	t.Run("questions wait for the end of the stream", func(t *testing.T) {
		state, err := Decode(`{"function":{"tool_name_discriminator":"clarificationtool","questions":["What format?"]}}`)
		require.NoError(t, err)

		streaming := c.Classify(state, "", false)
		assert.NotContains(t, streaming.MainText, "What format?")
		assert.Equal(t, "What format?", streaming.Questions)

		final := c.Classify(state, "", true)
		assert.Contains(t, final.MainText, "1. What format?")
		assert.Equal(t, "What format?", final.Questions)
		assert.NotContains(t, final.SpoilerText, "What format?")
	})
}

func TestClassifyTraceOrder(t *testing.T) {
	t.Parallel()

	r := classifyJSON(t, Classifier{}, `{
		"reasoning_steps": ["a", "b"],
		"plan_status": "on track",
		"remaining_steps": ["c"],
		"enough_data": false,
		"task_completed": true,
		"current_situation": "ignored",
		"function": {
			"tool_name_discriminator": "websearchtool",
			"reasoning": "why",
			"unclear_terms": ["x", "y"],
			"assumptions": ["p"],
			"query": "q",
			"next_steps": ["n1", "n2"],
			"completed_steps": ["hidden"],
			"status": "hidden",
			"title": "T",
			"content": "C"
		}
	}`, true)

	want := "**Reasoning steps:**\n1. a\n2. b\n\n" +
		"**Plan status:** on track\n\n" +
		"**Remaining steps:**\n1. c\n\n" +
		"**Enough data:** No\n\n" +
		"**Task completed:** Yes\n\n" +
		"**Function:**\n" +
		"- Tool: websearchtool\n" +
		"- Reasoning: why\n" +
		"- Unclear terms: x, y\n" +
		"- Assumptions: p\n" +
		"- Query: q\n" +
		"- Next steps: n1, n2"
	assert.Equal(t, want, r.SpoilerText)
	assert.Equal(t, "# T\n\nC", r.MainText)
	assert.Empty(t, r.SpoilerTitle)
}

func TestClassifyCompletionToolDetails(t *testing.T) {
	t.Parallel()

	r := classifyJSON(t, Classifier{}, `{"function":{
		"tool_name_discriminator": "AgentCompletionTool",
		"title": "Finished",
		"content": "Summary",
		"reasoning": "all steps ran",
		"completed_steps": ["search", "report"],
		"status": "completed"
	}}`, true)

	assert.Equal(t, "# Finished\n\nSummary", r.MainText)
	assert.Equal(t, "**Function:**\n"+
		"- Tool: AgentCompletionTool\n"+
		"- Reasoning: all steps ran\n"+
		"**Completed steps:**\n1. search\n2. report\n"+
		"- Status: completed", r.SpoilerText)
}

func TestClassifyLooseFallbackFields(t *testing.T) {
	t.Parallel()

	r := classifyJSON(t, Classifier{}, `{"reasoning":"r","title":"t","content":"c","confidence":"high"}`, true)
	assert.Equal(t, "", r.MainText)
	assert.Equal(t, "**Reasoning:** r\n\n**Title:** t\n\n**Content:** c\n\n**Confidence:** high", r.SpoilerText)

	// Loose fields are ignored once a function call is present.
	r = classifyJSON(t, Classifier{}, `{"reasoning":"r","function":{"title":"F"}}`, true)
	assert.Equal(t, "# F", r.MainText)
	assert.Empty(t, r.SpoilerText)
}

func TestClassifyRussianLabels(t *testing.T) {
	t.Parallel()

	r := classifyJSON(t, Classifier{Locale: Russian}, `{"reasoning_steps":["шаг"],"enough_data":true}`, false)
	assert.Equal(t, "**Шаги рассуждения:**\n1. шаг\n\n**Достаточно данных:** Да", r.SpoilerText)
}

func TestClassifyPriorQuestionsLeadMainText(t *testing.T) {
	t.Parallel()

	state, err := Decode(`{"function":{"title":"Answer","content":"Text","questions":["Next?"]}}`)
	require.NoError(t, err)

	r := Classifier{}.Classify(state, "  Earlier?  ", true)
	assert.Equal(t, "Earlier?\n\n1. Next?\n\n# Answer\n\nText", r.MainText)
}

func TestClassifyIsIdempotent(t *testing.T) {
	t.Parallel()

	state, err := Decode(`{"reasoning_steps":["a"],"function":{"tool_name_discriminator":"createreporttool","title":"R","content":"B","questions":["Q"]}}`)
	require.NoError(t, err)

	c := Classifier{Locale: Russian}
	assert.Equal(t, c.Classify(state, "", true), c.Classify(state, "", true))
}

func TestParseForms(t *testing.T) {
	t.Parallel()

	var c Classifier

	t.Run("empty content keeps prior questions", func(t *testing.T) {
		r, kind := c.parse("  \n", " Earlier? ", true)
		assert.Equal(t, kindEmpty, kind)
		assert.Equal(t, ParseResult{MainText: "Earlier?"}, r)
	})

	t.Run("persisted form short-circuits", func(t *testing.T) {
		r, kind := c.parse("~~{Thoughts}~~\n**Plan status:** ok\n\n# Done", "", false)
		assert.Equal(t, kindPersisted, kind)
		assert.Equal(t, ParseResult{MainText: "# Done", SpoilerText: "**Plan status:** ok", SpoilerTitle: "Thoughts"}, r)
	})

	t.Run("search results", func(t *testing.T) {
		r, kind := c.parse("Weather in Moscow\n12:30\nSearch Results:\n1. sunny\n2. windy", "", true)
		assert.Equal(t, kindSearchResults, kind)
		assert.Equal(t, "# Weather in Moscow", r.MainText)
		assert.Equal(t, "**Search results:**\n1. sunny\n2. windy", r.SpoilerText)
		assert.Equal(t, "Search results", r.SpoilerTitle)
	})

	t.Run("json state", func(t *testing.T) {
		_, kind := c.parse(`{"function":{"title":"x"}}`, "", true)
		assert.Equal(t, kindState, kind)
	})

	t.Run("plain text becomes the trace", func(t *testing.T) {
		r, kind := c.parse("  just some words  ", "", true)
		assert.Equal(t, kindRaw, kind)
		assert.Equal(t, ParseResult{SpoilerText: "just some words"}, r)
	})

	t.Run("unrepairable json becomes the trace", func(t *testing.T) {
		r := c.Parse(`{"function":`, "", true)
		assert.Equal(t, "", r.MainText)
		assert.Equal(t, `{"function":`, r.SpoilerText)
	})
}

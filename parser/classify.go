package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseResult is what a render layer needs to paint one bot message.
// An empty SpoilerText means no collapsible trace is shown. An empty
// MainText renders as a pending indicator.
type ParseResult struct {
	MainText     string `json:"mainText"`
	SpoilerText  string `json:"spoilerText,omitempty"`
	SpoilerTitle string `json:"spoilerTitle,omitempty"`
	Questions    string `json:"questions,omitempty"`
}

// HasTrace reports whether the result carries a trace section.
func (r ParseResult) HasTrace() bool {
	return r.SpoilerText != ""
}

// Classifier splits agent state into the trace channel and the answer channel.
// The zero value uses English labels.
type Classifier struct {
	Locale Locale
}

// Classify derives a ParseResult from a decoded state. Follow-up questions are
// always reported in Questions but only join MainText once streamComplete is
// set. The trace never carries questions, titles or contents of the function
// call, and the answer never carries reasoning steps, plan status or remaining
// steps.
func (c Classifier) Classify(state AgentState, priorQuestions string, streamComplete bool) ParseResult {
	main, reasoningIsBody := c.mainText(state, priorQuestions, streamComplete)

	result := ParseResult{
		MainText:    main,
		SpoilerText: c.trace(state, reasoningIsBody),
	}
	if fc := state.FunctionCall; fc != nil && len(fc.Questions) > 0 {
		result.Questions = strings.Join(fc.Questions, "\n")
	}
	return result
}

// Parse runs the whole pipeline over stored or streamed message content:
// empty content, the persisted spoiler form, the search-results form, JSON
// agent state, and finally opaque text, in that order.
func (c Classifier) Parse(content, priorQuestions string, streamComplete bool) ParseResult {
	result, _ := c.parse(content, priorQuestions, streamComplete)
	return result
}

type parseKind int

const (
	kindEmpty parseKind = iota
	kindPersisted
	kindSearchResults
	kindState
	kindRaw
)

func (c Classifier) parse(content, priorQuestions string, streamComplete bool) (ParseResult, parseKind) {
	prior := strings.TrimSpace(priorQuestions)

	if strings.TrimSpace(content) == "" {
		return ParseResult{MainText: prior}, kindEmpty
	}
	if result, ok := ParsePersisted(content); ok {
		return result, kindPersisted
	}
	if result, ok := c.parseSearchResults(content); ok {
		return result, kindSearchResults
	}
	if looksLikeJSON(content) {
		if state, err := Decode(content); err == nil {
			return c.Classify(state, priorQuestions, streamComplete), kindState
		}
	}

	return ParseResult{
		MainText:    prior,
		SpoilerText: strings.TrimSpace(content),
	}, kindRaw
}

var searchResultsPattern = regexp.MustCompile(`(?s)^([^:\n]+)\n\d{2}:\d{2}\nSearch Results:(.*)$`)

func (c Classifier) parseSearchResults(content string) (ParseResult, bool) {
	m := searchResultsPattern.FindStringSubmatch(content)
	if m == nil {
		return ParseResult{}, false
	}
	l := c.Locale.labels()
	return ParseResult{
		MainText:     "# " + strings.TrimSpace(m[1]),
		SpoilerText:  fmt.Sprintf("**%s:**\n%s", l.searchResults, strings.TrimSpace(m[2])),
		SpoilerTitle: l.searchResults,
	}, true
}

// mainText also reports whether the function reasoning was promoted to the
// answer body, so the trace can leave it out.
func (c Classifier) mainText(state AgentState, priorQuestions string, streamComplete bool) (string, bool) {
	var parts []string
	if q := strings.TrimSpace(priorQuestions); q != "" {
		parts = append(parts, q)
	}

	fc := state.FunctionCall
	if fc == nil {
		return strings.Join(parts, "\n\n"), false
	}

	if streamComplete && len(fc.Questions) > 0 {
		parts = append(parts, numbered(fc.Questions))
	}

	title, body := fc.Title, fc.Content
	reasoningIsBody := false
	if isTool(fc, AgentCompletionTool) {
		if blank(title) {
			title = state.CurrentSituation
		}
		if blank(body) && !blank(fc.Reasoning) {
			body = fc.Reasoning
			reasoningIsBody = true
		}
	}

	if !blank(title) {
		parts = append(parts, "# "+title)
	}
	if !blank(body) {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n"), reasoningIsBody
}

func (c Classifier) trace(state AgentState, reasoningIsBody bool) string {
	l := c.Locale.labels()
	var b strings.Builder

	writeList(&b, l.reasoningSteps, state.ReasoningSteps)
	writeField(&b, l.planStatus, state.PlanStatus)
	writeList(&b, l.remainingSteps, state.RemainingSteps)
	writeBool(&b, l, l.enoughData, state.EnoughData)
	writeBool(&b, l, l.taskCompleted, state.TaskCompleted)

	if fc := state.FunctionCall; fc != nil {
		c.writeFunction(&b, l, fc, reasoningIsBody)
	} else {
		writeField(&b, l.reasoning, state.Reasoning)
		writeField(&b, l.title, state.Title)
		writeField(&b, l.content, state.Content)
		writeField(&b, l.confidence, state.Confidence)
	}

	return strings.TrimSpace(b.String())
}

func (c Classifier) writeFunction(b *strings.Builder, l labels, fc *FunctionCall, reasoningIsBody bool) {
	var details []string
	item := func(label, value string) {
		if !blank(value) {
			details = append(details, fmt.Sprintf("- %s: %s", label, value))
		}
	}

	item(l.tool, fc.ToolDiscriminator)
	if !reasoningIsBody {
		item(l.reasoning, fc.Reasoning)
	}
	item(l.unclearTerms, strings.Join(fc.UnclearTerms, ", "))
	item(l.assumptions, strings.Join(fc.Assumptions, ", "))
	item(l.query, fc.Query)
	item(l.nextSteps, strings.Join(fc.NextSteps, ", "))

	if isTool(fc, AgentCompletionTool) {
		if len(fc.CompletedSteps) > 0 {
			details = append(details, fmt.Sprintf("**%s:**\n%s", l.completedSteps, numbered(fc.CompletedSteps)))
		}
		item(l.status, fc.Status)
	}

	if len(details) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n%s\n\n", l.function, strings.Join(details, "\n"))
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n%s\n\n", label, numbered(items))
}

func writeField(b *strings.Builder, label, value string) {
	if blank(value) {
		return
	}
	fmt.Fprintf(b, "**%s:** %s\n\n", label, value)
}

func writeBool(b *strings.Builder, l labels, label string, value *bool) {
	if value == nil {
		return
	}
	answer := l.no
	if *value {
		answer = l.yes
	}
	fmt.Fprintf(b, "**%s:** %s\n\n", label, answer)
}

func numbered(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}

func isTool(fc *FunctionCall, name string) bool {
	return strings.EqualFold(strings.TrimSpace(fc.ToolDiscriminator), name)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

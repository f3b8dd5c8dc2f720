package parser

import (
	"regexp"
	"strings"
)

var (
	persistedPattern = regexp.MustCompile(`(?s)^~~\{([^}]+)\}~~\n(.*?)(?:\n\n(.*))?$`)
	blankLines       = regexp.MustCompile(`\n[ \t]*\n+`)
)

// FormatPersisted renders a result into the string stored as message content:
//
//	~~{<title>}~~
//	<trace>
//
//	<main text>
//
// Blank lines inside the trace are collapsed because the first blank line
// after the header ends the trace. Results without a trace are stored as the
// bare main text.
func FormatPersisted(result ParseResult, locale Locale) string {
	trace := strings.TrimSpace(result.SpoilerText)
	if trace == "" {
		return result.MainText
	}

	title := strings.NewReplacer("}", "", "\n", " ").Replace(strings.TrimSpace(result.SpoilerTitle))
	if title == "" {
		title = locale.ThoughtsTitle()
	}

	var b strings.Builder
	b.WriteString("~~{")
	b.WriteString(title)
	b.WriteString("}~~\n")
	b.WriteString(blankLines.ReplaceAllString(trace, "\n"))
	b.WriteString("\n\n")
	b.WriteString(result.MainText)
	return b.String()
}

// ParsePersisted splits content produced by FormatPersisted. ok is false when
// the content does not start with a spoiler header.
func ParsePersisted(content string) (result ParseResult, ok bool) {
	m := persistedPattern.FindStringSubmatch(content)
	if m == nil {
		return ParseResult{}, false
	}
	return ParseResult{
		MainText:     strings.TrimSpace(m[3]),
		SpoilerText:  strings.TrimSpace(m[2]),
		SpoilerTitle: m[1],
	}, true
}

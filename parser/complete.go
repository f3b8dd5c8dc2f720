/*
Package parser turns the streamed agent state of a chat turn into the text a
chat client renders.

The agent backend streams cumulative JSON snapshots of its state. Any snapshot
may be cut mid-token, so the pipeline is:

	raw SSE chunk -> Frame -> candidate JSON -> Complete (on failure) -> Decode
	-> Classifier -> Session (regression guard, publish)

Nothing in this package returns an error past the Session boundary: decode
failures degrade to treating the raw text as an opaque trace.
*/
package parser

import "strings"

// Complete balances a truncated JSON candidate so that it has a chance to
// decode. It closes a dangling string, then unmatched arrays, then unmatched
// objects. It does not repair truncated keys, trailing commas or numbers cut
// mid-literal; those still fail to decode and fall through to the raw-text path.
func Complete(candidate string) string {
	var (
		openBraces   int
		openBrackets int
		inString     bool
		escaped      bool
	)

	for i := 0; i < len(candidate); i++ {
		ch := candidate[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			openBraces++
		case ch == '}':
			openBraces--
		case ch == '[':
			openBrackets++
		case ch == ']':
			openBrackets--
		}
	}

	var b strings.Builder
	b.Grow(len(candidate) + openBraces + openBrackets + 1)

	// A cut right after a backslash would escape the closing quote we add.
	if escaped && inString {
		b.WriteString(candidate[:len(candidate)-1])
	} else {
		b.WriteString(candidate)
	}

	if inString {
		b.WriteByte('"')
	}
	for ; openBrackets > 0; openBrackets-- {
		b.WriteByte(']')
	}
	for ; openBraces > 0; openBraces-- {
		b.WriteByte('}')
	}

	return b.String()
}

// looksLikeJSON reports whether text starts, after leading whitespace, like a
// JSON object.
func looksLikeJSON(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "{")
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"sgrchat/parser"
)

// ReplayOptions configures ReplayStream.
type ReplayOptions struct {
	Locale         parser.Locale
	TerminalMarker string
	// Updates writes every intermediate update as a JSON line before the final message.
	Updates bool
}

// ReplayReport summarizes a replayed stream.
type ReplayReport struct {
	Result    parser.ParseResult
	AgentID   string
	Completed bool // [DONE] was seen
	Stats     parser.SessionStats
}

// ReplayStream feeds a recorded SSE body through a session the way a live
// turn would be consumed and writes the persisted final message to w.
func ReplayStream(r io.Reader, w io.Writer, opts ReplayOptions) (ReplayReport, error) {
	var writeErr error
	sessionOpts := []parser.SessionOption{
		parser.WithLocale(opts.Locale),
		parser.WithTerminalMarker(opts.TerminalMarker),
	}
	if opts.Updates {
		encoder := json.NewEncoder(w)
		sessionOpts = append(sessionOpts, parser.WithPublisher(func(update parser.Update) {
			if update.Final || writeErr != nil {
				return
			}
			writeErr = encoder.Encode(update)
		}))
	}
	session := parser.NewSession(sessionOpts...)

	buf := make([]byte, 4096)
	for !session.Done() {
		n, err := r.Read(buf)
		if n > 0 {
			session.OnChunk(string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ReplayReport{}, fmt.Errorf("read stream: %w", err)
		}
	}

	result := session.Finalize()
	if writeErr != nil {
		return ReplayReport{}, fmt.Errorf("write update: %w", writeErr)
	}
	if _, err := fmt.Fprintln(w, parser.FormatPersisted(result, opts.Locale)); err != nil {
		return ReplayReport{}, fmt.Errorf("write result: %w", err)
	}

	return ReplayReport{
		Result:    result,
		AgentID:   session.AgentID(),
		Completed: session.Done(),
		Stats:     session.Stats(),
	}, nil
}

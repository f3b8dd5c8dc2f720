package parser

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// DefaultTerminalMarker is the heading whose appearance freezes the answer.
const DefaultTerminalMarker = "### Executive Summary"

var sessionLogger = logrus.WithField("component", "parser")

// Update is published after every successful classification of a turn.
type Update struct {
	Result        ParseResult `json:"result"`
	ContentLength int         `json:"contentLength"`
	AgentID       string      `json:"agentId,omitempty"`
	Final         bool        `json:"final"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Publisher receives updates in place of a render layer.
type Publisher func(Update)

// SessionStats summarizes what a session saw.
type SessionStats struct {
	Frames          int
	DroppedFrames   int
	Classifications int
	Frozen          bool
	Fallback        bool
}

// Session accumulates one bot turn. It is not safe for concurrent use; a turn
// is consumed sequentially off its transport.
type Session struct {
	classifier Classifier
	marker     string
	publish    Publisher
	now        func() time.Time

	pending          string
	accumulatedDelta strings.Builder
	toolArguments    strings.Builder
	lastSnapshotText string
	frozenAnswer     string

	agentID      string
	agentAdopted bool

	lastState *AgentState
	current   ParseResult
	final     *ParseResult
	done      bool
	stats     SessionStats
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLocale sets the label locale of the classifier.
func WithLocale(locale Locale) SessionOption {
	return func(s *Session) { s.classifier.Locale = locale }
}

// WithTerminalMarker overrides DefaultTerminalMarker. An empty marker
// disables the regression guard.
func WithTerminalMarker(marker string) SessionOption {
	return func(s *Session) { s.marker = marker }
}

// WithPublisher registers the receiver of incremental updates.
func WithPublisher(p Publisher) SessionOption {
	return func(s *Session) { s.publish = p }
}

// WithAgentID pins the session to an agent adopted by an earlier turn of the
// same conversation. Model names in frames no longer override it.
func WithAgentID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.agentID = id
			s.agentAdopted = true
		}
	}
}

// WithClock replaces time.Now for update timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates the accumulator for one bot turn.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		marker: DefaultTerminalMarker,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChunk consumes raw transport bytes. Lines split across chunks are joined
// before decoding. A `data: [DONE]` line finalizes the session; anything after
// it is ignored.
func (s *Session) OnChunk(rawChunk string) {
	if s.final != nil {
		return
	}
	s.pending += rawChunk
	for {
		i := strings.IndexByte(s.pending, '\n')
		if i < 0 {
			return
		}
		line := s.pending[:i]
		s.pending = s.pending[i+1:]
		s.handleLine(line)
		if s.final != nil {
			s.pending = ""
			return
		}
	}
}

// Finalize runs the last classification pass with the stream marked complete
// and returns the result. It is idempotent and may be called without a
// preceding [DONE] to salvage a broken stream.
func (s *Session) Finalize() ParseResult {
	if s.final != nil {
		return *s.final
	}
	if s.pending != "" {
		line := s.pending
		s.pending = ""
		s.handleLine(line)
		if s.final != nil {
			return *s.final
		}
	}

	payload := s.payload()
	result, kind := s.classifier.parse(payload, "", true)
	if kind == kindRaw && s.lastState != nil {
		// The last snapshot that decoded beats dumping raw JSON into the trace.
		result = s.classifier.Classify(*s.lastState, "", true)
		kind = kindState
	}
	s.stats.Fallback = kind == kindRaw
	if kind == kindRaw {
		sessionLogger.WithField("payloadLength", len(payload)).Debug("Final payload not decodable, using raw trace")
	}

	result = s.guard(result)
	s.final = &result
	s.current = result
	s.emit(true)
	return result
}

// Done reports whether the [DONE] sentinel was seen.
func (s *Session) Done() bool {
	return s.done
}

// AgentID returns the agent the session is pinned to, if any.
func (s *Session) AgentID() string {
	return s.agentID
}

// Current returns the latest result without finalizing.
func (s *Session) Current() ParseResult {
	return s.current
}

// FrozenAnswer returns the captured marker-bearing answer, if any.
func (s *Session) FrozenAnswer() string {
	return s.frozenAnswer
}

// Stats returns counters for logging and metrics.
func (s *Session) Stats() SessionStats {
	st := s.stats
	st.Frozen = s.frozenAnswer != ""
	return st
}

func (s *Session) handleLine(line string) {
	payload, ok := dataPayload(line)
	if !ok {
		return
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return
	}
	if payload == DoneSentinel {
		s.done = true
		s.pending = ""
		s.Finalize()
		return
	}

	var frame Frame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		s.stats.DroppedFrames++
		sessionLogger.WithError(err).WithField("frameLength", len(payload)).Debug("Dropping undecodable frame")
		return
	}
	s.stats.Frames++

	if s.apply(frame) {
		s.refresh()
	}
}

// apply folds a frame into the session and reports whether any content moved.
func (s *Session) apply(frame Frame) bool {
	if frame.Model != "" && !s.agentAdopted {
		s.agentID = frame.Model
		s.agentAdopted = true
	}

	changed := false
	for _, choice := range frame.choices() {
		if d := choice.Delta; d != nil {
			if d.Content != "" {
				s.accumulatedDelta.WriteString(d.Content)
				changed = true
			}
			for _, call := range d.ToolCalls {
				if call.Function != nil && call.Function.Arguments != "" {
					s.toolArguments.WriteString(call.Function.Arguments)
					changed = true
				}
			}
		}
		if m := choice.Message; m != nil && m.Content != "" {
			s.lastSnapshotText = m.Content
			changed = true
		}
	}

	if frame.Snapshot != nil {
		for _, choice := range frame.Snapshot.Choices {
			if m := choice.Message; m != nil && m.Content != "" {
				s.lastSnapshotText = m.Content
				changed = true
			}
		}
	}
	return changed
}

// refresh classifies the in-flight state. Snapshots that do not decode yet
// are skipped so the visible answer keeps its last good form, and states with
// no structured content are recorded without publishing.
func (s *Session) refresh() {
	text := s.lastSnapshotText
	if text == "" {
		if delta := s.accumulatedDelta.String(); looksLikeJSON(delta) {
			text = delta
		} else if args := s.toolArguments.String(); looksLikeJSON(args) {
			text = args
		}
	}
	if text == "" {
		return
	}

	state, err := Decode(text)
	if err != nil {
		return
	}
	s.lastState = &state
	if state.IsEmpty() {
		return
	}

	s.current = s.guard(s.classifier.Classify(state, "", false))
	s.emit(false)
}

// payload picks the authoritative text at finalize time: the snapshot unless
// it is empty, or shorter than the delta while not being the only JSON-looking
// candidate. Tool-call arguments are the last resort.
func (s *Session) payload() string {
	snapshot := s.lastSnapshotText
	delta := s.accumulatedDelta.String()

	switch {
	case snapshot == "":
		if delta != "" {
			return delta
		}
		return s.toolArguments.String()
	case delta == "":
		return snapshot
	case looksLikeJSON(snapshot) && !looksLikeJSON(delta):
		return snapshot
	case visibleLength(snapshot) < visibleLength(delta):
		return delta
	default:
		return snapshot
	}
}

// guard keeps a finished answer from being replaced by a later, shorter or
// marker-less one.
func (s *Session) guard(result ParseResult) ParseResult {
	if s.marker == "" {
		return result
	}
	if strings.Contains(result.MainText, s.marker) {
		if visibleLength(result.MainText) >= visibleLength(s.frozenAnswer) {
			s.frozenAnswer = result.MainText
			return result
		}
	}
	if s.frozenAnswer != "" {
		result.MainText = s.frozenAnswer
	}
	return result
}

func (s *Session) emit(final bool) {
	s.stats.Classifications++
	if s.publish == nil {
		return
	}
	s.publish(Update{
		Result:        s.current,
		ContentLength: visibleLength(s.current.MainText),
		AgentID:       s.agentID,
		Final:         final,
		Timestamp:     s.now(),
	})
}

func visibleLength(text string) int {
	return utf8.RuneCountInString(text)
}

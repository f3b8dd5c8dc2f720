package core

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"sgrchat/backend"
	"sgrchat/parser"
)

const reportState = `{"reasoning_steps":["look"],"function":{"tool_name_discriminator":"createreporttool","title":"Report","content":"Body text"}}`

func testConfig(backendURL string) *Config {
	return &Config{
		Port:              "0",
		BackendURL:        backendURL,
		DefaultModel:      "sgr_agent",
		MaxTokens:         1500,
		Temperature:       0.4,
		RequestTimeout:    5 * time.Second,
		ContextLimit:      10,
		SessionMaxAge:     time.Hour,
		CleanupInterval:   time.Hour,
		DefaultLocale:     parser.English,
		TerminalMarker:    parser.DefaultTerminalMarker,
		LogLevel:          "error",
		LogTruncateLength: 100,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func snapshotLine(t *testing.T, model, content string) string {
	t.Helper()
	b, err := json.Marshal(parser.Frame{
		Model: model,
		Snapshot: &parser.FrameEnvelope{Choices: []parser.FrameChoice{
			{Message: &parser.FrameMessage{Content: content}},
		}},
	})
	require.NoError(t, err)
	return "data: " + string(b) + "\n\n"
}

const doneLine = "data: [DONE]\n\n"

// fakeAgent is an agent backend that replays a scripted SSE body and records
// the completion requests it receives.
type fakeAgent struct {
	mu       sync.Mutex
	requests []backend.CompletionRequest
	status   int
	body     []string
	block    bool
	started  chan struct{}
}

func newFakeAgent(body ...string) *fakeAgent {
	return &fakeAgent{status: http.StatusOK, body: body, started: make(chan struct{}, 16)}
}

func (f *fakeAgent) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			_, _ = io.WriteString(w, `{"data":[{"id":"sgr_agent","object":"model"}]}`)
			return
		}

		var req backend.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()
		}

		if f.status != http.StatusOK {
			http.Error(w, "agent unavailable", f.status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, piece := range f.body {
			_, _ = io.WriteString(w, piece)
			flusher.Flush()
		}
		f.started <- struct{}{}
		if f.block {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeAgent) Requests() []backend.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.CompletionRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// readEvents decodes the `data:` payloads of an SSE response body.
func readEvents(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventTypes(events []StreamEvent) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

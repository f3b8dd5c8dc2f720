package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sgrchat/backend"
	"sgrchat/parser"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	store := NewConversationStore(time.Hour, time.Hour, testLogger())
	t.Cleanup(store.Close)
	return store
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	fresh := store.GetOrCreate("")
	require.NotEmpty(t, fresh.ID)
	assert.Same(t, fresh, store.GetOrCreate(fresh.ID))

	named := store.GetOrCreate("chat-1")
	assert.Equal(t, "chat-1", named.ID)

	got, ok := store.Get("chat-1")
	require.True(t, ok)
	assert.Same(t, named, got)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestPinAgentKeepsFirstAgent(t *testing.T) {
	t.Parallel()
	conversation := newTestStore(t).GetOrCreate("c")

	assert.False(t, conversation.PinAgent(""))
	assert.True(t, conversation.PinAgent("sgr_agent_1"))
	assert.False(t, conversation.PinAgent("sgr_agent_2"))
	assert.Equal(t, "sgr_agent_1", conversation.Agent())
}

func TestBotMessagesStoreBothForms(t *testing.T) {
	t.Parallel()
	conversation := newTestStore(t).GetOrCreate("c")

	result := parser.ParseResult{MainText: "# Report\n\nBody", SpoilerText: "**Reasoning steps:**\n1. look"}
	conversation.AddUserMessage("write a report")
	conversation.AddBotMessage("turn-1", result, parser.English)

	messages := conversation.RecentMessages(0)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Nil(t, messages[0].Result)

	bot := messages[1]
	assert.Equal(t, RoleAssistant, bot.Role)
	assert.Equal(t, "turn-1", bot.TurnID)
	require.NotNil(t, bot.Result)
	assert.Equal(t, result, *bot.Result)
	assert.Equal(t, "~~{Thoughts}~~\n**Reasoning steps:**\n1. look\n\n# Report\n\nBody", bot.Content)
}

func TestHistorySendsAnswerTextOnly(t *testing.T) {
	t.Parallel()
	conversation := newTestStore(t).GetOrCreate("c")

	conversation.AddUserMessage("first")
	conversation.AddBotMessage("t1", parser.ParseResult{MainText: "answer one", SpoilerText: "trace"}, parser.English)
	conversation.AddUserMessage("second")
	conversation.AddBotMessage("t2", parser.ParseResult{SpoilerText: "only a trace"}, parser.English)
	conversation.AddUserMessage("third")

	assert.Equal(t, []backend.Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer one"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleUser, Content: "third"},
	}, conversation.History(0))

	assert.Equal(t, []backend.Message{
		{Role: RoleUser, Content: "second"},
		{Role: RoleUser, Content: "third"},
	}, conversation.History(3))
}

func TestGetConversationContext(t *testing.T) {
	t.Parallel()
	conversation := newTestStore(t).GetOrCreate("c")

	assert.Empty(t, conversation.GetConversationContext(10))

	conversation.AddUserMessage("hello")
	conversation.AddBotMessage("t1", parser.ParseResult{MainText: "hi there"}, parser.English)

	assert.Equal(t,
		"Previous conversation context:\nHuman: hello\nAssistant: hi there\n\nCurrent conversation:\n",
		conversation.GetConversationContext(10))
}

func TestRemoveExpired(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	old := store.GetOrCreate("old")
	store.GetOrCreate("new")
	old.mutex.Lock()
	old.Updated = time.Now().Add(-2 * time.Hour)
	old.mutex.Unlock()

	assert.Equal(t, 1, store.removeExpired(time.Now()))
	_, ok := store.Get("old")
	assert.False(t, ok)
	_, ok = store.Get("new")
	assert.True(t, ok)
}

func TestAllAndStats(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first := store.GetOrCreate("first")
	first.AddUserMessage("a")
	time.Sleep(2 * time.Millisecond)
	second := store.GetOrCreate("second")
	second.AddUserMessage("b")
	second.PinAgent("sgr_agent_9")

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].ID)
	assert.Equal(t, "sgr_agent_9", all[0].AgentID)
	assert.Equal(t, 1, all[0].MessageCount)

	stats := store.Stats()
	assert.Equal(t, 2, stats["totalConversations"])
	assert.Equal(t, 1, stats["pinnedConversations"])
	assert.Equal(t, 2, stats["totalMessages"])
}

func TestSortSummariesNewestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	summaries := []ConversationSummary{
		{ID: "middle", Updated: base.Add(time.Minute)},
		{ID: "oldest", Updated: base},
		{ID: "newest", Updated: base.Add(time.Hour)},
	}
	sortSummaries(summaries)

	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"newest", "middle", "oldest"}, ids)
}

func TestViewIsACopy(t *testing.T) {
	t.Parallel()
	conversation := newTestStore(t).GetOrCreate("c")
	conversation.AddUserMessage("a")

	view := conversation.View()
	conversation.AddUserMessage("b")

	assert.Len(t, view.Messages, 1)
	assert.Equal(t, 1, view.MessageCount)
	assert.Equal(t, "c", view.ID)
}

/*
Package core provides conversation memory for the sgrchat service.

This file implements a thread-safe, in-memory store of conversations. A
conversation keeps its message history, with the structured result of every
bot turn, and the agent id the first turn pinned. Idle conversations expire.

Key components:
- ChatMessage: one stored message with its persisted and structured forms
- Conversation: message history plus the pinned agent
- ConversationStore: centralized storage with automatic cleanup
*/
package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sgrchat/backend"
	"sgrchat/parser"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single stored message. Content is the persisted string
// form; Result keeps the structured bot output so it never has to be
// re-derived from Content.
type ChatMessage struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	Result    *parser.ParseResult `json:"result,omitempty"`
	TurnID    string              `json:"turnId,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Conversation is one chat with the agent backend.
type Conversation struct {
	ID       string        `json:"id"`
	AgentID  string        `json:"agentId,omitempty"` // Adopted from the first turn's stream, reused afterwards
	Messages []ChatMessage `json:"messages"`
	Created  time.Time     `json:"created"`
	Updated  time.Time     `json:"updated"`
	mutex    sync.RWMutex
}

// ConversationSummary is the list view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agentId,omitempty"`
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// ConversationStore manages conversations with automatic expiry.
type ConversationStore struct {
	conversations   map[string]*Conversation
	mutex           sync.RWMutex
	maxAge          time.Duration
	cleanupInterval time.Duration
	logger          *logrus.Logger
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewConversationStore creates a store and starts its cleanup loop.
//
// Parameters:
//   - maxAge: Duration after which idle conversations are removed
//   - cleanupInterval: How often to run the cleanup process
//   - logger: Logger instance for operational monitoring
//
// Returns:
//   - *ConversationStore: Store ready for use; call Close to stop cleanup
func NewConversationStore(maxAge time.Duration, cleanupInterval time.Duration, logger *logrus.Logger) *ConversationStore {
	store := &ConversationStore{
		conversations:   make(map[string]*Conversation),
		maxAge:          maxAge,
		cleanupInterval: cleanupInterval,
		logger:          logger,
		stop:            make(chan struct{}),
	}

	go store.cleanupExpired()

	return store
}

// Close stops the cleanup loop.
func (m *ConversationStore) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// GetOrCreate returns the conversation with the given id, creating it when
// the id is empty or unknown.
func (m *ConversationStore) GetOrCreate(conversationID string) *Conversation {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	conversation, exists := m.conversations[conversationID]
	if !exists {
		now := time.Now()
		conversation = &Conversation{
			ID:       conversationID,
			Messages: make([]ChatMessage, 0),
			Created:  now,
			Updated:  now,
		}
		m.conversations[conversationID] = conversation
		m.logger.WithField("conversationID", conversationID).Info("Created new conversation")
	} else {
		conversation.touch()
	}

	return conversation
}

// Get retrieves a conversation without creating one.
func (m *ConversationStore) Get(conversationID string) (*Conversation, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conversation, exists := m.conversations[conversationID]
	return conversation, exists
}

// All returns summaries of every stored conversation, most recently updated first.
func (m *ConversationStore) All() []ConversationSummary {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	summaries := make([]ConversationSummary, 0, len(m.conversations))
	for _, conversation := range m.conversations {
		summaries = append(summaries, conversation.Summary())
	}
	sortSummaries(summaries)
	return summaries
}

// Stats returns operational statistics about stored conversations.
func (m *ConversationStore) Stats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	totalMessages := 0
	pinned := 0
	for _, conversation := range m.conversations {
		conversation.mutex.RLock()
		totalMessages += len(conversation.Messages)
		if conversation.AgentID != "" {
			pinned++
		}
		conversation.mutex.RUnlock()
	}

	return map[string]interface{}{
		"totalConversations":  len(m.conversations),
		"pinnedConversations": pinned,
		"totalMessages":       totalMessages,
	}
}

func (m *ConversationStore) cleanupExpired() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.removeExpired(time.Now())
		}
	}
}

// removeExpired deletes conversations idle for longer than maxAge and returns
// how many were removed.
func (m *ConversationStore) removeExpired(now time.Time) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	expired := make([]string, 0)
	for id, conversation := range m.conversations {
		conversation.mutex.RLock()
		idle := now.Sub(conversation.Updated)
		conversation.mutex.RUnlock()
		if idle > m.maxAge {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		delete(m.conversations, id)
	}

	if len(expired) > 0 {
		m.logger.WithFields(logrus.Fields{
			"expiredConversations":   len(expired),
			"remainingConversations": len(m.conversations),
			"cleanupInterval":        m.cleanupInterval,
		}).Info("Cleaned up expired conversations")
	}
	return len(expired)
}

func (c *Conversation) touch() {
	c.mutex.Lock()
	c.Updated = time.Now()
	c.mutex.Unlock()
}

// AddUserMessage appends a user message.
func (c *Conversation) AddUserMessage(content string) {
	c.addMessage(ChatMessage{Role: RoleUser, Content: content})
}

// AddBotMessage appends a bot turn. The persisted form is derived from result.
func (c *Conversation) AddBotMessage(turnID string, result parser.ParseResult, locale parser.Locale) {
	c.addMessage(ChatMessage{
		Role:    RoleAssistant,
		Content: parser.FormatPersisted(result, locale),
		Result:  &result,
		TurnID:  turnID,
	})
}

func (c *Conversation) addMessage(message ChatMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	message.Timestamp = time.Now()
	c.Messages = append(c.Messages, message)
	c.Updated = message.Timestamp
}

// PinAgent adopts agentID unless an agent is already pinned. It reports
// whether the pin changed.
func (c *Conversation) PinAgent(agentID string) bool {
	if agentID == "" {
		return false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.AgentID != "" {
		return false
	}
	c.AgentID = agentID
	return true
}

// Agent returns the pinned agent id, if any.
func (c *Conversation) Agent() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.AgentID
}

// RecentMessages returns a copy of the last limit messages in chronological order.
func (c *Conversation) RecentMessages(limit int) []ChatMessage {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	start := 0
	if limit > 0 && len(c.Messages) > limit {
		start = len(c.Messages) - limit
	}
	recent := make([]ChatMessage, len(c.Messages)-start)
	copy(recent, c.Messages[start:])
	return recent
}

// History converts recent messages into backend chat messages. Bot messages
// carry their answer text only; traces are not sent back to the agent.
func (c *Conversation) History(limit int) []backend.Message {
	recent := c.RecentMessages(limit)
	history := make([]backend.Message, 0, len(recent))
	for _, msg := range recent {
		content := msg.Content
		if msg.Result != nil {
			content = msg.Result.MainText
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		history = append(history, backend.Message{Role: msg.Role, Content: content})
	}
	return history
}

// GetConversationContext formats recent messages for inclusion in a prompt.
//
// Parameters:
//   - limit: Maximum number of recent messages to include
//
// Returns:
//   - string: Formatted conversation context, empty when there is no history
func (c *Conversation) GetConversationContext(limit int) string {
	history := c.History(limit)
	if len(history) == 0 {
		return ""
	}

	var context strings.Builder
	context.WriteString("Previous conversation context:\n")

	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			context.WriteString(fmt.Sprintf("Human: %s\n", msg.Content))
		case RoleAssistant:
			context.WriteString(fmt.Sprintf("Assistant: %s\n", msg.Content))
		}
	}

	context.WriteString("\nCurrent conversation:\n")
	return context.String()
}

// Summary returns the list view of the conversation.
func (c *Conversation) Summary() ConversationSummary {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return ConversationSummary{
		ID:           c.ID,
		AgentID:      c.AgentID,
		MessageCount: len(c.Messages),
		Created:      c.Created,
		Updated:      c.Updated,
	}
}

// View returns a copy safe to serialize while turns are running.
func (c *Conversation) View() ConversationView {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	messages := make([]ChatMessage, len(c.Messages))
	copy(messages, c.Messages)
	return ConversationView{
		ConversationSummary: ConversationSummary{
			ID:           c.ID,
			AgentID:      c.AgentID,
			MessageCount: len(c.Messages),
			Created:      c.Created,
			Updated:      c.Updated,
		},
		Messages: messages,
	}
}

// ConversationView is the detail view of a conversation.
type ConversationView struct {
	ConversationSummary
	Messages []ChatMessage `json:"messages"`
}

func sortSummaries(summaries []ConversationSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Updated.After(summaries[j].Updated)
	})
}

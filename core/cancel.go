/*
Package core provides turn cancellation management for the sgrchat service.

This file implements the TurnManager, which tracks in-flight bot turns. At most
one turn runs per conversation: starting a new turn cancels the previous one,
and its events are dropped by clients through the turn id they carry.
*/
package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ActiveTurn describes a running bot turn.
type ActiveTurn struct {
	TurnID         string    `json:"turnId"`
	ConversationID string    `json:"conversationId"`
	Started        time.Time `json:"started"`
}

type turnEntry struct {
	ActiveTurn
	cancel context.CancelFunc
}

// TurnManager tracks running turns and their cancellation functions.
type TurnManager struct {
	turns          map[string]*turnEntry // turn id -> entry
	byConversation map[string]string     // conversation id -> running turn id
	mutex          sync.Mutex
}

// NewTurnManager creates an empty turn manager.
func NewTurnManager() *TurnManager {
	return &TurnManager{
		turns:          make(map[string]*turnEntry),
		byConversation: make(map[string]string),
	}
}

// Start registers a turn of a conversation. A turn already running in the
// same conversation is cancelled and its id returned.
//
// Parameters:
//   - conversationID: Conversation the turn belongs to
//   - turnID: Unique identifier of the new turn
//   - cancel: Context cancellation function that stops the turn
//
// Returns:
//   - string: Id of the superseded turn, empty when none was running
func (tm *TurnManager) Start(conversationID, turnID string, cancel context.CancelFunc) string {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	superseded := ""
	if previous, ok := tm.byConversation[conversationID]; ok {
		if entry, exists := tm.turns[previous]; exists {
			entry.cancel()
			delete(tm.turns, previous)
			superseded = previous
		}
	}

	tm.turns[turnID] = &turnEntry{
		ActiveTurn: ActiveTurn{
			TurnID:         turnID,
			ConversationID: conversationID,
			Started:        time.Now(),
		},
		cancel: cancel,
	}
	tm.byConversation[conversationID] = turnID
	return superseded
}

// Finish removes a turn that ended on its own. It is a no-op for unknown or
// superseded turns.
func (tm *TurnManager) Finish(turnID string) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.remove(turnID)
}

// Cancel stops a running turn by id.
//
// Returns:
//   - bool: true if the turn was found and cancelled, false if not found
func (tm *TurnManager) Cancel(turnID string) bool {
	tm.mutex.Lock()
	entry, exists := tm.turns[turnID]
	if exists {
		tm.remove(turnID)
	}
	tm.mutex.Unlock()

	if exists {
		entry.cancel()
	}
	return exists
}

// Current returns the running turn of a conversation.
func (tm *TurnManager) Current(conversationID string) (string, bool) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	turnID, ok := tm.byConversation[conversationID]
	return turnID, ok
}

// Active lists running turns, oldest first.
func (tm *TurnManager) Active() []ActiveTurn {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	active := make([]ActiveTurn, 0, len(tm.turns))
	for _, entry := range tm.turns {
		active = append(active, entry.ActiveTurn)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Started.Before(active[j].Started)
	})
	return active
}

// remove must be called with the mutex held.
func (tm *TurnManager) remove(turnID string) {
	entry, exists := tm.turns[turnID]
	if !exists {
		return
	}
	delete(tm.turns, turnID)
	if tm.byConversation[entry.ConversationID] == turnID {
		delete(tm.byConversation, entry.ConversationID)
	}
}

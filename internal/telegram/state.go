package telegram

import (
	"sync"
	"time"
)

// State is a step of a user's conversation with the bot.
type State string

const (
	StateNone            State = ""
	StateAwaitingAddress State = "awaiting_address"
)

// stateTTL drops conversations the user walked away from.
const stateTTL = 10 * time.Minute

type conversation struct {
	state State
	since time.Time
}

// StateManager tracks per-user conversation state. Entries older than the
// TTL read as StateNone.
type StateManager struct {
	mu    sync.Mutex
	users map[int64]conversation
	ttl   time.Duration
	now   func() time.Time
}

func NewStateManager() *StateManager {
	return &StateManager{
		users: make(map[int64]conversation),
		ttl:   stateTTL,
		now:   time.Now,
	}
}

// Set moves a user to state. StateNone clears it.
func (sm *StateManager) Set(userID int64, state State) {
	if state == StateNone {
		sm.Clear(userID)
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.users[userID] = conversation{state: state, since: sm.now()}
}

// Get returns the user's current state.
func (sm *StateManager) Get(userID int64) State {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	c, ok := sm.users[userID]
	if !ok {
		return StateNone
	}
	if sm.now().Sub(c.since) > sm.ttl {
		delete(sm.users, userID)
		return StateNone
	}
	return c.state
}

func (sm *StateManager) Clear(userID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.users, userID)
}

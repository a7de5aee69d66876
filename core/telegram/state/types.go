package state

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a conversation.
type Session struct {
	ID        string
	State     State
	TempData  map[string]any
	StartedAt time.Time
	UpdatedAt time.Time
}

// Manager orchestrates sessions and FSM state transitions.
type Manager interface {
	Get(id int64) *Session
	Begin(id int64, sessionID string, st State) *Session
	Clear(id int64)
	Count() int

	SetTemp(id int64, key string, value any)
	GetTemp(id int64, key string) (any, bool)
	ClearTemp(id int64, key string)

	SetState(id int64, st State)
	GetState(id int64) State
	HasState(id int64) bool

	InProgress(id int64) bool
	Handle(st State, h tele.HandlerFunc)
	ManagerHandler(c tele.Context) error
}

package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/deliabot/core/logger"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	handlers map[State]tele.HandlerFunc
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
		handlers: make(map[State]tele.HandlerFunc),
		now:      time.Now,
	}
}

// Get returns a snapshot of the session, or an idle session when none exists.
// TempData values are shared with the stored session.
func (m *memoryManager) Get(id int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.sessions[id]; ok {
		cp := *session
		cp.TempData = make(map[string]any, len(session.TempData))
		for k, v := range session.TempData {
			cp.TempData[k] = v
		}
		return &cp
	}
	return &Session{State: StateIdle, TempData: make(map[string]any)}
}

// Begin replaces any existing session with a fresh one in state st.
func (m *memoryManager) Begin(id int64, sessionID string, st State) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session := &Session{
		ID:        sessionID,
		State:     st,
		TempData:  make(map[string]any),
		StartedAt: now,
		UpdatedAt: now,
	}
	m.sessions[id] = session
	cp := *session
	return &cp
}

// Clear removes the entire session.
func (m *memoryManager) Clear(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of sessions not in the idle state.
func (m *memoryManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.State != StateIdle {
			n++
		}
	}
	return n
}

func (m *memoryManager) ensure(id int64) *Session {
	session, ok := m.sessions[id]
	if !ok {
		now := m.now()
		session = &Session{State: StateIdle, TempData: make(map[string]any), StartedAt: now}
		m.sessions[id] = session
	}
	session.UpdatedAt = m.now()
	return session
}

// SetTemp stores a temporary key/value pair for the given session.
func (m *memoryManager) SetTemp(id int64, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id).TempData[key] = value
}

// GetTemp retrieves a temporary value by key.
func (m *memoryManager) GetTemp(id int64, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	val, ok := session.TempData[key]
	return val, ok
}

// ClearTemp removes a temporary key/value pair.
func (m *memoryManager) ClearTemp(id int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		delete(session.TempData, key)
	}
}

// SetState sets the FSM state, creating the session if necessary.
func (m *memoryManager) SetState(id int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id).State = st
}

// GetState returns the current FSM state, or StateIdle if none exists.
func (m *memoryManager) GetState(id int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[id]; ok {
		return sess.State
	}
	return StateIdle
}

// HasState checks whether a session is in a state other than idle.
func (m *memoryManager) HasState(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return ok && sess.State != StateIdle
}

// InProgress reports whether the conversation currently has an active FSM state.
func (m *memoryManager) InProgress(id int64) bool {
	return m.HasState(id)
}

// Handle associates a state with its handler.
func (m *memoryManager) Handle(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// ManagerHandler executes the handler registered for the chat's current state, if any.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	id := tghelpers.ConversationID(c)
	current := m.GetState(id)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("chat_id", id),
		slog.String("state", string(current)),
	)

	m.mu.RLock()
	handler, ok := m.handlers[current]
	m.mu.RUnlock()
	if ok {
		return handler(c)
	}
	return nil
}

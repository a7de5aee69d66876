package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryManagerLifecycle(t *testing.T) {
	m := NewMemoryManager()
	assert.Equal(t, StateIdle, m.GetState(1))
	assert.False(t, m.InProgress(1))

	s := m.Begin(1, "sess", State("choosing"))
	assert.Equal(t, "sess", s.ID)
	assert.True(t, m.InProgress(1))
	assert.Equal(t, 1, m.Count())

	m.SetTemp(1, "k", 42)
	v, ok := m.GetTemp(1, "k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	m.SetState(1, State("typing_reply"))
	assert.Equal(t, State("typing_reply"), m.Get(1).State)

	m.ClearTemp(1, "k")
	_, ok = m.GetTemp(1, "k")
	assert.False(t, ok)

	m.Clear(1)
	assert.False(t, m.HasState(1))
	assert.Equal(t, 0, m.Count())
}

func TestBeginReplacesSession(t *testing.T) {
	m := NewMemoryManager()
	m.Begin(7, "a", State("typing_choice"))
	m.SetTemp(7, "k", "v")

	m.Begin(7, "b", State("choosing"))
	_, ok := m.GetTemp(7, "k")
	assert.False(t, ok)
	assert.Equal(t, "b", m.Get(7).ID)
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewMemoryManager()
	m.Begin(1, "a", State("choosing"))
	m.Begin(2, "b", State("typing_reply"))
	m.Clear(1)

	assert.Equal(t, StateIdle, m.GetState(1))
	assert.Equal(t, State("typing_reply"), m.GetState(2))
}

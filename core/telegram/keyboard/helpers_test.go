package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneTimeButtons(t *testing.T) {
	m := OneTimeButtons([]string{"a", "b"}, []string{"c"})
	assert.True(t, m.OneTimeKeyboard)
	assert.True(t, m.ResizeKeyboard)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, Labels(m))
}

func TestRemoveKeyboard(t *testing.T) {
	m := RemoveKeyboard()
	assert.True(t, m.RemoveKeyboard)
	assert.Empty(t, Labels(m))
	assert.Nil(t, Labels(nil))
}

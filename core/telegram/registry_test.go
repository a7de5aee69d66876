package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/deliabot/core/config"
	"github.com/m3rciful/deliabot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "start", Aliases: []string{"go"}}))
	require.NoError(t, reg.RegisterCommand("/stats", commands.Command{Handler: noop, Description: "stats", AdminOnly: true}))
	assert.ErrorIs(t, reg.RegisterCommand("nope", commands.Command{Handler: noop, Description: "x"}), errNoSlash)
	assert.ErrorIs(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "dup"}), errDuplicateCommand)
	assert.ErrorIs(t, reg.RegisterCommand("/empty", commands.Command{Handler: noop}), errInvalidCommand)

	require.Len(t, reg.Commands(), 2)
	assert.Equal(t, []tele.Command{{Text: "start", Description: "start"}}, reg.ListCommands(true))
	assert.Len(t, reg.ListCommands(false), 2)

	key, _, ok := reg.LookupCommand("stats")
	require.True(t, ok)
	assert.Equal(t, "/stats", key)

	key, cmd, ok := reg.LookupCommand("/go")
	require.True(t, ok)
	assert.Equal(t, "/start", key)
	assert.Equal(t, "start", cmd.Description)

	_, _, ok = reg.LookupCommand("/missing")
	assert.False(t, ok)
}

func TestDefaultMiddlewares(t *testing.T) {
	names := func(ms []Middleware) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Name)
		}
		return out
	}
	assert.Equal(t, []string{"recover", "logger", "metrics"}, names(DefaultMiddlewares(nil, nil)))

	cfg := &coreconfig.Config{}
	cfg.RateLimit.IntervalMS = 500
	assert.Equal(t, []string{"recover", "rate_limit", "logger", "metrics"}, names(DefaultMiddlewares(cfg, nil)))
}

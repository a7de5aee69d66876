package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/deliabot/core/telegram"
	"github.com/m3rciful/deliabot/core/telegram/commands"
	"github.com/m3rciful/deliabot/core/telegram/teletest"

	tele "gopkg.in/telebot.v4"
)

type fakeFSM struct {
	active map[int64]bool
	calls  int
}

func (f *fakeFSM) InProgress(id int64) bool { return f.active[id] }

func (f *fakeFSM) ManagerHandler(tele.Context) error {
	f.calls++
	return nil
}

func TestTextRoutesPrefersActiveConversation(t *testing.T) {
	fsm := &fakeFSM{active: map[int64]bool{1: true}}
	routes := TextRoutes(fsm, tg.NewRegistry(), TextOptions{})
	require.Len(t, routes, 1)
	assert.Equal(t, tele.OnText, routes[0].Endpoint)

	require.NoError(t, routes[0].Handler(teletest.NewText(1, 1, "Caso")))
	assert.Equal(t, 1, fsm.calls)

	require.NoError(t, routes[0].Handler(teletest.NewText(2, 2, "Caso")))
	assert.Equal(t, 1, fsm.calls)
}

func TestTextRoutesFallsBackToUnknown(t *testing.T) {
	unknown := 0
	routes := TextRoutes(&fakeFSM{}, nil, TextOptions{UnknownText: func(tele.Context) error {
		unknown++
		return nil
	}})
	require.NoError(t, routes[0].Handler(teletest.NewText(1, 3, "hola")))
	assert.Equal(t, 1, unknown)
}

func TestCommandRoutesGuardAdmin(t *testing.T) {
	reg := tg.NewRegistry()
	called := 0
	require.NoError(t, reg.RegisterCommand("/stats", commands.Command{
		Handler:     func(tele.Context) error { called++; return nil },
		Description: "stats",
		AdminOnly:   true,
	}))
	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 7})
	require.Len(t, routes, 1)

	require.NoError(t, routes[0].Handler(teletest.NewText(1, 8, "/stats")))
	assert.Zero(t, called)
	require.NoError(t, routes[0].Handler(teletest.NewText(2, 7, "/stats")))
	assert.Equal(t, 1, called)
}

type sampleError struct{}

func (*sampleError) Error() string { return "sample" }

func TestDeriveErrorCode(t *testing.T) {
	coded := oops.Code("no_pending_category").Errorf("x")
	assert.Equal(t, "NO_PENDING_CATEGORY", deriveErrorCode(fmt.Errorf("wrap: %w", coded)))
	assert.Equal(t, "SAMPLEERROR", deriveErrorCode(&sampleError{}))
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("plain")))
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "start", normalizeHandlerName("/Start"))
	assert.Equal(t, "unknown", normalizeHandlerName(" "))
}

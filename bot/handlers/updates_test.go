package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/deliabot/bot/dialogue"
	"github.com/m3rciful/deliabot/bot/facts"
	tg "github.com/m3rciful/deliabot/core/telegram"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"
	"github.com/m3rciful/deliabot/core/telegram/router"
	"github.com/m3rciful/deliabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// okAPI answers every Bot API call with a sent message.
type okAPI struct{}

func (okAPI) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}
	body := `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func chatUpdate(id int, chat int64, text string) tele.Update {
	msg := &tele.Message{
		ID:     id,
		Text:   text,
		Chat:   &tele.Chat{ID: chat, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: chat},
	}
	if strings.HasPrefix(text, "/start") {
		msg.Entities = tele.Entities{{Type: tele.EntityCommand, Offset: 0, Length: len("/start")}}
	}
	return tele.Update{ID: id, Message: msg}
}

// liveBot wires the handlers into an offline telebot the way RunTelegram does.
func liveBot(t *testing.T) (*tele.Bot, *tg.Sequencer, state.Manager, *memArchive) {
	t.Helper()
	tghelpers.SetDispatcher(nil)

	arch := &memArchive{}
	mgr := state.NewMemoryManager()
	b := NewBot(NewDriver(Options{Sessions: mgr, Archive: arch}), arch, nil)
	reg := tg.NewRegistry()
	require.NoError(t, b.Register(reg))

	bot, err := tele.NewBot(tele.Settings{
		Offline:     true,
		Synchronous: true,
		Client:      &http.Client{Transport: okAPI{}},
		OnError:     func(err error, _ tele.Context) { t.Errorf("handler: %v", err) },
	})
	require.NoError(t, err)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{})
	routes = append(routes, router.TextRoutes(mgr, reg, router.TextOptions{})...)
	seq := tg.NewSequencer(tg.SequencerOptions{Workers: 4})
	tg.Wire(bot, seq, tg.RunOptions{Routes: routes})
	return bot, seq, mgr, arch
}

func TestUpdatesOfOneChatApplyInArrivalOrder(t *testing.T) {
	bot, seq, mgr, arch := liveBot(t)

	script := []string{"/start", "Caso", "robo", dialogue.CustomLabel, "Lugar del hecho", "Calle Falsa 123", dialogue.ExitLabel}
	const chats = 40
	id := 0
	for i, msg := range script {
		for chat := int64(1); chat <= chats; chat++ {
			// Odd chats stop before saying goodbye.
			if i == len(script)-1 && chat%2 == 1 {
				continue
			}
			id++
			bot.ProcessUpdate(chatUpdate(id, chat, msg))
		}
	}
	seq.Close()

	want := []facts.Entry{
		{Category: "Caso", Value: "robo"},
		{Category: "Lugar del hecho", Value: "Calle Falsa 123"},
	}

	reports := arch.all()
	require.Len(t, reports, chats/2)
	for _, r := range reports {
		assert.Zero(t, r.ChatID%2, "chat %d", r.ChatID)
		assert.Equal(t, want, r.Facts, "chat %d", r.ChatID)
	}

	assert.Equal(t, chats/2, mgr.Count())
	for chat := int64(1); chat <= chats; chat += 2 {
		assert.Equal(t, state.State(dialogue.Choosing), mgr.GetState(chat), "chat %d", chat)
		v, ok := mgr.GetTemp(chat, factsKey)
		require.True(t, ok, "chat %d", chat)
		store := v.(*facts.Store)
		assert.Equal(t, want, store.Entries(), "chat %d", chat)
		_, pending := store.Pending()
		assert.False(t, pending, "chat %d", chat)
	}
}

func TestStartMidConversationThroughTelebot(t *testing.T) {
	bot, seq, mgr, _ := liveBot(t)

	for i, msg := range []string{"/start", "Fecha", "/start"} {
		bot.ProcessUpdate(chatUpdate(i+1, 7, msg))
	}
	seq.Close()

	assert.Equal(t, state.State(dialogue.Choosing), mgr.GetState(7))
	v, ok := mgr.GetTemp(7, factsKey)
	require.True(t, ok)
	store := v.(*facts.Store)
	assert.Zero(t, store.Len())
	_, pending := store.Pending()
	assert.False(t, pending)
}

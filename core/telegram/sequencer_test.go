package telegram

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T, onError func(error, tele.Context)) *tele.Bot {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true, OnError: onError})
	require.NoError(t, err)
	return bot
}

func textUpdate(id int, chat int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		ID:     id,
		Text:   text,
		Chat:   &tele.Chat{ID: chat, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: chat},
	}}
}

func TestSequencerKeepsArrivalOrderPerChat(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu  sync.Mutex
		got = map[int64][]string{}
	)
	bot := offlineBot(t, nil)
	seq := NewSequencer(SequencerOptions{Workers: 3, QueueSize: 4})
	Wire(bot, seq, RunOptions{Routes: []Route{{
		Endpoint: tele.OnText,
		Handler: func(c tele.Context) error {
			// Later messages finish faster, so any reordering would show.
			if c.Text() == "0" {
				time.Sleep(5 * time.Millisecond)
			}
			mu.Lock()
			got[c.Chat().ID] = append(got[c.Chat().ID], c.Text())
			mu.Unlock()
			return nil
		},
	}}})

	chats := []int64{1, 2, 3, 4, 5}
	id := 0
	for i := 0; i < 20; i++ {
		for _, chat := range chats {
			id++
			bot.ProcessUpdate(textUpdate(id, chat, fmt.Sprint(i)))
		}
	}
	seq.Close()

	for _, chat := range chats {
		require.Len(t, got[chat], 20, "chat %d", chat)
		for i, v := range got[chat] {
			assert.Equal(t, fmt.Sprint(i), v, "chat %d", chat)
		}
	}
}

func TestSequencerReportsHandlerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	var (
		mu   sync.Mutex
		errs []error
	)
	bot := offlineBot(t, func(err error, _ tele.Context) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	seq := NewSequencer(SequencerOptions{})
	Wire(bot, seq, RunOptions{Routes: []Route{{
		Endpoint: tele.OnText,
		Handler:  func(tele.Context) error { return boom },
	}}})

	bot.ProcessUpdate(textUpdate(1, 9, "hola"))
	seq.Close()

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestSequencerRunsInlineAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	seq := NewSequencer(SequencerOptions{Workers: 1})
	seq.Close()
	seq.Close()

	ran := false
	h := seq.Middleware(nil)(func(tele.Context) error {
		ran = true
		return nil
	})
	bot := offlineBot(t, nil)
	require.NoError(t, h(bot.NewContext(textUpdate(1, 3, "x"))))
	assert.True(t, ran)
}

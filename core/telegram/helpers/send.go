package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/deliabot/core/logger"
	"github.com/m3rciful/deliabot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes the send helpers through d. Nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// ConversationID resolves the conversation key for an update: the chat id,
// falling back to the sender for updates without a chat.
func ConversationID(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}

// sendAsync queues run on the chat's worker. It runs inline when no
// dispatcher is set or the queue rejects the job.
func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := dispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	err := disp.Enqueue(ctx, ConversationID(c), action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "send.inline",
			slog.String("action", action),
			slog.String("reason", err.Error()),
		)
		return run()
	default:
		return err
	}
}

// SendText sends text without a parse mode to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var args []any
	if len(opts) > 0 && opts[0] != nil {
		args = append(args, opts[0])
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text, args...)
	})
}

// SendWithMarkup sends text with markup attached. A nil markup sends plain text.
func SendWithMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if markup == nil {
		return SendText(c, text)
	}
	return SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}

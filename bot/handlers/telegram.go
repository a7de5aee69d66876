package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/m3rciful/deliabot/bot/archive"
	"github.com/m3rciful/deliabot/bot/dialogue"
	"github.com/m3rciful/deliabot/core/logger"
	tg "github.com/m3rciful/deliabot/core/telegram"
	"github.com/m3rciful/deliabot/core/telegram/commands"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"
	"github.com/m3rciful/deliabot/core/telegram/keyboard"
	"github.com/m3rciful/deliabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// SenderStats reports outbound delivery counters.
type SenderStats interface {
	ErrorCount() uint64
	SentCount() uint64
}

// Bot adapts the Driver to telebot.
type Bot struct {
	driver  *Driver
	archive archive.Archive
	sender  SenderStats
}

// NewBot wraps driver. arch and sender only feed /stats and may be nil.
func NewBot(driver *Driver, arch archive.Archive, sender SenderStats) *Bot {
	if arch == nil {
		arch = archive.Nop{}
	}
	return &Bot{driver: driver, archive: arch, sender: sender}
}

// Register adds the bot commands to reg and binds the text handler to every
// active conversation state.
func (b *Bot) Register(reg *tg.Registry) error {
	err := errors.Join(
		reg.RegisterCommand("/start", commands.Command{
			Handler:     b.OnStart,
			Description: "Empezar a registrar datos",
		}),
		reg.RegisterCommand("/stats", commands.Command{
			Handler:     b.OnStats,
			Description: "Estado del bot",
			AdminOnly:   true,
		}),
	)
	if err != nil {
		return oops.In("handlers").Code("register").Wrap(err)
	}

	sessions := b.driver.Sessions()
	for _, st := range []dialogue.State{dialogue.Choosing, dialogue.TypingChoice, dialogue.TypingReply} {
		sessions.Handle(state.State(st), b.OnText)
	}
	return nil
}

// OnStart opens a new conversation.
func (b *Bot) OnStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	out := b.driver.Start(ctx, inboundFrom(c))
	return deliver(ctx, c, out)
}

// OnText feeds text to an active conversation.
func (b *Bot) OnText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	out, handled, err := b.driver.Handle(ctx, inboundFrom(c))
	if err != nil || !handled {
		return err
	}
	return deliver(ctx, c, out)
}

// OnStats reports live conversation and delivery counters to the admin.
func (b *Bot) OnStats(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "stats")

	archived, err := b.archive.Count(ctx)
	if err != nil {
		logger.Archive.LogAttrs(ctx, slog.LevelWarn, "count failed",
			slog.String("event", "archive.count"),
			slog.String("err", err.Error()),
		)
	}

	var sent, failed uint64
	if b.sender != nil {
		sent = b.sender.SentCount()
		failed = b.sender.ErrorCount()
	}

	lines := []string{
		fmt.Sprintf("Conversaciones activas: %d", b.driver.Sessions().Count()),
		fmt.Sprintf("Informes archivados: %d", archived),
		fmt.Sprintf("Mensajes enviados: %d", sent),
		fmt.Sprintf("Errores de envío: %d", failed),
	}
	return tghelpers.SendText(c, strings.Join(lines, "\n"))
}

func deliver(ctx context.Context, c tele.Context, out Outbound) error {
	if out.Text == "" {
		return nil
	}
	if err := tghelpers.SendWithMarkup(c, out.Text, replyMarkup(out.Keyboard)); err != nil {
		logger.Warn(ctx, "tg", "deliver.fail",
			slog.Int64("chat_id", out.ConversationID),
			slog.String("keyboard", out.Keyboard.String()),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

func replyMarkup(k dialogue.Keyboard) *tele.ReplyMarkup {
	switch k {
	case dialogue.KeyboardMenu:
		return keyboard.OneTimeButtons(dialogue.Menu()...)
	case dialogue.KeyboardRemove:
		return keyboard.RemoveKeyboard()
	default:
		return nil
	}
}

func inboundFrom(c tele.Context) Inbound {
	in := Inbound{
		ConversationID: tghelpers.ConversationID(c),
		Text:           c.Text(),
		Kind:           dialogue.KindText,
	}
	if u := c.Sender(); u != nil {
		in.UserID = u.ID
	}
	if isCommand(c.Message()) {
		in.Kind = dialogue.KindCommand
	}
	return in
}

// isCommand reports whether m opens with a bot_command entity, the way
// Telegram marks "/name" at the start of a message.
func isCommand(m *tele.Message) bool {
	if m == nil || len(m.Entities) == 0 {
		return false
	}
	first := m.Entities[0]
	return first.Type == tele.EntityCommand && first.Offset == 0
}

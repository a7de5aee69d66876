package router

import (
	"time"

	tg "github.com/m3rciful/deliabot/core/telegram"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// FSM is the part of the state manager the text route needs.
type FSM interface {
	InProgress(id int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions configures TextRoutes.
type TextOptions struct {
	// UnknownText answers text nothing else claimed. Nil drops it silently.
	UnknownText tele.HandlerFunc
}

// TextRoutes returns the tele.OnText route. Text goes, in order, to the FSM
// when the conversation has an active state, to a registered command or
// alias, to the registry fallback, and finally to opts.UnknownText.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		s := summary{start: time.Now()}
		name, h := resolveText(c, fsm, reg, opts)
		if h == nil {
			s.handler, s.status, s.outcome = "unknown_text", "skip", "ok"
			s.log(c, nil)
			return nil
		}
		s.handler = name
		return s.run(c, h)
	}
	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}

func resolveText(c tele.Context, fsm FSM, reg *tg.Registry, opts TextOptions) (string, tele.HandlerFunc) {
	if fsm != nil && fsm.InProgress(tghelpers.ConversationID(c)) {
		return "fsm", fsm.ManagerHandler
	}
	if reg != nil {
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
			return normalizeHandlerName(key), cmd.Handler
		}
		if fb := reg.TextFallback(); fb != nil {
			return "fallback", fb
		}
	}
	return "unknown_text", opts.UnknownText
}

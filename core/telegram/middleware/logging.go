package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/deliabot/core/logger"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers logged update ids for a short while, so an update
// passing the middleware twice is logged once.
type seenUpdates struct {
	mu   sync.Mutex
	ttl  time.Duration
	last time.Time
	ids  map[int]time.Time
}

var seen = &seenUpdates{ttl: 10 * time.Second, ids: make(map[int]time.Time)}

func (s *seenUpdates) firstSeen(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.last) > s.ttl {
		for k, at := range s.ids {
			if now.Sub(at) > s.ttl {
				delete(s.ids, k)
			}
		}
		s.last = now
	}
	if _, dup := s.ids[id]; dup {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware attaches the update logging context and writes a sampled
// update.received line at debug level.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		updateID := c.Update().ID
		if logger.ShouldSampleDebug() && seen.firstSeen(updateID, time.Now()) {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receivedAttrs(c)...)
		}
		return next(c)
	}
}

func receivedAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	if c.Message() != nil {
		if text := c.Text(); text != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(text, 256)))
		}
	}
	return attrs
}

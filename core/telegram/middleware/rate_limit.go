package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/deliabot/core/logger"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds that bypass the limit: message, callback, inline_query, other.
	Exclude map[string]struct{}
	// OnLimited runs instead of the handler for a dropped update. Its error is ignored.
	OnLimited tele.HandlerFunc
}

type lastSeen struct {
	mu sync.Mutex
	at map[int64]time.Time
}

// admit records now for user unless the previous update is closer than interval.
func (l *lastSeen) admit(user int64, now time.Time, interval time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.at[user]; ok && now.Sub(prev) < interval {
		return false
	}
	l.at[user] = now
	return true
}

func updateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return "callback"
	case u.Message != nil:
		return "message"
	case u.Query != nil:
		return "inline_query"
	default:
		return "other"
	}
}

// RateLimitMiddleware drops updates arriving faster than opts.Interval per user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	seen := &lastSeen{at: make(map[int64]time.Time)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}
			if seen.admit(user.ID, time.Now(), opts.Interval) {
				return next(c)
			}

			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const repliesKey = "deliabot.replies"

// replies counts what a handler sent back. Sends may complete on dispatcher
// workers, so the fields are atomic.
type replies struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// countingContext observes Send and Reply on the wrapped context.
type countingContext struct {
	tele.Context
	r *replies
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.count(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.count(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) count(err error, opts []any) error {
	if err != nil {
		return err
	}
	c.r.messages.Add(1)
	if carriesMarkup(opts) {
		c.r.keyboard.Store(true)
	}
	return nil
}

func carriesMarkup(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}

// MessageMetricsMiddleware counts the replies sent while handling an update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		r := &replies{}
		c.Set(repliesKey, r)
		return next(countingContext{Context: c, r: r})
	}
}

// GetCounters returns the number of replies sent so far and whether any
// carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	r, ok := c.Get(repliesKey).(*replies)
	if !ok {
		return 0, false
	}
	return int(r.messages.Load()), r.keyboard.Load()
}

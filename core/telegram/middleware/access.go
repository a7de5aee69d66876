package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions configures AdminOnlyMiddleware.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only AdminID through. Without an admin id
// nobody passes. Rejected updates go to OnReject when set.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	isAdmin := func(c tele.Context) bool {
		u := c.Sender()
		return opts.AdminID != 0 && u != nil && u.ID == opts.AdminID
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			switch {
			case isAdmin(c):
				return next(c)
			case opts.OnReject != nil:
				return opts.OnReject(c)
			default:
				return nil
			}
		}
	}
}

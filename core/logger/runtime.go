package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyRID
	keyMeta
	keyHandler
	keySession
)

// UpdateMeta identifies the Telegram update a log line belongs to.
type UpdateMeta struct {
	UpdateID int
	UserID   int64
	ChatID   int64
}

func withValue(ctx context.Context, key ctxKey, val any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, val)
}

func valueFrom[T any](ctx context.Context, key ctxKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger stores log in ctx. A nil logger stores the base logger.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return withValue(ctx, keyLogger, L)
	}
	return withValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := valueFrom[*slog.Logger](ctx, keyLogger); ok && l != nil {
		return l
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withValue(ctx, keyRID, rid)
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string {
	rid, _ := valueFrom[string](ctx, keyRID)
	return rid
}

// WithUpdateMeta attaches update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withValue(ctx, keyMeta, UpdateMeta{UpdateID: updateID, UserID: userID, ChatID: chatID})
}

func metaFrom(ctx context.Context) (UpdateMeta, bool) {
	return valueFrom[UpdateMeta](ctx, keyMeta)
}

// UserIDFrom returns the Telegram user id from ctx.
func UserIDFrom(ctx context.Context) int64 {
	m, _ := metaFrom(ctx)
	return m.UserID
}

// ChatIDFrom returns the chat id from ctx.
func ChatIDFrom(ctx context.Context) int64 {
	m, _ := metaFrom(ctx)
	return m.ChatID
}

// UpdateIDFrom returns the update id from ctx.
func UpdateIDFrom(ctx context.Context) int {
	m, _ := metaFrom(ctx)
	return m.UpdateID
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return withValue(ctx, keyHandler, HandlerFrom(ctx))
	}
	return withValue(ctx, keyHandler, handler)
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string {
	h, _ := valueFrom[string](ctx, keyHandler)
	return h
}

// WithSessionID attaches the conversation session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return withValue(ctx, keySession, SessionIDFrom(ctx))
	}
	return withValue(ctx, keySession, sessionID)
}

// SessionIDFrom returns the session id, if any.
func SessionIDFrom(ctx context.Context) string {
	sid, _ := valueFrom[string](ctx, keySession)
	return sid
}

// Sanitize drops control and format characters except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and truncates it to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}

// BuildRID formats a correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot-separated base36 numbers.
// Other input is returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

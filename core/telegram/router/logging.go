package router

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/deliabot/core/logger"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"
	"github.com/m3rciful/deliabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summary writes the single handler.handled line of a routed update.
type summary struct {
	handler string
	start   time.Time
	// status and outcome replace the values derived from the handler error.
	status  string
	outcome string
}

func (s summary) run(c tele.Context, h tele.HandlerFunc) error {
	tghelpers.WithHandler(c, s.handler)
	err := h(c)
	s.log(c, err)
	return err
}

func (s summary) log(c tele.Context, err error) {
	derived := "ok"
	if err != nil {
		derived = "fail"
	}
	msgs, kb := middleware.GetCounters(c)
	attrs := []slog.Attr{
		slog.String("status", orDefault(s.status, derived)),
		slog.String("outcome", orDefault(s.outcome, derived)),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(s.start)).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", s.handler),
		)
	}
	logger.LogEvent(tghelpers.WithHandler(c, s.handler), logger.TG, slog.LevelInfo, "handler.handled", attrs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// normalizeHandlerName turns "/Start Now" into "start_now".
func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode prefers an explicit error code and falls back to the
// error's type name, upper-cased.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	code := errorCode(err)
	if code == "" {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		code = t.Name()
	}
	if code == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
}

// errorCode reads Code() from the first error in the chain exposing it,
// whether it returns a string (oops) or another value.
func errorCode(err error) string {
	var str interface{ Code() string }
	if errors.As(err, &str) {
		return strings.TrimSpace(str.Code())
	}
	var anyCode interface{ Code() any }
	if errors.As(err, &anyCode) {
		if v := anyCode.Code(); v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return ""
}

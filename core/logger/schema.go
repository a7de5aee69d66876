package logger

import (
	"log/slog"
	"strings"
)

// Outcome values; unknown outcomes are dropped from the line.
var knownOutcome = map[string]struct{}{
	"ok": {}, "fail": {}, "cancelled": {}, "rate_limited": {},
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// normalizeEnums lowercases enum-like fields and drops unknown outcomes.
func normalizeEnums(fields map[string]any) {
	for _, key := range []string{"status", "state", "next_state", "outcome"} {
		s, ok := fields[key].(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if key == "outcome" {
			if _, known := knownOutcome[s]; !known {
				delete(fields, key)
				continue
			}
		}
		fields[key] = s
	}
}

// defaultKeyOrder puts identity first, then conversation fields, then timings
// and errors. Keys not listed follow in alphabetical order.
var defaultKeyOrder = []string{
	// identity
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "session_id", "update_id", "user_id", "chat_id", "chat_type", "handler",
	// conversation
	"state", "next_state", "category", "facts", "keyboard", "outcome",
	// delivery
	"duration_ms", "messages", "kb", "count", "action", "endpoint", "attempts",
	// update payload
	"payload", "lang", "username",
	// infrastructure
	"mode", "listen", "public_url", "db", "host", "port",
	// failure
	"err", "err_code", "cause", "rate_limited",
}

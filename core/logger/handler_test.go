package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLine(t *testing.T, format logFormat, emit func(*slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	sink := newAsyncSink(1024, buf)
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		sink:   sink,
		format: format,
	})
	emit(slog.New(h))
	require.NoError(t, sink.Close())
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "rid-123"), 42, 7, 9)
	line := captureLine(t, formatKV, func(l *slog.Logger) {
		LogEvent(ctx, l.With("component", "app"), slog.LevelInfo, "test.event",
			slog.String("cause", "unit"),
			slog.String("status", "OK"),
		)
	})

	tokens := strings.Fields(line)
	want := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123",
		"update_id=42", "user_id=7", "chat_id=9"}
	require.GreaterOrEqual(t, len(tokens), len(want), line)
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %q, want prefix %q", i, tokens[i], prefix)
	}
	assert.Equal(t, "cause=unit", tokens[len(tokens)-1])
}

func TestStructuredHandlerJSON(t *testing.T) {
	ctx := WithRID(Background(), BuildRID(11, 33, 22))
	line := captureLine(t, formatJSON, func(l *slog.Logger) {
		LogEvent(ctx, l.With("component", "dialogue"), slog.LevelError, "transition.failed",
			slog.String("err", "boom"),
			slog.Group("db", slog.String("host", "localhost")),
			slog.Duration("duration", 2400*time.Microsecond),
		)
	})

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &fields))
	assert.Equal(t, "ERROR", fields["level"])
	assert.Equal(t, "dialogue", fields["component"])
	assert.Equal(t, CompactRID("11:33:22"), fields["rid"])
	assert.Equal(t, "11:33:22", fields["rid_full"])
	assert.Equal(t, "localhost", fields["db.host"])
	assert.EqualValues(t, 2, fields["duration_ms"])
	assert.True(t, strings.HasPrefix(line, `{"ts":`), line)
	assert.Less(t, strings.Index(line, `"event"`), strings.Index(line, `"rid"`))
}

func TestStructuredHandlerKVOmitsFullRID(t *testing.T) {
	ctx := WithRID(Background(), "123:456:789")
	line := captureLine(t, formatKV, func(l *slog.Logger) {
		LogEvent(ctx, l, slog.LevelInfo, "rid.test")
	})
	assert.Contains(t, line, "rid="+CompactRID("123:456:789"))
	assert.NotContains(t, line, "rid_full=")
}

func TestStructuredHandlerDefaultsAndEnums(t *testing.T) {
	line := captureLine(t, formatKV, func(l *slog.Logger) {
		l.Info("plain message",
			slog.String("outcome", "weird"),
			slog.String("state", "TYPING_REPLY"),
			slog.String("empty", ""),
			slog.String("text", "two words"),
		)
	})
	assert.Contains(t, line, "component=app")
	assert.Contains(t, line, `event="plain message"`)
	assert.Contains(t, line, "state=typing_reply")
	assert.Contains(t, line, `text="two words"`)
	assert.NotContains(t, line, "outcome=")
	assert.NotContains(t, line, "empty=")
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := newAsyncSink(1024, buf)
	h := newStructuredHandler(handlerConfig{level: slog.LevelWarn, sink: sink, format: formatKV})
	slog.New(h).Info("dropped")
	slog.New(h).Warn("kept")
	require.NoError(t, sink.Close())
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "event=kept")
}

func TestAsyncSinkClosed(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := newAsyncSink(0, buf)
	require.NoError(t, sink.Write([]byte("a\n")))
	require.NoError(t, sink.Flush())
	assert.Equal(t, "a\n", buf.String())
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Write([]byte("b\n")), errSinkClosed)
}

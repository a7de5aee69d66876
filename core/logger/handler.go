package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON    logFormat = "json"
	formatKV      logFormat = "kv"
	formatConsole logFormat = "console"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	sink     *asyncSink
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one flat line per record, JSON or key=value,
// with keys in a fixed order so lines stay greppable and diffable.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	preset map[string]any
	group  string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.sink == nil {
		return errors.New("logger: sink not initialized")
	}

	fields := make(map[string]any, len(h.preset)+r.NumAttrs()+8)
	for k, v := range h.preset {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(fields, h.group, a)
		return true
	})
	addContextFields(ctx, fields)

	fields["ts"] = r.Time.UTC().Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = levelName(r.Level)
	setDefault(fields, "event", cmp.Or(r.Message, "unknown"))
	setDefault(fields, "component", "app")

	isJSON := h.cfg.format == formatJSON
	if rid, ok := fields["rid"].(string); ok {
		if short := CompactRID(rid); short != rid {
			fields["rid"] = short
			if isJSON {
				setDefault(fields, "rid_full", rid)
			}
		}
	}
	normalizeEnums(fields)
	dropEmpty(fields)

	var line []byte
	if isJSON {
		var err error
		if line, err = encodeJSON(fields, h.keys(fields)); err != nil {
			return err
		}
	} else {
		line = encodeKV(fields, h.keys(fields))
	}
	return h.cfg.sink.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = make(map[string]any, len(h.preset)+len(attrs))
	for k, v := range h.preset {
		clone.preset[k] = v
	}
	for _, a := range attrs {
		addAttr(clone.preset, h.group, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

// keys returns the field names: configured order first, the rest sorted.
func (h *structuredHandler) keys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	unranked := len(h.rank)
	slices.SortFunc(keys, func(a, b string) int {
		ra, okA := h.rank[a]
		if !okA {
			ra = unranked
		}
		rb, okB := h.rank[b]
		if !okB {
			rb = unranked
		}
		return cmp.Or(cmp.Compare(ra, rb), strings.Compare(a, b))
	})
	return keys
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// addAttr flattens groups into dotted keys.
func addAttr(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			addAttr(fields, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := fieldValue(key, a.Value); ok {
		fields[k] = v
	}
}

func fieldValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey puts the unit into the key: duration -> duration_ms.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func setDefault(fields map[string]any, key string, val any) {
	if s, ok := fields[key].(string); ok && s != "" {
		return
	}
	fields[key] = val
}

func dropEmpty(fields map[string]any) {
	for k, v := range fields {
		if v == nil || v == "" {
			delete(fields, k)
		}
	}
}

func addContextFields(ctx context.Context, fields map[string]any) {
	if ctx == nil {
		return
	}
	fill := func(key string, val any, present bool) {
		if !present {
			return
		}
		if _, set := fields[key]; !set {
			fields[key] = val
		}
	}
	rid := RIDFrom(ctx)
	fill("rid", rid, rid != "")
	sid := SessionIDFrom(ctx)
	fill("session_id", sid, sid != "")
	handler := HandlerFrom(ctx)
	fill("handler", handler, handler != "")
	if m, ok := metaFrom(ctx); ok {
		fill("update_id", int64(m.UpdateID), m.UpdateID != 0)
		fill("user_id", m.UserID, m.UserID != 0)
		fill("chat_id", m.ChatID, m.ChatID != 0)
	}
}

func encodeJSON(fields map[string]any, keys []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		val, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeKV(fields map[string]any, keys []string) []byte {
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(fields[k]))
	}
	return buf.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

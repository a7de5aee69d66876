// Package logger wires slog for the bot: a flat structured line format on
// stdout and an optional file, an errors-only file, and a Telegram alert sink.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	console "github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"

	"github.com/m3rciful/deliabot/core/buildinfo"
	coreconfig "github.com/m3rciful/deliabot/core/config"
)

// AlertKey marks a record for the Telegram alert sink regardless of level.
const AlertKey = "alert"

const (
	defaultSampleNum = 1
	defaultSampleDen = 50
)

var (
	initOnce sync.Once

	closeMu sync.Mutex
	closed  bool
	sinks   []*asyncSink
	files   []io.Closer

	levelVar    slog.LevelVar
	debugSample = &debugSampler{}
	trace       bool

	// L is the base logger.
	L = slog.New(slog.NewTextHandler(os.Stderr, nil))

	DB       = L // database
	TG       = L // Telegram transport
	MIG      = L // migrations
	TWire    = L // Telegram wiring
	Dialogue = L // conversation transitions
	Archive  = L // report archive
	Metrics  = L // metrics endpoint
)

// settings is the logging configuration after defaults were applied.
type settings struct {
	level      slog.Level
	format     logFormat
	keyOrder   []string
	sampleNum  int
	sampleDen  int
	profile    string
	botFile    string
	errorsFile string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		level:     slog.LevelInfo,
		format:    formatJSON,
		keyOrder:  slices.Clone(defaultKeyOrder),
		sampleNum: defaultSampleNum,
		sampleDen: defaultSampleDen,
		profile:   "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "console":
		s.format = formatConsole
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}

	if ratio := strings.TrimSpace(lc.DebugSample); ratio != "" {
		if n, d, ok := parseRatio(ratio); ok {
			switch {
			case n == 0 && d == 0:
				s.sampleNum, s.sampleDen = 0, 0
			case n > 0 && d > 0:
				s.sampleNum, s.sampleDen = n, d
			}
		}
	}

	if dir := strings.TrimSpace(lc.Dir); dir != "" {
		if f := strings.TrimSpace(lc.BotFile); f != "" {
			s.botFile = filepath.Join(dir, f)
		}
		if f := strings.TrimSpace(lc.ErrorsFile); f != "" {
			s.errorsFile = filepath.Join(dir, f)
		}
	}
	return s
}

// InitLogger configures the global structured logger. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		debugSample.Set(s.sampleNum, s.sampleDen)
		trace = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		main, err := mainHandler(s)
		if err != nil {
			initErr = err
			return
		}
		router := slogmulti.Router().Add(main)
		if s.errorsFile != "" {
			h, err := errorsHandler(s)
			if err != nil {
				initErr = err
				return
			}
			router = router.Add(h, func(_ context.Context, r slog.Record) bool {
				return r.Level >= slog.LevelError
			})
		}
		if cfg != nil && strings.TrimSpace(cfg.Logging.Alerts.Token) != "" {
			router = router.Add(alertsHandler(cfg.Logging.Alerts), isAlert)
		}

		L = slog.New(router.Handler())
		slog.SetDefault(L)
		scopeComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
	})
	return initErr
}

func mainHandler(s settings) (slog.Handler, error) {
	if s.format == formatConsole {
		return console.NewHandler(os.Stderr, &console.HandlerOptions{
			AddSource: true,
			Level:     &levelVar,
		}), nil
	}
	outputs := []io.Writer{os.Stdout}
	if s.botFile != "" {
		f, err := openAppend(s.botFile)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, f)
	}
	return newStructuredHandler(handlerConfig{
		level:    &levelVar,
		sink:     trackSink(newAsyncSink(64*1024, outputs...)),
		format:   s.format,
		keyOrder: s.keyOrder,
	}), nil
}

func errorsHandler(s settings) (slog.Handler, error) {
	f, err := openAppend(s.errorsFile)
	if err != nil {
		return nil, err
	}
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelError,
		sink:     trackSink(newAsyncSink(16*1024, f)),
		format:   formatJSON,
		keyOrder: s.keyOrder,
	}), nil
}

func alertsHandler(cfg coreconfig.AlertsConfig) slog.Handler {
	return slogtelegram.Option{
		Level:     slog.LevelDebug,
		Token:     cfg.Token,
		Username:  cfg.ChatID,
		AddSource: true,
	}.NewTelegramHandler()
}

// isAlert routes errors and records carrying alert=true to the alert sink.
func isAlert(_ context.Context, r slog.Record) bool {
	if r.Level >= slog.LevelError {
		return true
	}
	tagged := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == AlertKey {
			v := a.Value.Resolve()
			tagged = v.Kind() != slog.KindBool || v.Bool()
			return false
		}
		return true
	})
	return tagged
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	closeMu.Lock()
	files = append(files, f)
	closeMu.Unlock()
	return f, nil
}

func trackSink(s *asyncSink) *asyncSink {
	closeMu.Lock()
	sinks = append(sinks, s)
	closeMu.Unlock()
	return s
}

func scopeComponents() {
	DB = Component("db")
	TG = Component("tg")
	MIG = Component("db.migrate")
	TWire = Component("tg.wire")
	Dialogue = Component("dialogue")
	Archive = Component("archive")
	Metrics = Component("metrics")
}

// Shutdown drains buffered output and closes log files. Later calls are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	for _, s := range sinks {
		errs = append(errs, s.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Background is context.Background for call sites without an update context.
func Background() context.Context {
	return context.Background()
}

// LogEvent logs attrs under the given event name. A nil logg resolves from ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs through Component(component).
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug line should be written.
// TRACE=1 in the environment disables sampling.
func ShouldSampleDebug() bool {
	return trace || debugSample.Allow()
}

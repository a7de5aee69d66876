package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/deliabot/core/config"
	"github.com/m3rciful/deliabot/core/logger"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"
	tgsender "github.com/m3rciful/deliabot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware passed to bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint (a command string or one of the tele.On* constants).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions configures RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Dispatcher delivers helper sends. A default one is created when nil.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// DisableWebhookCleanup keeps a previously registered webhook in long-poll mode.
	DisableWebhookCleanup bool

	// Sequencer tunes the per-chat handler workers.
	Sequencer SequencerOptions

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is handed to the lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, wires routes and serves updates until ctx is done.
// Cancellation is a clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	bot, err := newBot(ctx, opts)
	if err != nil {
		return err
	}

	rt := Runtime{Bot: bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(tgsender.Options{})
	}
	tghelpers.SetDispatcher(rt.Dispatcher)
	defer func() {
		tghelpers.SetDispatcher(nil)
		rt.Dispatcher.Close()
	}()

	seq := NewSequencer(opts.Sequencer)
	Wire(bot, seq, opts)
	SetupCommands(bot, opts.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			seq.Close()
			return err
		}
	}

	runErr := serve(ctx, bot)
	seq.Close()

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func newBot(ctx context.Context, opts RunOptions) (*tele.Bot, error) {
	cfg := opts.Config.Telegram
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.RunMode,
		LongPollTimeoutSeconds: cfg.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: opts.Config.Webhook.Listen,
			Port:   opts.Config.Webhook.Port,
			URL:    opts.Config.Webhook.URL,
		},
	})

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		Poller:      poller,
		Client:      BuildHTTPClient(),
		Synchronous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	took := slog.Duration("duration", logger.RoundMS(time.Since(start)))

	if wh, ok := poller.(*tele.Webhook); ok {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			took,
		)
		return bot, nil
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "mode",
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", int(longPollTimeout(cfg.LongPollTimeoutSeconds)/time.Second)),
		took,
	)
	if !opts.DisableWebhookCleanup && strings.EqualFold(cfg.RunMode, coreconfig.RunModeLongpoll) {
		removeWebhook(ctx, bot)
	}
	return bot, nil
}

// removeWebhook clears a webhook left from an earlier deployment; Telegram
// refuses getUpdates while one is set.
func removeWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "delete_webhook",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "delete_webhook", slog.String("status", "ok"))
}

// Wire installs the sequencer first, then opts.Middlewares, then the routes.
// bot must be built with Synchronous set.
func Wire(bot *tele.Bot, seq *Sequencer, opts RunOptions) {
	if seq != nil {
		bot.Use(seq.Middleware(bot.OnError))
	}
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
}

// serve blocks until the poller stops on its own or ctx is done.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	}
}

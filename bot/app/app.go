// Package app wires configuration, infrastructure and handlers into a
// runnable Telegram bot.
package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/oops"

	"github.com/m3rciful/deliabot/bot/archive"
	botconfig "github.com/m3rciful/deliabot/bot/config"
	"github.com/m3rciful/deliabot/bot/dialogue"
	"github.com/m3rciful/deliabot/bot/handlers"
	"github.com/m3rciful/deliabot/bot/metrics"
	"github.com/m3rciful/deliabot/core/bootstrap"
	corecmd "github.com/m3rciful/deliabot/core/cmd"
	"github.com/m3rciful/deliabot/core/logger"
	tg "github.com/m3rciful/deliabot/core/telegram"
	"github.com/m3rciful/deliabot/core/telegram/router"
	"github.com/m3rciful/deliabot/core/telegram/sender"
	"github.com/m3rciful/deliabot/core/telegram/state"
)

// App holds the wired bot.
type App struct {
	cfg        *botconfig.Config
	infra      *bootstrap.Result
	registry   *prometheus.Registry
	dispatcher *sender.Dispatcher
	sessions   state.Manager
	bot        *handlers.Bot
}

// LoadConfig adapts botconfig.Load to the runner.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := botconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap initializes logging, the optional archive database and the
// conversation handlers.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*botconfig.Config)
	if !ok {
		return nil, oops.In("app").Code("bad_config").Errorf("unexpected config type %T", carrier)
	}

	infra, err := bootstrap.Run(bootstrap.Options{
		Config:        cfg.CoreConfig(),
		Database:      cfg.Database,
		Migrations:    archive.Migrations,
		MigrationsDir: archive.MigrationsDir,
	})
	if err != nil {
		return nil, oops.In("app").Code("bootstrap_failed").Wrap(err)
	}

	var arch archive.Archive = archive.Nop{}
	if infra.DB != nil {
		arch = archive.NewRepository(infra.DB)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	dispatcher := sender.NewDispatcher(sender.Options{})
	if err := recorder.RegisterSenderErrors(dispatcher.ErrorCount); err != nil {
		dispatcher.Close()
		return nil, oops.In("app").Code("metrics_register").Wrap(err)
	}

	sessions := state.NewMemoryManager()
	driver := handlers.NewDriver(handlers.Options{
		Machine:  dialogue.New(cfg.Dialogue),
		Sessions: sessions,
		Archive:  arch,
		Metrics:  recorder,
	})

	return &App{
		cfg:        cfg,
		infra:      infra,
		registry:   reg,
		dispatcher: dispatcher,
		sessions:   sessions,
		bot:        handlers.NewBot(driver, arch, dispatcher),
	}, nil
}

// TelegramRunOptions assembles routes, middleware and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()

	reg := tg.NewRegistry()
	if err := a.bot.Register(reg); err != nil {
		return tg.RunOptions{}, err
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: core.Telegram.AdminID})
	routes = append(routes, router.TextRoutes(a.sessions, reg, router.TextOptions{})...)

	return tg.RunOptions{
		Config:      core,
		Registry:    reg,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ tg.Runtime) error {
	listen := a.cfg.Metrics.Listen
	if listen == "" {
		return nil
	}
	go func() {
		if err := metrics.Serve(ctx, listen, a.registry); err != nil {
			logger.Metrics.Error("metrics stopped",
				slog.String("event", "serve"),
				slog.String("err", err.Error()),
				slog.Bool(logger.AlertKey, true),
			)
		}
	}()
	return nil
}

func (a *App) onStop(_ context.Context, _ tg.Runtime) error {
	if a.infra == nil || a.infra.DB == nil {
		return nil
	}
	if err := a.infra.DB.Close(); err != nil {
		return oops.In("app").Code("db_close").Wrap(err)
	}
	return nil
}

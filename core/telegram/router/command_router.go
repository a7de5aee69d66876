package router

import (
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/m3rciful/deliabot/core/logger"
	tg "github.com/m3rciful/deliabot/core/telegram"
	"github.com/m3rciful/deliabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures CommandRoutes.
type CommandRouteOptions struct {
	AdminID int64
	// OnAdminReject answers non-admins calling an admin-only command.
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command, each logging a
// handler summary. Admin-only commands sit behind AdminOnlyMiddleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	guard := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for _, name := range slices.Sorted(maps.Keys(cmds)) {
		cmd := cmds[name]
		if cmd.Handler == nil {
			continue
		}
		h := cmd.Handler
		if cmd.AdminOnly {
			h = guard(h)
		}
		handler := normalizeHandlerName(name)
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler: func(c tele.Context) error {
				return summary{handler: handler, start: time.Now()}.run(c, h)
			},
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(routes)),
	)
	return routes
}

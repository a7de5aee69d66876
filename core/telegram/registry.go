package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/m3rciful/deliabot/core/logger"
	"github.com/m3rciful/deliabot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	errInvalidCommand   = errors.New("command needs a name, a handler and a description")
	errNoSlash          = errors.New("command name must start with /")
	errDuplicateCommand = errors.New("command already registered")
)

// Registry holds bot commands and the text fallback. It is filled during
// wiring and read-only once the bot runs.
type Registry struct {
	commands     map[string]commands.Command
	aliases      map[string]string
	textFallback tele.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under name, which must start with a slash.
// Rejected registrations are logged and returned as errors.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var err error
	switch _, dup := r.commands[name]; {
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		err = errInvalidCommand
	case !strings.HasPrefix(name, "/"):
		err = errNoSlash
	case dup:
		err = errDuplicateCommand
	}
	if err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: register %q: %w", name, err)
	}

	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[slashed(alias)] = name
	}
	return nil
}

// ListCommands returns the commands sorted by name. With visibleOnly,
// hidden and admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		cmd := r.commands[name]
		if visibleOnly && !cmd.Visible() {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	return list
}

// LookupCommand resolves a name or alias, with or without the slash, to its
// registered key.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slashed(name)
	if key, ok := r.aliases[name]; ok {
		name = key
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// SetTextFallback sets the handler for text that no route claimed.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the handler set by SetTextFallback.
func (r *Registry) TextFallback() tele.HandlerFunc {
	return r.textFallback
}

// SetupCommands publishes the visible commands as the bot's command menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelDebug, "register.commands.set",
		slog.Int("count", len(list)),
	)
}

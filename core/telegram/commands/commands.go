// Package commands describes slash commands registered with the bot.
package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command and how it is exposed.
type Command struct {
	Handler     tele.HandlerFunc
	Description string // shown in the Telegram command menu
	// AdminOnly commands are guarded by the admin middleware and kept out of the menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Visible reports whether the command belongs in the public command menu.
func (c Command) Visible() bool {
	return !c.Hidden && !c.AdminOnly
}

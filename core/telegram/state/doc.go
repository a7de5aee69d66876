// Package state provides a lightweight FSM/session manager for Telegram bots.
// Sessions are keyed by conversation (chat) id and live in memory only.
package state

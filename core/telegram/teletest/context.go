// Package teletest provides a minimal tele.Context for handler tests.
package teletest

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Sent is one outbound message recorded by Context.
type Sent struct {
	What any
	Opts []any
}

// Context implements the parts of tele.Context used by this module's
// handlers. Calling any other method panics.
type Context struct {
	tele.Context

	update tele.Update

	mu    sync.Mutex
	store map[string]any
	sent  []Sent
	// SendErr is returned by Send when set.
	SendErr error
}

// NewText builds a context carrying a private text message from userID.
// Text starting with "/name" gets a bot_command entity, as Telegram adds one.
func NewText(updateID int, userID int64, text string) *Context {
	user := &tele.User{ID: userID, Username: "tester"}
	msg := &tele.Message{
		ID:     updateID,
		Sender: user,
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Text:   text,
	}
	if len(text) > 0 && text[0] == '/' {
		end := len(text)
		for i, r := range text {
			if r == ' ' || r == '@' {
				end = i
				break
			}
		}
		if end > 1 {
			msg.Entities = tele.Entities{{Type: tele.EntityCommand, Offset: 0, Length: end}}
		}
	}
	return &Context{
		update: tele.Update{ID: updateID, Message: msg},
		store:  make(map[string]any),
	}
}

// Update returns the wrapped update.
func (c *Context) Update() tele.Update { return c.update }

// Message returns the update message.
func (c *Context) Message() *tele.Message { return c.update.Message }

// Sender returns the message author.
func (c *Context) Sender() *tele.User {
	if c.update.Message == nil {
		return nil
	}
	return c.update.Message.Sender
}

// Chat returns the message chat.
func (c *Context) Chat() *tele.Chat {
	if c.update.Message == nil {
		return nil
	}
	return c.update.Message.Chat
}

// Recipient returns the chat.
func (c *Context) Recipient() tele.Recipient { return c.Chat() }

// Text returns the message text.
func (c *Context) Text() string {
	if c.update.Message == nil {
		return ""
	}
	return c.update.Message.Text
}

// Callback always returns nil.
func (c *Context) Callback() *tele.Callback { return nil }

// Get reads a value stored with Set.
func (c *Context) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

// Set stores a value.
func (c *Context) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = val
}

// Send records the message instead of calling Telegram.
func (c *Context) Send(what any, opts ...any) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{What: what, Opts: opts})
	return nil
}

// Reply behaves like Send.
func (c *Context) Reply(what any, opts ...any) error { return c.Send(what, opts...) }

// Sent returns a copy of recorded messages.
func (c *Context) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Package dialogue implements the fact-collection conversation as a pure state machine.
//
// The machine never performs I/O. It reads the current state and the incoming
// event, mutates the conversation's fact store and returns a Transition that
// the driver commits and delivers.
package dialogue

import (
	"errors"

	"github.com/m3rciful/deliabot/bot/facts"
)

// State identifies a step of the conversation.
type State string

const (
	// Idle is the terminal state and the state before /start.
	Idle State = "idle"
	// Choosing awaits a menu selection.
	Choosing State = "choosing"
	// TypingReply awaits the value for the pending category.
	TypingReply State = "typing_reply"
	// TypingChoice awaits a custom category name.
	TypingChoice State = "typing_choice"
)

// Active reports whether s belongs to a running conversation.
func (s State) Active() bool {
	switch s {
	case Choosing, TypingReply, TypingChoice:
		return true
	}
	return false
}

// Kind distinguishes plain text from command invocations.
type Kind int

const (
	// KindText is a regular text message.
	KindText Kind = iota
	// KindCommand is a bot command such as /start.
	KindCommand
)

// Event is a single inbound message.
type Event struct {
	Text string
	Kind Kind
}

// Keyboard is a presentation hint for the transport.
type Keyboard int

const (
	// KeyboardNone leaves the current keyboard untouched.
	KeyboardNone Keyboard = iota
	// KeyboardMenu shows the fixed menu.
	KeyboardMenu
	// KeyboardRemove hides the keyboard.
	KeyboardRemove
)

func (k Keyboard) String() string {
	switch k {
	case KeyboardMenu:
		return "menu"
	case KeyboardRemove:
		return "remove"
	default:
		return "none"
	}
}

// Transition is the outcome of feeding one event to the machine.
type Transition struct {
	From     State
	Next     State
	Reply    string
	Keyboard Keyboard
	// Handled is false when no rule matched; the conversation stays in From.
	Handled bool
	// Recorded is set when the event stored a fact.
	Recorded *facts.Entry
	// Ended is set on exit; Final holds the facts as they were reported.
	Ended bool
	Final []facts.Entry
}

// ErrNoPendingCategory means a value arrived before any category was chosen.
var ErrNoPendingCategory = errors.New("dialogue: no pending category")

const (
	// ExitLabel ends the conversation from any active state.
	ExitLabel = "Salir"
	// CustomLabel asks for a user supplied category.
	CustomLabel = "Algo más..."
)

// CategoryLabels are the fixed menu categories.
var CategoryLabels = []string{"Caso", "Fecha", "Novedad"}

// Menu returns the reply keyboard layout.
func Menu() [][]string {
	return [][]string{
		{CategoryLabels[0], CategoryLabels[1]},
		{CategoryLabels[2], CustomLabel},
		{ExitLabel},
	}
}

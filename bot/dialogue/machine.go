package dialogue

import (
	"github.com/elliotchance/pie/v2"
	"github.com/samber/oops"

	"github.com/m3rciful/deliabot/bot/facts"
)

// Machine computes transitions. It holds no per-conversation data and may be
// shared by all conversations.
type Machine struct {
	texts Texts
}

// New builds a machine using texts, falling back to defaults for empty fields.
func New(texts Texts) *Machine {
	return &Machine{texts: texts.WithDefaults()}
}

// Texts returns the replies in use.
func (m *Machine) Texts() Texts {
	return m.texts
}

// Start resets fs and opens the menu. It applies regardless of the prior state.
func (m *Machine) Start(from State, fs *facts.Store) Transition {
	fs.Clear()
	return Transition{
		From:     from,
		Next:     Choosing,
		Reply:    m.texts.Greeting,
		Keyboard: KeyboardMenu,
		Handled:  true,
	}
}

// Step feeds ev to the conversation currently in st.
// Unmatched input yields Handled=false and leaves fs untouched.
func (m *Machine) Step(st State, ev Event, fs *facts.Store) (Transition, error) {
	if st.Active() && ev.Text == ExitLabel {
		return m.exit(st, fs), nil
	}

	switch st {
	case Choosing:
		switch {
		case pie.Contains(CategoryLabels, ev.Text):
			return m.choose(st, ev.Text, fs), nil
		case ev.Text == CustomLabel:
			return Transition{
				From:    st,
				Next:    TypingChoice,
				Reply:   m.texts.CustomPrompt,
				Handled: true,
			}, nil
		}
	case TypingChoice:
		if isFreeText(ev) {
			return m.choose(st, ev.Text, fs), nil
		}
	case TypingReply:
		if isFreeText(ev) {
			return m.receive(st, ev.Text, fs)
		}
	}
	return unmatched(st), nil
}

// choose is shared by the fixed menu and the custom category prompt: both
// make the text the pending category.
func (m *Machine) choose(st State, label string, fs *facts.Store) Transition {
	fs.SetPending(label)
	return Transition{
		From:    st,
		Next:    TypingReply,
		Reply:   m.texts.choice(label),
		Handled: true,
	}
}

func (m *Machine) receive(st State, value string, fs *facts.Store) (Transition, error) {
	category, ok := fs.Pending()
	if !ok {
		return unmatched(st), oops.
			In("dialogue").
			Code("no_pending_category").
			With("state", string(st)).
			Wrapf(ErrNoPendingCategory, "value received in %s", st)
	}
	fs.Set(category, value)
	fs.ClearPending()
	return Transition{
		From:     st,
		Next:     Choosing,
		Reply:    m.texts.recorded(facts.Render(fs)),
		Keyboard: KeyboardMenu,
		Handled:  true,
		Recorded: &facts.Entry{Category: category, Value: value},
	}, nil
}

func (m *Machine) exit(st State, fs *facts.Store) Transition {
	fs.ClearPending()
	final := fs.Entries()
	reply := m.texts.farewell(facts.RenderEntries(final))
	fs.Clear()
	return Transition{
		From:     st,
		Next:     Idle,
		Reply:    reply,
		Keyboard: KeyboardRemove,
		Handled:  true,
		Ended:    true,
		Final:    final,
	}
}

func unmatched(st State) Transition {
	return Transition{From: st, Next: st}
}

// isFreeText accepts any non-empty text except the exit label. Whether a
// message is a command is decided by the caller from its entities, so a
// value such as "/ 2 pisos" is still data.
func isFreeText(ev Event) bool {
	return ev.Kind != KindCommand && ev.Text != "" && ev.Text != ExitLabel
}

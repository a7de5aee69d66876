// Package handlers drives conversations: it feeds inbound messages to the
// dialogue machine, commits the result to the session manager and hands the
// reply back to the transport.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/deliabot/bot/archive"
	"github.com/m3rciful/deliabot/bot/dialogue"
	"github.com/m3rciful/deliabot/bot/facts"
	"github.com/m3rciful/deliabot/bot/metrics"
	"github.com/m3rciful/deliabot/core/logger"
	"github.com/m3rciful/deliabot/core/telegram/state"
)

const (
	factsKey = "facts"
	userKey  = "user_id"

	archiveTimeout = 5 * time.Second
)

// Inbound is one message addressed to a conversation.
type Inbound struct {
	ConversationID int64
	UserID         int64
	Text           string
	Kind           dialogue.Kind
}

// Outbound is the reply to deliver after a transition was committed.
type Outbound struct {
	ConversationID int64
	Text           string
	Keyboard       dialogue.Keyboard
}

// Options configures a Driver. Archive and Metrics are optional.
type Options struct {
	Machine  *dialogue.Machine
	Sessions state.Manager
	Archive  archive.Archive
	Metrics  *metrics.Recorder
}

// Driver runs the dialogue for every conversation.
type Driver struct {
	machine  *dialogue.Machine
	sessions state.Manager
	archive  archive.Archive
	metrics  *metrics.Recorder
	locks    *keyedMutex
	now      func() time.Time
}

// NewDriver builds a Driver. A missing machine uses the default texts and a
// missing session manager uses an in-memory one.
func NewDriver(opts Options) *Driver {
	d := &Driver{
		machine:  opts.Machine,
		sessions: opts.Sessions,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	if d.machine == nil {
		d.machine = dialogue.New(dialogue.DefaultTexts())
	}
	if d.sessions == nil {
		d.sessions = state.NewMemoryManager()
	}
	if d.archive == nil {
		d.archive = archive.Nop{}
	}
	return d
}

// Sessions returns the session manager the driver commits to.
func (d *Driver) Sessions() state.Manager {
	return d.sessions
}

// Start (re)opens the conversation, discarding any earlier facts.
func (d *Driver) Start(ctx context.Context, in Inbound) Outbound {
	unlock := d.locks.Lock(in.ConversationID)
	defer unlock()

	began := d.now()
	from := dialogue.State(d.sessions.GetState(in.ConversationID))
	store := facts.NewStore()
	tr := d.machine.Start(from, store)

	sessionID := uuid.NewString()
	d.sessions.Begin(in.ConversationID, sessionID, state.State(tr.Next))
	d.sessions.SetTemp(in.ConversationID, factsKey, store)
	d.sessions.SetTemp(in.ConversationID, userKey, in.UserID)

	ctx = logger.WithSessionID(ctx, sessionID)
	d.metrics.IncSessionStarted()
	d.metrics.ObserveTransition(string(tr.From), string(tr.Next), d.now().Sub(began))
	logTransition(ctx, tr, store.Len())

	return Outbound{ConversationID: in.ConversationID, Text: tr.Reply, Keyboard: tr.Keyboard}
}

// Handle feeds one message to the conversation. handled is false when the
// conversation is idle or no rule accepted the text; nothing is sent then.
func (d *Driver) Handle(ctx context.Context, in Inbound) (out Outbound, handled bool, err error) {
	unlock := d.locks.Lock(in.ConversationID)
	defer unlock()

	began := d.now()
	sess := d.sessions.Get(in.ConversationID)
	st := dialogue.State(sess.State)
	if sess.ID != "" {
		ctx = logger.WithSessionID(ctx, sess.ID)
	}
	if !st.Active() {
		logger.Dialogue.LogAttrs(ctx, slog.LevelDebug, "skip",
			slog.String("event", "dialogue.skip"),
			slog.String("state", string(st)),
			slog.String("reason", "no_conversation"),
		)
		return Outbound{}, false, nil
	}

	store := d.storeFor(in.ConversationID, sess)
	tr, err := d.machine.Step(st, dialogue.Event{Text: in.Text, Kind: in.Kind}, store)
	if err != nil {
		logger.Dialogue.LogAttrs(ctx, slog.LevelWarn, "step failed",
			slog.String("event", "dialogue.fail"),
			slog.String("state", string(st)),
			slog.String("err", err.Error()),
		)
		return Outbound{}, false, err
	}
	if !tr.Handled {
		d.metrics.IncUnmatched(string(st))
		logger.Dialogue.LogAttrs(ctx, slog.LevelDebug, "unmatched",
			slog.String("event", "dialogue.unmatched"),
			slog.String("state", string(st)),
		)
		return Outbound{}, false, nil
	}

	if tr.Ended {
		d.sessions.Clear(in.ConversationID)
	} else {
		d.sessions.SetState(in.ConversationID, state.State(tr.Next))
	}

	if tr.Recorded != nil {
		d.metrics.IncFactRecorded()
	}
	d.metrics.ObserveTransition(string(tr.From), string(tr.Next), d.now().Sub(began))
	logTransition(ctx, tr, store.Len())

	if tr.Ended {
		d.metrics.IncSessionEnded()
		d.saveReport(ctx, in, sess, tr.Final)
	}

	return Outbound{ConversationID: in.ConversationID, Text: tr.Reply, Keyboard: tr.Keyboard}, true, nil
}

func (d *Driver) storeFor(id int64, sess *state.Session) *facts.Store {
	if v, ok := sess.TempData[factsKey]; ok {
		if store, ok := v.(*facts.Store); ok && store != nil {
			return store
		}
	}
	store := facts.NewStore()
	d.sessions.SetTemp(id, factsKey, store)
	return store
}

// saveReport archives the final facts. Failures are logged and never undo
// the exit that was already committed.
func (d *Driver) saveReport(ctx context.Context, in Inbound, sess *state.Session, final []facts.Entry) {
	rep := archive.Report{
		ChatID:    in.ConversationID,
		UserID:    in.UserID,
		Facts:     final,
		StartedAt: sess.StartedAt,
		EndedAt:   d.now(),
	}
	if id, err := uuid.Parse(sess.ID); err == nil {
		rep.ID = id
	}
	if v, ok := sess.TempData[userKey].(int64); ok && v != 0 {
		rep.UserID = v
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := d.archive.Save(saveCtx, rep); err != nil {
		logger.Archive.LogAttrs(ctx, slog.LevelError, "report not saved",
			slog.String("event", "archive.fail"),
			slog.Int64("chat_id", in.ConversationID),
			slog.Int("facts", len(final)),
			slog.String("err", err.Error()),
		)
	}
}

func logTransition(ctx context.Context, tr dialogue.Transition, factsLen int) {
	if tr.Ended {
		factsLen = len(tr.Final)
	}
	attrs := []slog.Attr{
		slog.String("event", "dialogue.transition"),
		slog.String("state", string(tr.From)),
		slog.String("next_state", string(tr.Next)),
		slog.String("keyboard", tr.Keyboard.String()),
		slog.Int("facts", factsLen),
	}
	if tr.Recorded != nil {
		attrs = append(attrs, slog.String("category", tr.Recorded.Category))
	}
	logger.Dialogue.LogAttrs(ctx, slog.LevelInfo, "transition", attrs...)
}

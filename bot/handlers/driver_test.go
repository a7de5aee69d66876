package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/deliabot/bot/archive"
	"github.com/m3rciful/deliabot/bot/dialogue"
	"github.com/m3rciful/deliabot/bot/facts"
	"github.com/m3rciful/deliabot/bot/metrics"
	"github.com/m3rciful/deliabot/core/telegram/state"
)

type memArchive struct {
	mu      sync.Mutex
	reports []archive.Report
	err     error
}

func (m *memArchive) Save(_ context.Context, r archive.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	return nil
}

func (m *memArchive) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports), nil
}

func (m *memArchive) all() []archive.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]archive.Report(nil), m.reports...)
}

func text(id int64, s string) Inbound {
	return Inbound{ConversationID: id, UserID: id, Text: s}
}

func newTestDriver(arch archive.Archive) *Driver {
	return NewDriver(Options{Sessions: state.NewMemoryManager(), Archive: arch})
}

func mustHandle(t *testing.T, d *Driver, in Inbound) Outbound {
	t.Helper()
	out, handled, err := d.Handle(context.Background(), in)
	require.NoError(t, err)
	require.True(t, handled, "text %q was not handled", in.Text)
	return out
}

func TestDriverFullConversation(t *testing.T) {
	arch := &memArchive{}
	d := newTestDriver(arch)
	ctx := context.Background()

	out := d.Start(ctx, text(7, "/start"))
	assert.Equal(t, dialogue.KeyboardMenu, out.Keyboard)
	assert.Equal(t, dialogue.DefaultTexts().Greeting, out.Text)
	assert.Equal(t, state.State(dialogue.Choosing), d.Sessions().GetState(7))

	out = mustHandle(t, d, text(7, "Caso"))
	assert.Equal(t, "Tu caso? ¡Sí, me encantaría saberlo!", out.Text)
	assert.Equal(t, state.State(dialogue.TypingReply), d.Sessions().GetState(7))

	out = mustHandle(t, d, text(7, "robo"))
	assert.Equal(t, dialogue.KeyboardMenu, out.Keyboard)
	assert.Contains(t, out.Text, "\nCaso - robo\n")

	mustHandle(t, d, text(7, "Algo más..."))
	assert.Equal(t, state.State(dialogue.TypingChoice), d.Sessions().GetState(7))
	mustHandle(t, d, text(7, "Lugar"))
	mustHandle(t, d, text(7, "plaza"))

	out = mustHandle(t, d, text(7, "Salir"))
	assert.Equal(t, dialogue.KeyboardRemove, out.Keyboard)
	assert.Equal(t, "Acumule esta información por ti: \nCaso - robo\nLugar - plaza\n¡Hasta la proxima vez!", out.Text)
	assert.False(t, d.Sessions().InProgress(7))

	reports := arch.all()
	require.Len(t, reports, 1)
	assert.Equal(t, int64(7), reports[0].ChatID)
	assert.Equal(t, []facts.Entry{{Category: "Caso", Value: "robo"}, {Category: "Lugar", Value: "plaza"}}, reports[0].Facts)
}

func TestDriverIdleIgnoresText(t *testing.T) {
	d := newTestDriver(nil)
	out, handled, err := d.Handle(context.Background(), text(1, "Caso"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, out.Text)
	assert.False(t, d.Sessions().InProgress(1))
}

func TestDriverUnmatchedKeepsState(t *testing.T) {
	d := newTestDriver(nil)
	d.Start(context.Background(), text(1, "/start"))

	_, handled, err := d.Handle(context.Background(), text(1, "hola"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, state.State(dialogue.Choosing), d.Sessions().GetState(1))

	_, handled, err = d.Handle(context.Background(), Inbound{ConversationID: 1, Text: "/help", Kind: dialogue.KindCommand})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestDriverRestartDiscardsFacts(t *testing.T) {
	arch := &memArchive{}
	d := newTestDriver(arch)
	ctx := context.Background()

	d.Start(ctx, text(3, "/start"))
	mustHandle(t, d, text(3, "Fecha"))
	mustHandle(t, d, text(3, "ayer"))

	d.Start(ctx, text(3, "/start"))
	out := mustHandle(t, d, text(3, "Salir"))
	assert.Equal(t, "Acumule esta información por ti: \n\n¡Hasta la proxima vez!", out.Text)
	require.Len(t, arch.all(), 1)
	assert.Empty(t, arch.all()[0].Facts)
}

func TestDriverStartDropsPendingCategory(t *testing.T) {
	for name, steps := range map[string][]string{
		"typing reply":   {"Caso"},
		"typing choice":  {dialogue.CustomLabel},
		"custom pending": {dialogue.CustomLabel, "Lugar del hecho"},
	} {
		t.Run(name, func(t *testing.T) {
			d := newTestDriver(nil)
			ctx := context.Background()
			d.Start(ctx, text(8, "/start"))
			mustHandle(t, d, text(8, "Fecha"))
			mustHandle(t, d, text(8, "hoy"))
			for _, s := range steps {
				mustHandle(t, d, text(8, s))
			}
			require.NotEqual(t, state.State(dialogue.Choosing), d.Sessions().GetState(8))

			out := d.Start(ctx, text(8, "/start"))
			assert.Equal(t, dialogue.KeyboardMenu, out.Keyboard)
			assert.Equal(t, state.State(dialogue.Choosing), d.Sessions().GetState(8))

			v, ok := d.Sessions().GetTemp(8, factsKey)
			require.True(t, ok)
			store := v.(*facts.Store)
			assert.Zero(t, store.Len())
			_, pending := store.Pending()
			assert.False(t, pending)
		})
	}
}

func TestDriverMissingPendingFailsWithoutMutation(t *testing.T) {
	d := newTestDriver(nil)
	d.Start(context.Background(), text(4, "/start"))
	d.Sessions().SetState(4, state.State(dialogue.TypingReply))

	_, handled, err := d.Handle(context.Background(), text(4, "valor"))
	require.ErrorIs(t, err, dialogue.ErrNoPendingCategory)
	assert.False(t, handled)
	assert.Equal(t, state.State(dialogue.TypingReply), d.Sessions().GetState(4))

	v, ok := d.Sessions().GetTemp(4, factsKey)
	require.True(t, ok)
	assert.Zero(t, v.(*facts.Store).Len())
}

func TestDriverArchiveFailureStillEnds(t *testing.T) {
	d := newTestDriver(&memArchive{err: errors.New("db down")})
	d.Start(context.Background(), text(5, "/start"))

	out := mustHandle(t, d, text(5, "Salir"))
	assert.Equal(t, dialogue.KeyboardRemove, out.Keyboard)
	assert.False(t, d.Sessions().InProgress(5))
}

func TestDriverSessionIDKeysReport(t *testing.T) {
	arch := &memArchive{}
	d := newTestDriver(arch)
	d.Start(context.Background(), text(6, "/start"))
	sessionID := d.Sessions().Get(6).ID
	require.NotEmpty(t, sessionID)

	mustHandle(t, d, text(6, "Salir"))
	require.Len(t, arch.all(), 1)
	assert.Equal(t, sessionID, arch.all()[0].ID.String())
	assert.False(t, arch.all()[0].StartedAt.IsZero())
}

func TestDriverMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	d := NewDriver(Options{Metrics: rec})
	ctx := context.Background()

	d.Start(ctx, text(1, "/start"))
	mustHandle(t, d, text(1, "Novedad"))
	mustHandle(t, d, text(1, "nada"))
	_, _, _ = d.Handle(ctx, text(1, "???"))
	mustHandle(t, d, text(1, "Salir"))

	n, err := testutil.GatherAndCount(reg,
		"deliabot_sessions_started_total",
		"deliabot_sessions_ended_total",
		"deliabot_facts_recorded_total",
		"deliabot_unmatched_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDriverConcurrentConversations(t *testing.T) {
	arch := &memArchive{}
	d := newTestDriver(arch)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := int64(1); i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			d.Start(ctx, text(id, "/start"))
			for _, s := range []string{"Caso", fmt.Sprintf("caso-%d", id), "Fecha", fmt.Sprintf("fecha-%d", id), "Salir"} {
				if _, _, err := d.Handle(ctx, text(id, s)); err != nil {
					t.Errorf("conversation %d: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	reports := arch.all()
	require.Len(t, reports, n)
	for _, r := range reports {
		assert.Equal(t, []facts.Entry{
			{Category: "Caso", Value: fmt.Sprintf("caso-%d", r.ChatID)},
			{Category: "Fecha", Value: fmt.Sprintf("fecha-%d", r.ChatID)},
		}, r.Facts)
	}
	assert.Zero(t, d.Sessions().Count())
	assert.Zero(t, d.locks.size())
}

func TestDriverKeepsConcurrentHandlesConsistent(t *testing.T) {
	d := newTestDriver(nil)
	ctx := context.Background()
	d.Start(ctx, text(9, "/start"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := "Caso"
			if i%2 == 1 {
				s = fmt.Sprintf("v%d", i)
			}
			_, _, err := d.Handle(ctx, text(9, s))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := dialogue.State(d.Sessions().GetState(9))
	assert.Contains(t, []dialogue.State{dialogue.Choosing, dialogue.TypingReply}, st)
	v, _ := d.Sessions().GetTemp(9, factsKey)
	store := v.(*facts.Store)
	_, pending := store.Pending()
	assert.Equal(t, st == dialogue.TypingReply, pending)
}

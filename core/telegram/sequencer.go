package telegram

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/deliabot/core/logger"
	tghelpers "github.com/m3rciful/deliabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// SequencerOptions tunes the update sequencer. Zero values select defaults.
type SequencerOptions struct {
	Workers   int
	QueueSize int // per worker
}

func (o SequencerOptions) withDefaults() SequencerOptions {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 128
	}
	return o
}

// Sequencer runs handlers on a fixed set of workers keyed by conversation.
// Updates of one chat run one at a time in the order the bot received them;
// different chats proceed in parallel.
//
// Its middleware must be the outermost one on a bot built with
// Synchronous set, so that enqueueing happens on the polling goroutine in
// arrival order.
type Sequencer struct {
	shards []chan func()
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSequencer starts opts.Workers workers.
func NewSequencer(opts SequencerOptions) *Sequencer {
	opts = opts.withDefaults()
	s := &Sequencer{shards: make([]chan func(), opts.Workers)}
	s.wg.Add(len(s.shards))
	for i := range s.shards {
		q := make(chan func(), opts.QueueSize)
		s.shards[i] = q
		go func() {
			defer s.wg.Done()
			for run := range q {
				run()
			}
		}()
	}
	return s
}

// Middleware queues the rest of the chain on the worker owning the chat.
// Handler errors go to onError, which may be nil. After Close the chain runs
// inline.
func (s *Sequencer) Middleware(onError func(error, tele.Context)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			run := func() {
				if err := next(c); err != nil && onError != nil {
					onError(err, c)
				}
			}
			if !s.submit(tghelpers.ConversationID(c), run) {
				logger.Debug(tghelpers.BuildContext(c), "tg", "sequencer.inline",
					slog.String("reason", "closed"),
				)
				return next(c)
			}
			return nil
		}
	}
}

// submit blocks while the owning worker's queue is full, so a busy chat
// slows polling down instead of losing its order.
func (s *Sequencer) submit(key int64, run func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.shards[uint64(key)%uint64(len(s.shards))] <- run
	return true
}

// Close stops accepting updates and waits for queued handlers to finish.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, q := range s.shards {
			close(q)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

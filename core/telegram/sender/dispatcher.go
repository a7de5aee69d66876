// Package sender runs outbound Telegram calls off the update goroutine.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/deliabot/core/logger"
	"github.com/m3rciful/deliabot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the worker owning the key has no room left.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

const component = "tg.sender"

// Options tunes the dispatcher. Zero values select defaults.
type Options struct {
	QueueSize    int // per worker
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration // multiplied by the attempt number
	MaxDuration  time.Duration // total budget for one job, retries included
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher delivers jobs on a fixed set of workers. Jobs with the same key
// share a worker, so one chat sees its messages in enqueue order.
type Dispatcher struct {
	opts   Options
	shards []chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sent atomic.Uint64
	errs atomic.Uint64
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, shards: make([]chan job, opts.Workers)}
	d.wg.Add(len(d.shards))
	for i := range d.shards {
		q := make(chan job, opts.QueueSize)
		d.shards[i] = q
		go func() {
			defer d.wg.Done()
			for j := range q {
				d.process(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run on the worker owning key without blocking.
// run may be called more than once when the error is retryable.
func (d *Dispatcher) Enqueue(ctx context.Context, key int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.shards[uint64(key)%uint64(len(d.shards))] <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SentCount is the number of jobs that eventually succeeded.
func (d *Dispatcher) SentCount() uint64 { return d.sent.Load() }

// ErrorCount is the number of jobs that gave up.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close rejects new jobs, drains the queues and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.shards {
			close(q)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) process(j job) {
	start := time.Now()
	logger.Debug(j.ctx, component, "send.start", j.attrs()...)

	attempt, err := d.deliver(j)
	elapsed := slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds())
	if err != nil {
		d.errs.Add(1)
		logger.Warn(j.ctx, component, "send.fail", append(j.attrs(),
			slog.String("error", redactToken(err)),
			slog.String("error_kind", classifyError(err)),
			slog.Int("attempts", attempt),
			elapsed,
		)...)
		return
	}

	d.sent.Add(1)
	attrs := append(j.attrs(), elapsed)
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempt", attempt))
		logger.Info(j.ctx, component, "send.retry.success", attrs...)
		return
	}
	logger.Debug(j.ctx, component, "send.success", attrs...)
}

// deliver runs j until it succeeds, fails permanently or runs out of
// attempts or time. It returns the number of attempts made.
func (d *Dispatcher) deliver(j job) (int, error) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	attempts := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := j.run()
		if err == nil {
			return attempt, nil
		}
		if attempt == attempts || !netutil.ShouldRetry(err) {
			return attempt, err
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
		logger.Debug(j.ctx, component, "send.retry.backoff", append(j.attrs(),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)...)
	}
}

func (j job) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 2)
	attrs = append(attrs, slog.String("action", j.action))
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDispatcherPreservesPerKeyOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 3, QueueSize: 100})
	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := 0; i < 20; i++ {
		for _, key := range []int64{1, 2, -7} {
			key, i := key, i
			require.NoError(t, d.Enqueue(context.Background(), key, "send.text", "sendMessage", func() error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	d.Close()

	for _, key := range []int64{1, 2, -7} {
		require.Len(t, got[key], 20)
		for i, v := range got[key] {
			assert.Equal(t, i, v)
		}
	}
	assert.Equal(t, uint64(60), d.SentCount())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), 1, "a", "b", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDispatcherCountsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	calls := 0
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		return errors.New("forbidden: bot was blocked by the user")
	}))
	d.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	calls := 0
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, 3, calls)
	assert.Zero(t, d.ErrorCount())
	assert.Equal(t, uint64(1), d.SentCount())
}

func TestRedactToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": timeout`)
	got := redactToken(err)
	assert.NotContains(t, got, "ABC-def")
	assert.Contains(t, got, "bot<redacted>/sendMessage")
}

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		"timeout":      context.DeadlineExceeded,
		"cancelled":    context.Canceled,
		"dns":          &net.DNSError{Err: "no such host", Name: "api.telegram.org"},
		"dial":         &net.OpError{Op: "dial", Err: errors.New("refused")},
		"http_4xx":     errors.New("telegram: chat not found (400)"),
		"http_5xx":     errors.New("telegram: bad gateway (502)"),
		"rate_limited": errors.New("telegram: too many requests (429)"),
		"unknown":      errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, classifyError(err), err.Error())
	}
}

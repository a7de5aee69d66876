package logger

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

// asyncSink moves log lines off the caller's goroutine. Lines are buffered
// per output and flushed whenever the queue drains.
type asyncSink struct {
	msgs chan sinkMsg
	done chan struct{}
	outs []*bufio.Writer

	mu     sync.RWMutex
	closed bool

	errMu  sync.Mutex
	failed error
}

type sinkMsg struct {
	line []byte
	ack  chan error
}

func newAsyncSink(bufSize int, outputs ...io.Writer) *asyncSink {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	s := &asyncSink{
		msgs: make(chan sinkMsg, 256),
		done: make(chan struct{}),
	}
	for _, w := range outputs {
		if w != nil {
			s.outs = append(s.outs, bufio.NewWriterSize(w, bufSize))
		}
	}
	go s.run()
	return s
}

func (s *asyncSink) run() {
	defer close(s.done)
	for m := range s.msgs {
		if m.ack != nil {
			m.ack <- s.flush()
			continue
		}
		s.write(m.line)
		if len(s.msgs) == 0 {
			s.record(s.flush())
		}
	}
	s.record(s.flush())
}

// Write queues a copy of p. It blocks while the queue is full.
func (s *asyncSink) Write(p []byte) error {
	if err := s.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return s.send(sinkMsg{line: bytes.Clone(p)})
}

// Flush waits until every queued line reached the outputs.
func (s *asyncSink) Flush() error {
	ack := make(chan error, 1)
	if err := s.send(sinkMsg{ack: ack}); err != nil {
		return err
	}
	if err := <-ack; err != nil {
		return err
	}
	return s.err()
}

// Close drains the queue and returns the first write error, if any.
func (s *asyncSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.msgs)
	}
	s.mu.Unlock()
	<-s.done
	return s.err()
}

func (s *asyncSink) send(m sinkMsg) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	s.msgs <- m
	return nil
}

func (s *asyncSink) write(line []byte) {
	for _, out := range s.outs {
		if _, err := out.Write(line); err != nil {
			s.record(err)
		}
	}
}

func (s *asyncSink) flush() error {
	var errs []error
	for _, out := range s.outs {
		if err := out.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *asyncSink) record(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.failed == nil {
		s.failed = err
	}
}

func (s *asyncSink) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.failed
}

package session

import (
	"bytes"
	"sync"
	"time"
)

// scrollback keeps a session's most recent output chunks, evicting the oldest
// once the total exceeds max bytes. It is replayed to terminals that attach
// after output was produced.
type scrollback struct {
	max    int
	size   int
	chunks [][]byte
}

func newScrollback(max int) *scrollback {
	return &scrollback{max: max}
}

func (s *scrollback) Append(p []byte) {
	if s.max <= 0 || len(p) == 0 {
		return
	}
	s.chunks = append(s.chunks, p)
	s.size += len(p)
	for s.size > s.max && len(s.chunks) > 1 {
		s.size -= len(s.chunks[0])
		s.chunks = s.chunks[1:]
	}
}

// Bytes returns the retained output as one slice.
func (s *scrollback) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(s.size)
	for _, c := range s.chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}

// subscriber is one consumer of a session's event stream. Sends block until
// the consumer reads or the timeout passes, so output is never skipped; a
// consumer that stalls past the timeout is disconnected instead.
type subscriber struct {
	ch   chan Event
	done chan struct{}

	sendMu    sync.Mutex
	closeOnce sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
}

// send delivers ev and reports whether the subscriber took it in time.
func (s *subscriber) send(ev Event, timeout time.Duration) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	// ch is closed only after done and under sendMu, so once done is seen
	// open here ch stays open until this send returns.
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	case <-t.C:
		return false
	}
}

// close ends the stream. Pending sends are abandoned first so the channel is
// never closed under a sender.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}

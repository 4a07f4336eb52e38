package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrollback_EvictsOldestChunks(t *testing.T) {
	s := newScrollback(10)
	s.Append([]byte("12345"))
	s.Append([]byte("67890"))
	assert.Equal(t, "1234567890", string(s.Bytes()))

	s.Append([]byte("abc"))
	assert.Equal(t, "67890abc", string(s.Bytes()))

	s.Append([]byte("a chunk larger than the cap"))
	assert.Equal(t, "a chunk larger than the cap", string(s.Bytes()))
}

func TestSubscriber_SendAfterCloseIsRejected(t *testing.T) {
	sub := newSubscriber()
	assert.True(t, sub.send(Event{Kind: EventOutput}, time.Millisecond))
	sub.close()
	sub.close()
	assert.False(t, sub.send(Event{Kind: EventOutput}, time.Millisecond))

	ev, ok := <-sub.ch
	assert.True(t, ok)
	assert.Equal(t, EventOutput, ev.Kind)
	_, ok = <-sub.ch
	assert.False(t, ok)
}

func TestSubscriber_CloseUnblocksPendingSend(t *testing.T) {
	sub := newSubscriber()
	for i := 0; i < subscriberBuffer; i++ {
		assert.True(t, sub.send(Event{}, time.Millisecond))
	}

	result := make(chan bool, 1)
	go func() { result <- sub.send(Event{}, time.Minute) }()
	time.Sleep(10 * time.Millisecond)
	sub.close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send stayed blocked after close")
	}
}

package session

// tailBuffer keeps the most recent output of a session. Once it grows past
// max bytes it is cut to the last keep bytes.
type tailBuffer struct {
	max  int
	keep int
	buf  []byte
}

func newTailBuffer(max, keep int) *tailBuffer {
	if keep <= 0 || keep > max {
		keep = max
	}
	return &tailBuffer{max: max, keep: keep}
}

func (t *tailBuffer) Write(p []byte) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.keep:]...)
	}
}

func (t *tailBuffer) Bytes() []byte {
	return append([]byte(nil), t.buf...)
}

func (t *tailBuffer) Len() int { return len(t.buf) }

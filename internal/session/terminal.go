package session

import "bytes"

// Replies sent on behalf of a terminal that is not attached yet. Agents that
// query the cursor position on startup otherwise time out and exit.
const (
	cursorPositionReply   = "\x1b[1;1R"
	deviceAttributesReply = "\x1b[?1;2c"
)

func containsDSRQuery(data []byte) bool {
	return bytes.Contains(data, []byte("\x1b[6n")) || bytes.Contains(data, []byte("\x1b[?6n"))
}

// containsDA1Query matches ESC [ c and ESC [ 0 c. ESC [ <1-9> c is cursor
// forward and is ignored.
func containsDA1Query(data []byte) bool {
	for i := 0; i+2 < len(data); i++ {
		if data[i] != '\x1b' || data[i+1] != '[' {
			continue
		}
		if data[i+2] == 'c' {
			return true
		}
		if data[i+2] == '0' && i+3 < len(data) && data[i+3] == 'c' {
			return true
		}
	}
	return false
}

package session

import (
	"bytes"
	"strings"
	"time"

	"github.com/tuzig/vt10x"
)

// Outcome is how a session's process exit is treated.
type Outcome string

const (
	// OutcomeClean exits may be closed automatically.
	OutcomeClean Outcome = "clean"
	// OutcomeNeedsAttention exits keep the session open with a diagnostic.
	OutcomeNeedsAttention Outcome = "needs_attention"
	// OutcomeStopped exits were requested through Stop.
	OutcomeStopped Outcome = "stopped"
)

const needsAttentionMessage = "\r\n\x1b[33m[Process exited quickly - session kept open for debugging]\x1b[0m\r\n"

// Classifier decides whether an exit was clean.
type Classifier struct {
	MinRuntime time.Duration
	// NotFoundSignature marks a resume of a conversation the agent no longer
	// has. Such exits are clean however quickly they happen.
	NotFoundSignature string
}

// Classify returns OutcomeClean when the process ran for at least MinRuntime
// or its output tail contains the not-found signature.
func (c Classifier) Classify(runtime time.Duration, tail []byte) Outcome {
	if runtime >= c.MinRuntime {
		return OutcomeClean
	}
	if c.NotFoundSignature != "" && containsText(tail, c.NotFoundSignature) {
		return OutcomeClean
	}
	return OutcomeNeedsAttention
}

const (
	renderCols = 256
	renderRows = 48
)

// containsText looks for text in the raw bytes first, then in the screen the
// bytes render to, where cursor movement and styling no longer split it.
func containsText(tail []byte, text string) bool {
	if bytes.Contains(tail, []byte(text)) {
		return true
	}
	return strings.Contains(renderScreen(tail), text)
}

func renderScreen(data []byte) string {
	term := vt10x.New(vt10x.WithSize(renderCols, renderRows))
	_, _ = term.Write(data)

	var sb strings.Builder
	for row := 0; row < renderRows; row++ {
		line := make([]rune, 0, renderCols)
		for col := 0; col < renderCols; col++ {
			g := term.Cell(col, row)
			if g.Char == 0 {
				line = append(line, ' ')
			} else {
				line = append(line, g.Char)
			}
		}
		sb.WriteString(strings.TrimRight(string(line), " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}

package host

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/loginhelper/internal/protocol"
)

// maxArgWidth truncates long arguments when rendering.
const maxArgWidth = 60

// Entry is one message seen by the host.
type Entry struct {
	Time      time.Time
	Direction protocol.Direction
	Message   protocol.Message
}

// Transcript records messages in both directions.
type Transcript struct {
	mu      sync.Mutex
	start   time.Time
	entries []Entry
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{start: time.Now()}
}

// Record appends a message.
func (t *Transcript) Record(dir protocol.Direction, msg protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Time: time.Now(), Direction: dir, Message: msg})
}

// Entries returns a copy of the recorded messages.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Opcodes returns the opcodes recorded in the given direction, in order.
func (t *Transcript) Opcodes(dir protocol.Direction) []protocol.Opcode {
	var ops []protocol.Opcode
	for _, e := range t.Entries() {
		if e.Direction == dir {
			ops = append(ops, e.Message.Op)
		}
	}
	return ops
}

// Render writes the transcript as a table.
func (t *Transcript) Render(w io.Writer) {
	entries := t.Entries()

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"#", "Elapsed", "Direction", "Opcode", "Argument"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for i, e := range entries {
		tw.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.Time.Sub(t.start).Round(time.Millisecond).String(),
			e.Direction.String(),
			e.Message.Op.String(),
			displayArg(e.Message.Arg),
		})
	}

	tw.Render()
}

func displayArg(arg string) string {
	arg = strings.ReplaceAll(arg, "\n", `\n`)
	if len(arg) > maxArgWidth {
		return arg[:maxArgWidth-3] + "..."
	}
	return arg
}

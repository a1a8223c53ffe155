package protocol

import (
	"fmt"
	"io"
	"strings"
)

// Message is a decoded payload: an opcode and its opaque argument text.
type Message struct {
	Op  Opcode
	Arg string
}

// NewMessagef creates a message whose argument is formatted with fmt.Sprintf.
// Use a Message literal for text that must go out verbatim.
func NewMessagef(op Opcode, format string, args ...any) Message {
	return Message{Op: op, Arg: fmt.Sprintf(format, args...)}
}

// Is reports whether the message carries the given opcode.
func (m Message) Is(op Opcode) bool {
	return m.Op == op
}

// Encode assembles the payload for m.
func Encode(m Message) ([]byte, error) {
	if !m.Op.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOpcode, string(m.Op))
	}

	payload := make([]byte, 0, OpcodeSize+len(m.Arg))
	payload = append(payload, m.Op...)
	payload = append(payload, m.Arg...)
	return payload, nil
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// String returns a single-line rendering for logs and transcripts.
func (m Message) String() string {
	arg := strings.ReplaceAll(m.Arg, "\n", `\n`)
	return fmt.Sprintf("[%s] %s", m.Op, arg)
}

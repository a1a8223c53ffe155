// Package pipe implements the helper's side of the two pipes shared with the
// game server host: framed sends to the host and blocking or timed receives
// from it.
package pipe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/loginhelper/internal/protocol"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("connection is closed")

// Connection wraps the input and output pipes of one helper session.
// Input is read unbuffered so that poll(2) on the descriptor is an exact
// answer to "is a frame waiting".
type Connection struct {
	mu     sync.Mutex
	in     *os.File
	out    *bufio.Writer
	closer io.Closer
	logger zerolog.Logger

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time

	// Counters
	sent     uint64
	received uint64

	// State
	closed bool
}

// Stats is a snapshot of connection activity.
type Stats struct {
	Sent         uint64
	Received     uint64
	ConnectedAt  time.Time
	LastActivity time.Time
}

// NewConnection wraps an input pipe and an output writer. If out is also an
// io.Closer it is closed by Close.
func NewConnection(in *os.File, out io.Writer) *Connection {
	now := time.Now()
	c := &Connection{
		in:           in,
		out:          bufio.NewWriter(out),
		connectedAt:  now,
		lastActivity: now,
		logger:       log.With().Str("component", "pipe").Str("input", in.Name()).Logger(),
	}
	if closer, ok := out.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// Stdio returns a connection over the process's standard input and output.
func Stdio() *Connection {
	return NewConnection(os.Stdin, os.Stdout)
}

// Send writes one message and flushes it so the peer sees it immediately.
func (c *Connection) Send(op protocol.Opcode, arg string) error {
	return c.SendMessage(protocol.Message{Op: op, Arg: arg})
}

// Sendf writes one message with a formatted argument.
func (c *Connection) Sendf(op protocol.Opcode, format string, args ...any) error {
	return c.SendMessage(protocol.NewMessagef(op, format, args...))
}

// SendMessage writes m as a single frame and flushes.
func (c *Connection) SendMessage(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := protocol.WriteMessage(c.out, m); err != nil {
		return fmt.Errorf("failed to send %s: %w", m.Op, err)
	}
	if err := c.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", m.Op, err)
	}

	c.sent++
	c.lastActivity = time.Now()
	c.logger.Trace().Str("opcode", m.Op.String()).Int("arg_len", len(m.Arg)).Msg("sent")
	return nil
}

// Receive blocks until a complete message arrives or the pipe closes.
func (c *Connection) Receive() (protocol.Message, error) {
	if c.IsClosed() {
		return protocol.Message{}, ErrClosed
	}

	msg, err := protocol.ReadMessage(c.in)
	if err != nil {
		return protocol.Message{}, err
	}

	c.mu.Lock()
	c.received++
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.logger.Trace().Str("opcode", msg.Op.String()).Int("arg_len", len(msg.Arg)).Msg("received")
	return msg, nil
}

// ReceiveWithin waits up to timeout for input to become available and then
// reads one message. ok is false when the timeout elapsed with nothing to read.
// Once input is available the read blocks until the whole frame has arrived.
func (c *Connection) ReceiveWithin(timeout time.Duration) (msg protocol.Message, ok bool, err error) {
	if c.IsClosed() {
		return protocol.Message{}, false, ErrClosed
	}

	ready, err := waitReadable(c.in, timeout)
	if err != nil {
		return protocol.Message{}, false, fmt.Errorf("failed to wait for input: %w", err)
	}
	if !ready {
		return protocol.Message{}, false, nil
	}

	msg, err = c.Receive()
	if err != nil {
		return protocol.Message{}, false, err
	}
	return msg, true, nil
}

// Close closes both pipes.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.out.Flush(); err != nil {
		errs = append(errs, err)
	}
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.in.Close(); err != nil {
		errs = append(errs, err)
	}

	c.logger.Debug().Uint64("sent", c.sent).Uint64("received", c.received).Msg("connection closed")
	return errors.Join(errs...)
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stats returns a snapshot of the activity counters.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Sent:         c.sent,
		Received:     c.received,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastActivity,
	}
}

// Package host implements the game server side of the login helper protocol:
// it launches a helper, reads its requests and dispatches them to a Handler,
// and forwards client output back to it. It is used for development and for
// end-to-end tests of the helper.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/loginhelper/internal/protocol"
)

// ErrUnknownOpcode is returned by Serve when the helper sends an opcode the
// host does not understand. The helper is considered broken at that point.
var ErrUnknownOpcode = errors.New("unknown opcode from helper")

// Handler receives the helper's requests.
type Handler interface {
	Print(msg string) error
	CenterPrint(msg string) error
	Broadcast(msg string) error
	ServerCommand(cmd string) error
	ClientCommand(cmd string) error
	Input() error
	Login(arg string) error
	SetAuth(auth string) error
	UserInfo() error
	ServerInfo(info string) error
}

// Host talks to one helper over its standard input and output.
type Host struct {
	mu      sync.Mutex
	in      io.Reader      // helper's stdout
	out     io.WriteCloser // helper's stdin
	handler Handler
	logger  zerolog.Logger

	transcript *Transcript
	closed     bool
}

// New creates a host reading helper frames from in and writing to out.
func New(in io.Reader, out io.WriteCloser, handler Handler) *Host {
	return &Host{
		in:         in,
		out:        out,
		handler:    handler,
		transcript: NewTranscript(),
		logger:     log.With().Str("component", "host").Logger(),
	}
}

// Transcript returns the record of all traffic seen by the host.
func (h *Host) Transcript() *Transcript {
	return h.transcript
}

// Serve dispatches helper requests until the helper closes its output, ctx
// is cancelled or a request fails. A clean end of stream returns nil.
func (h *Host) Serve(ctx context.Context) error {
	if closer, ok := h.in.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}

	for {
		msg, err := protocol.ReadMessage(h.in)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, protocol.ErrEndOfStream) {
				h.logger.Debug().Msg("helper closed its output")
				return nil
			}
			return fmt.Errorf("failed to read from helper: %w", err)
		}

		h.transcript.Record(protocol.DirToHost, msg)
		if err := h.dispatch(msg); err != nil {
			return err
		}
	}
}

func (h *Host) dispatch(msg protocol.Message) error {
	h.logger.Trace().Str("message", msg.String()).Msg("helper request")

	switch msg.Op {
	case protocol.OpPrint:
		return h.handler.Print(msg.Arg)
	case protocol.OpCenterPrint:
		return h.handler.CenterPrint(msg.Arg)
	case protocol.OpBroadcast:
		return h.handler.Broadcast(msg.Arg)
	case protocol.OpServerCommand:
		return h.handler.ServerCommand(msg.Arg)
	case protocol.OpClientCommand:
		return h.handler.ClientCommand(msg.Arg)
	case protocol.OpInput:
		return h.handler.Input()
	case protocol.OpLogin:
		return h.handler.Login(msg.Arg)
	case protocol.OpSetAuth:
		return h.handler.SetAuth(msg.Arg)
	case protocol.OpUserInfo:
		return h.handler.UserInfo()
	case protocol.OpServerInfo:
		return h.handler.ServerInfo(msg.Arg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOpcode, string(msg.Op))
	}
}

// ClientOutput forwards one line of client output to the helper.
func (h *Host) ClientOutput(text string) error {
	return h.Send(protocol.Message{Op: protocol.OpClientOutput, Arg: text})
}

// Send writes one message to the helper.
func (h *Host) Send(msg protocol.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return io.ErrClosedPipe
	}
	if err := protocol.WriteMessage(h.out, msg); err != nil {
		return fmt.Errorf("failed to write to helper: %w", err)
	}
	h.transcript.Record(protocol.DirToHelper, msg)
	return nil
}

// CloseInput closes the helper's standard input, which it sees as end of
// stream.
func (h *Host) CloseInput() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.out.Close()
}

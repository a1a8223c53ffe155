package session

import (
	"context"

	"github.com/energizer-project/loginhelper/internal/events"
	"github.com/energizer-project/loginhelper/internal/protocol"
)

// commandHandler runs one in-game command.
type commandHandler func(s *Session, ctx context.Context) error

// commands maps exact chat text to its handler. Anything else is ignored.
var commands = map[string]commandHandler{
	cmdBye:   (*Session).cmdBye,
	cmdAbout: (*Session).cmdAbout,
	cmdHello: (*Session).cmdHello,
}

// steadyState waits for client input, re-validating whenever a poll interval
// passes in silence. It returns errBye when the client leaves.
func (s *Session) steadyState(ctx context.Context) error {
	s.setState(StateSteadyState)

	for {
		msg, ok, err := s.receiveWithin(ctx, s.opts.PollInterval)
		if err != nil {
			return err
		}

		if ok {
			if err := s.handleMessage(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := s.revalidate(ctx); err != nil {
			return err
		}
	}
}

// handleMessage echoes msg when debugging and dispatches chat commands.
func (s *Session) handleMessage(ctx context.Context, msg protocol.Message) error {
	if s.opts.DebugEcho {
		if err := s.conn.Sendf(protocol.OpPrint, textDebugEcho, msg.Op, msg.Arg); err != nil {
			return err
		}
	}

	if !msg.Is(protocol.OpClientOutput) {
		return nil
	}

	handler, ok := commands[msg.Arg]
	if !ok {
		return nil
	}

	err := handler(s, ctx)
	s.emit(ctx, events.EventClientCommand, events.ClientCommandPayload{
		Username: s.Username(),
		Command:  msg.Arg,
		Annoy:    s.Annoying(),
	})
	s.logger.Debug().Str("command", msg.Arg).Msg("client command")
	return err
}

func (s *Session) cmdBye(context.Context) error {
	return errBye
}

func (s *Session) cmdAbout(context.Context) error {
	return s.conn.Send(protocol.OpPrint, textAbout)
}

func (s *Session) cmdHello(context.Context) error {
	s.mu.Lock()
	s.annoy = !s.annoy
	annoy := s.annoy
	s.mu.Unlock()

	if annoy {
		return s.conn.Send(protocol.OpPrint, textAnnoyOn)
	}
	return s.conn.Send(protocol.OpPrint, textAnnoyOff)
}

// revalidate runs one idle cycle: the settings re-check, then the greeting
// burst if annoyance is on.
func (s *Session) revalidate(ctx context.Context) error {
	if err := s.checkAllowSnap(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.cycles++
	cycle := s.cycles
	s.mu.Unlock()

	s.emit(ctx, events.EventRevalidated, events.RevalidatedPayload{
		Username: s.Username(),
		CVar:     s.opts.ProbeCVar,
		Cycle:    cycle,
	})

	if !s.Annoying() {
		return nil
	}
	return s.sendAll(annoyBurst(s.Username()))
}

// annoyBurst greets username once through every channel.
func annoyBurst(username string) []protocol.Message {
	return []protocol.Message{
		protocol.NewMessagef(protocol.OpCenterPrint, textAnnoyCenter, username),
		protocol.NewMessagef(protocol.OpPrint, textAnnoyConsole, username),
		protocol.NewMessagef(protocol.OpBroadcast, textAnnoyBroadcast, username),
		protocol.NewMessagef(protocol.OpServerCommand, textAnnoyServer, username),
		protocol.NewMessagef(protocol.OpClientCommand, textAnnoyClient, username),
	}
}

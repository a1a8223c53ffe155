package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/energizer-project/loginhelper/internal/events"
	"github.com/energizer-project/loginhelper/internal/protocol"
)

// ctxCheckInterval bounds how long a wait may go without looking at ctx.
const ctxCheckInterval = 250 * time.Millisecond

// checkAllowSnap probes the configured client setting and turns the client
// away when it is disabled.
func (s *Session) checkAllowSnap(ctx context.Context) error {
	value, err := s.probe(ctx, s.opts.ProbeCVar)
	if errors.Is(err, ErrProbeTimeout) {
		s.logger.Warn().Str("cvar", s.opts.ProbeCVar).Dur("timeout", s.opts.ProbeTimeout).Msg("probe unanswered")
		if sendErr := s.conn.Sendf(protocol.OpPrint, textProbeTimeout, s.opts.ProbeCVar); sendErr != nil {
			s.logger.Debug().Err(sendErr).Msg("timeout notice not delivered")
		}
		return err
	}
	if err != nil {
		return err
	}

	if value != 0 {
		s.logger.Debug().Str("cvar", s.opts.ProbeCVar).Int("value", value).Msg("probe passed")
		return nil
	}

	s.emit(ctx, events.EventConfigDenied, events.ConfigDeniedPayload{
		CVar:     s.opts.ProbeCVar,
		Username: s.Username(),
	})
	s.logger.Warn().Str("cvar", s.opts.ProbeCVar).Str("username", s.Username()).Msg("client setting disabled")

	if err := s.conn.Sendf(protocol.OpPrint, textDenied, s.opts.ProbeCVar); err != nil {
		s.logger.Debug().Err(err).Msg("denial notice not delivered")
	}
	return ErrConfigDenied
}

// probe asks the client to echo the value of cvar behind a fresh token and
// waits for the matching reply. Every other message read meanwhile is
// discarded. The returned value is the first digit after the token; a missing
// or non-digit character reads as 0.
func (s *Session) probe(ctx context.Context, cvar string) (int, error) {
	token, err := s.opts.NewToken(s.opts.TokenLength)
	if err != nil {
		return 0, fmt.Errorf("failed to generate probe token: %w", err)
	}
	prefix := token + ": "

	if err := s.conn.Send(protocol.OpInput, ""); err != nil {
		return 0, err
	}
	if err := s.conn.Sendf(protocol.OpClientCommand, "say %s$%s", prefix, cvar); err != nil {
		return 0, err
	}

	var deadline time.Time
	if s.opts.ProbeTimeout > 0 {
		deadline = time.Now().Add(s.opts.ProbeTimeout)
	}

	for {
		msg, err := s.next(ctx, deadline)
		if err != nil {
			return 0, err
		}
		if msg.Is(protocol.OpClientOutput) && strings.HasPrefix(msg.Arg, prefix) {
			return leadingDigit(msg.Arg[len(prefix):]), nil
		}
		s.logger.Debug().Str("message", msg.String()).Msg("discarded while probing")
	}
}

// next reads the next message before deadline. A zero deadline waits forever.
func (s *Session) next(ctx context.Context, deadline time.Time) (protocol.Message, error) {
	for {
		timeout := time.Duration(0)
		if !deadline.IsZero() {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return protocol.Message{}, ErrProbeTimeout
			}
		}

		msg, ok, err := s.receiveWithin(ctx, timeout)
		if err != nil {
			return protocol.Message{}, err
		}
		if ok {
			return msg, nil
		}
	}
}

// receiveWithin waits up to timeout for one message, waking periodically to
// honour ctx. A non-positive timeout waits until a message or cancellation.
func (s *Session) receiveWithin(ctx context.Context, timeout time.Duration) (protocol.Message, bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return protocol.Message{}, false, err
		}

		slice := ctxCheckInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return protocol.Message{}, false, nil
			}
			if remaining < slice {
				slice = remaining
			}
		}

		msg, ok, err := s.conn.ReceiveWithin(slice)
		if err != nil || ok {
			return msg, ok, err
		}
	}
}

func leadingDigit(s string) int {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0
	}
	return int(s[0] - '0')
}

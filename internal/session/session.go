// Package session drives one client through the login handshake and then
// keeps it company for the rest of its stay on the server: periodic
// re-validation of client settings and a handful of chat commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/loginhelper/internal/auth"
	"github.com/energizer-project/loginhelper/internal/config"
	"github.com/energizer-project/loginhelper/internal/events"
	"github.com/energizer-project/loginhelper/internal/pipe"
	"github.com/energizer-project/loginhelper/internal/protocol"
	"github.com/energizer-project/loginhelper/internal/util"
)

var (
	// ErrConfigDenied means the probed client setting is disabled.
	ErrConfigDenied = errors.New("client setting denied")
	// ErrCredentialRejected means the supplied password did not validate.
	ErrCredentialRejected = errors.New("credentials rejected")
	// ErrProbeTimeout means the client did not answer a probe within the bound.
	ErrProbeTimeout = errors.New("probe timed out")

	// errBye ends the steady state loop on the client's request.
	errBye = errors.New("client said bye")
)

// Conn is the transport the session talks through.
type Conn interface {
	Send(op protocol.Opcode, arg string) error
	Sendf(op protocol.Opcode, format string, args ...any) error
	SendMessage(m protocol.Message) error
	Receive() (protocol.Message, error)
	ReceiveWithin(timeout time.Duration) (protocol.Message, bool, error)
	Stats() pipe.Stats
}

// State is a phase of the session lifecycle.
type State int

const (
	StateGreeting State = iota
	StateAllowSnapCheck
	StateCredentialPrompt
	StateAccepted
	StateRejected
	StateSteadyState
	StateEnded
)

var stateStrings = map[State]string{
	StateGreeting:         "greeting",
	StateAllowSnapCheck:   "allow_snap_check",
	StateCredentialPrompt: "credential_prompt",
	StateAccepted:         "accepted",
	StateRejected:         "rejected",
	StateSteadyState:      "steady_state",
	StateEnded:            "ended",
}

// String returns the string representation of State.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// Options configures a session.
type Options struct {
	PollInterval time.Duration
	ProbeTimeout time.Duration // zero waits for the probe reply forever
	ProbeCVar    string
	TokenLength  int
	DebugEcho    bool
	AnnoyOnJoin  bool

	// CredentialsHint is printed before the username prompt.
	CredentialsHint string

	Validator auth.Validator
	Bus       *events.EventBus // optional

	// NewToken generates correlation tokens; defaults to util.RandomToken.
	NewToken func(length int) (string, error)
}

// OptionsFromConfig builds session options from the loaded configuration.
func OptionsFromConfig(cfg config.SessionConfig, validator auth.Validator, bus *events.EventBus) Options {
	hint := textAccountHint
	if _, ok := validator.(*auth.StaticValidator); ok {
		hint = fmt.Sprintf(textCredentialsHint, cfg.Secret)
	}

	return Options{
		PollInterval:    cfg.PollInterval(),
		ProbeTimeout:    cfg.ProbeTimeout(),
		ProbeCVar:       cfg.ProbeCVar,
		TokenLength:     cfg.TokenLength,
		DebugEcho:       cfg.DebugEcho,
		AnnoyOnJoin:     cfg.AnnoyOnJoin,
		CredentialsHint: hint,
		Validator:       validator,
		Bus:             bus,
	}
}

// Session is one client's login and stay. It is driven by a single goroutine
// calling Run; the accessors may be called from others.
type Session struct {
	conn   Conn
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	username string
	annoy    bool
	cycles   int

	startedAt time.Time
}

// New creates a session over conn. Zero-valued options fall back to the
// compiled-in defaults.
func New(conn Conn, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval * time.Second
	}
	if opts.ProbeCVar == "" {
		opts.ProbeCVar = config.DefaultProbeCVar
	}
	if opts.TokenLength <= 0 {
		opts.TokenLength = config.DefaultTokenLength
	}
	if opts.Validator == nil {
		opts.Validator = auth.NewStaticValidator(config.DefaultSecret)
	}
	if opts.CredentialsHint == "" {
		opts.CredentialsHint = textAccountHint
	}
	if opts.NewToken == nil {
		opts.NewToken = util.RandomToken
	}

	return &Session{
		conn:   conn,
		opts:   opts,
		annoy:  opts.AnnoyOnJoin,
		state:  StateGreeting,
		logger: log.With().Str("component", "session").Int("pid", os.Getpid()).Logger(),
	}
}

// Run performs the handshake and then the steady state loop until the
// session ends. It returns nil when the client says !bye or the host closes
// the pipe, ctx.Err() when ctx is cancelled, and ErrConfigDenied,
// ErrCredentialRejected or ErrProbeTimeout when the client is turned away.
func (s *Session) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	s.emit(ctx, events.EventSessionStarted, events.SessionStartedPayload{PID: os.Getpid()})
	s.logger.Info().Msg("session started")

	err := s.handshake(ctx)
	if err == nil {
		err = s.steadyState(ctx)
	}

	reason := endReason(err)
	switch reason {
	case events.EndReasonDenied, events.EndReasonRejected, events.EndReasonProbeTimeout:
		// Already told the client why.
	default:
		if sendErr := s.conn.Send(protocol.OpPrint, textDisconnected); sendErr != nil {
			s.logger.Debug().Err(sendErr).Msg("final notice not delivered")
		}
	}

	s.setState(StateEnded)
	stats := s.conn.Stats()
	s.emit(context.WithoutCancel(ctx), events.EventSessionEnded, events.SessionEndedPayload{
		Username: s.Username(),
		Reason:   reason,
		Duration: time.Since(s.startedAt),
		Sent:     stats.Sent,
		Received: stats.Received,
	})

	logEvent := s.logger.Info()
	if reason == events.EndReasonError {
		logEvent = s.logger.Error().Err(err)
	}
	logEvent.
		Str("reason", string(reason)).
		Str("username", s.Username()).
		Uint64("sent", stats.Sent).
		Uint64("received", stats.Received).
		Msg("session ended")

	switch reason {
	case events.EndReasonBye, events.EndReasonEndOfStream:
		return nil
	default:
		return err
	}
}

// endReason classifies the error that ended the session.
func endReason(err error) events.EndReason {
	switch {
	case err == nil, errors.Is(err, errBye):
		return events.EndReasonBye
	case errors.Is(err, ErrConfigDenied):
		return events.EndReasonDenied
	case errors.Is(err, ErrCredentialRejected):
		return events.EndReasonRejected
	case errors.Is(err, ErrProbeTimeout):
		return events.EndReasonProbeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return events.EndReasonCancelled
	case protocol.IsEndOfStream(err):
		return events.EndReasonEndOfStream
	default:
		return events.EndReasonError
	}
}

// handshake runs Greeting through Accepted.
func (s *Session) handshake(ctx context.Context) error {
	s.setState(StateGreeting)
	if err := s.conn.Send(protocol.OpPrint, textBanner); err != nil {
		return err
	}

	s.setState(StateAllowSnapCheck)
	if err := s.checkAllowSnap(ctx); err != nil {
		return err
	}

	s.setState(StateCredentialPrompt)
	if err := s.conn.Send(protocol.OpPrint, s.opts.CredentialsHint); err != nil {
		return err
	}

	username, err := s.prompt(textUsernamePrompt)
	if err != nil {
		return err
	}
	password, err := s.prompt(fmt.Sprintf(textPasswordPrompt, username))
	if err != nil {
		return err
	}

	ok, err := s.opts.Validator.Validate(ctx, username, password)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("credential check failed")
	}
	if !ok || err != nil {
		s.setState(StateRejected)
		s.emit(ctx, events.EventLoginRejected, events.LoginPayload{Username: username})
		s.logger.Warn().Str("username", username).Msg("login rejected")
		if sendErr := s.conn.Send(protocol.OpPrint, textLoginFailed); sendErr != nil {
			s.logger.Debug().Err(sendErr).Msg("rejection notice not delivered")
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCredentialRejected, err)
		}
		return ErrCredentialRejected
	}

	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
	s.setState(StateAccepted)

	if err := s.admit(username); err != nil {
		return err
	}

	s.emit(ctx, events.EventLoginAccepted, events.LoginPayload{Username: username})
	s.logger.Info().Str("username", username).Msg("login accepted")
	return nil
}

// prompt prints text, asks the host for the client's next input and returns it.
// The opcode of the reply is not checked.
func (s *Session) prompt(text string) (string, error) {
	if err := s.conn.Send(protocol.OpPrint, text); err != nil {
		return "", err
	}
	if err := s.conn.Send(protocol.OpInput, ""); err != nil {
		return "", err
	}
	msg, err := s.conn.Receive()
	if err != nil {
		return "", err
	}
	return msg.Arg, nil
}

// admit sends the accepted-login sequence: LOGIN, SAUTH, capability grants,
// confirmation and the join broadcast, in that order.
func (s *Session) admit(username string) error {
	msgs := []protocol.Message{
		{Op: protocol.OpLogin},
		{Op: protocol.OpSetAuth, Arg: username},
	}
	for _, cmd := range capabilityCommands {
		msgs = append(msgs, protocol.Message{Op: protocol.OpClientCommand, Arg: cmd})
	}
	msgs = append(msgs,
		protocol.Message{Op: protocol.OpPrint, Arg: textCapabilities},
		protocol.NewMessagef(protocol.OpBroadcast, textJoinBroadcast, username),
	)
	return s.sendAll(msgs)
}

func (s *Session) sendAll(msgs []protocol.Message) error {
	for _, m := range msgs {
		if err := s.conn.SendMessage(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Emit(ctx, events.Event{
		Type:    eventType,
		Source:  "session",
		Payload: payload,
	})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		s.logger.Debug().Str("from", prev.String()).Str("to", state.String()).Msg("state change")
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the authenticated username, empty before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Annoying returns the annoyance flag.
func (s *Session) Annoying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annoy
}

// Revalidations returns how many idle re-checks have passed.
func (s *Session) Revalidations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

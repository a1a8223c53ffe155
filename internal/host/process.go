package host

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// shell runs the helper command line, as the game server does.
const shell = "/bin/sh"

// stopGrace is how long a stopped helper gets before it is killed.
const stopGrace = 2 * time.Second

// Process is a launched helper and the host attached to its pipes.
type Process struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	host   *Host
	logger zerolog.Logger

	pid       int
	startedAt time.Time
	exitedAt  time.Time
	exitCode  int
	exited    bool
}

// Launch starts program through the shell with its standard input and output
// connected to a new Host. Cancelling ctx terminates the helper.
func Launch(ctx context.Context, program string, handler Handler) (*Process, error) {
	cmd := exec.CommandContext(ctx, shell, "-c", program)
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = stopGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create helper stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start helper: %w", err)
	}

	p := &Process{
		cmd:       cmd,
		host:      New(stdout, stdin, handler),
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		exitCode:  -1,
	}
	p.logger = log.With().Str("component", "host").Int("helper_pid", p.pid).Logger()
	p.logger.Info().Str("program", program).Msg("helper started")

	return p, nil
}

// Host returns the protocol endpoint connected to the helper.
func (p *Process) Host() *Host {
	return p.host
}

// PID returns the helper's process ID. With the shell wrapper this is the
// shell unless it exec'd the program.
func (p *Process) PID() int {
	return p.pid
}

// Uptime returns how long the helper has run, or ran until it exited.
func (p *Process) Uptime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return p.exitedAt.Sub(p.startedAt)
	}
	return time.Since(p.startedAt)
}

// Wait waits for the helper to exit and returns its exit code. It must be
// called after Serve has returned.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.exitedAt = time.Now()
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}

	p.logger.Info().Int("exit_code", p.exitCode).Dur("uptime", p.exitedAt.Sub(p.startedAt)).Msg("helper exited")

	if _, ok := err.(*exec.ExitError); ok {
		return p.exitCode, nil
	}
	return p.exitCode, err
}

// Stop asks the helper to terminate.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return nil
	}
	p.logger.Debug().Msg("stopping helper")
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// helperhost is a development stand-in for the game server side of the login
// helper protocol. It launches a helper command, plays the client from the
// terminal and prints the full message transcript when the helper exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/energizer-project/loginhelper/internal/cli"
	"github.com/energizer-project/loginhelper/internal/config"
	"github.com/energizer-project/loginhelper/internal/host"
	"github.com/energizer-project/loginhelper/internal/util"
)

const usage = `Usage: helperhost [flags] <helper command>

The helper command is run through /bin/sh. Each line typed on the terminal is
sent to it as client output; /help lists console commands.

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "helperhost: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("helperhost", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}

	cvarFlags := flags.StringArray("cvar", []string{config.DefaultProbeCVar + "=1"}, "Client variable as name=value (repeatable)")
	logLevel := flags.String("log-level", "info", "Log level")
	statsInterval := flags.Duration("stats-interval", time.Second, "Helper resource sampling interval (0 disables)")
	noTranscript := flags.Bool("no-transcript", false, "Do not print the transcript at exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("missing helper command")
	}
	program := strings.Join(flags.Args(), " ")

	logCfg := util.DefaultLogConfig()
	logCfg.Level = *logLevel
	if err := util.InitLogger(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cvars, err := parseCvars(*cvarFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := host.NewSimulatedClient(os.Stdout, cvars)
	proc, err := host.Launch(ctx, program, client)
	if err != nil {
		return err
	}
	client.Bind(proc.Host())

	var monitor *host.ProcessMonitor
	if *statsInterval > 0 {
		if monitor, err = host.NewProcessMonitor(proc.PID()); err != nil {
			log.Warn().Err(err).Msg("process monitoring unavailable")
			monitor = nil
		} else {
			go monitor.Run(ctx, *statsInterval)
		}
	}

	names := make([]string, 0, len(cvars))
	for name := range cvars {
		names = append(names, name)
	}
	sort.Strings(names)

	console := cli.NewConsole(proc.Host(), client, monitor, os.Stdout, names)
	consoleCtx, stopConsole := context.WithCancel(ctx)
	defer stopConsole()
	go console.Start(consoleCtx, os.Stdin)

	serveErr := proc.Host().Serve(ctx)
	stopConsole()
	if serveErr != nil {
		log.Error().Err(serveErr).Msg("protocol error, stopping helper")
		if err := proc.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop helper")
		}
	}

	code, waitErr := proc.Wait()

	fmt.Println()
	if !*noTranscript {
		proc.Host().Transcript().Render(os.Stdout)
	}
	if monitor != nil {
		if err := console.PrintStats(); err != nil {
			log.Debug().Err(err).Msg("no stats to show")
		}
	}
	fmt.Printf("helper exited with status %d after %s\n", code, proc.Uptime().Round(time.Millisecond))

	if waitErr != nil {
		return waitErr
	}
	if serveErr != nil {
		return serveErr
	}
	if code != 0 {
		return fmt.Errorf("helper exited with status %d", code)
	}
	return nil
}

// parseCvars turns name=value flags into a map. Later flags win.
func parseCvars(flags []string) (map[string]string, error) {
	cvars := make(map[string]string, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --cvar %q, expected name=value", f)
		}
		cvars[name] = value
	}
	return cvars, nil
}

// Login Helper - client login gate for the game server host.
//
// The host launches one helper per connecting client and talks to it over the
// helper's standard input and output. The helper checks a client setting,
// asks for credentials, grants the session and keeps re-checking the setting
// until the client leaves.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/energizer-project/loginhelper/internal/auth"
	"github.com/energizer-project/loginhelper/internal/config"
	"github.com/energizer-project/loginhelper/internal/db"
	"github.com/energizer-project/loginhelper/internal/events"
	"github.com/energizer-project/loginhelper/internal/pipe"
	"github.com/energizer-project/loginhelper/internal/session"
	"github.com/energizer-project/loginhelper/internal/telemetry"
	"github.com/energizer-project/loginhelper/internal/util"
)

const (
	AppName    = "loginhelper"
	AppVersion = "1.0.0"
	Usage      = `Usage: loginhelper [flags] [command]

Without a command the helper speaks the host protocol on stdin/stdout.

Commands:
  init-config <path>   Write the default configuration to path (-i to edit it first)
  adduser <name>       Add a user to the credential database
  passwd <name>        Change a user's password
  deluser <name>       Remove a user from the credential database
  users                List users in the credential database
  audit [n]            Show the n most recent session events (default 20)

Flags:
`
)

// mqttConnectTimeout bounds start-up when the broker is unreachable.
const mqttConnectTimeout = 3 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		flags.PrintDefaults()
	}

	configPath := flags.String("config", "", "JSON configuration file (defaults apply when empty)")
	logLevel := flags.String("log-level", "", "Override the configured log level")
	showVersion := flags.Bool("version", false, "Print the version and exit")
	interactive := flags.BoolP("interactive", "i", false, "With init-config, ask for each setting")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Fprintf(os.Stderr, "%s %s (%s/%s)\n", AppName, AppVersion, runtime.GOOS, runtime.GOARCH)
		return nil
	}

	// Logger with defaults first, reconfigured once the config is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	rest := flags.Args()
	if len(rest) > 0 && rest[0] == "init-config" {
		if len(rest) != 2 {
			return fmt.Errorf("usage: init-config <path>")
		}
		cfg := config.DefaultConfig()
		if err := cfg.SaveAs(rest[1]); err != nil {
			return err
		}
		if *interactive {
			return config.RunSetupWizard(cfg, os.Stdin, os.Stderr)
		}
		fmt.Fprintf(os.Stderr, "wrote default configuration to %s\n", rest[1])
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := util.InitLogger(cfg.Logging); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return validation.Err()
	}

	if len(rest) > 0 {
		return runCommand(cfg, rest[0], rest[1:])
	}
	return serve(cfg)
}

// serve runs one login session over stdin/stdout.
func serve(cfg *config.Config) error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("standard input is a terminal; the helper must be launched by the host (see --help)")
	}

	// The host may close our output at any time; a failed write must return
	// EPIPE instead of killing the process.
	signal.Ignore(syscall.SIGPIPE)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := util.ComponentLogger("main")
	logger.Info().
		Str("version", AppVersion).
		Int("pid", os.Getpid()).
		Str("config", cfg.Path()).
		Msg("starting login helper")

	bus := events.NewEventBus()

	var validator auth.Validator = auth.NewStaticValidator(cfg.Session.Secret)
	if cfg.Credentials.Database != "" {
		database, err := db.NewDatabase(cfg.Credentials.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		validator = db.NewCredentialStore(database)
		db.NewAuditLog(database).Attach(bus)
	}

	if cfg.MQTT.Enabled {
		handler, err := telemetry.NewMQTTHandler(cfg.MQTT)
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry disabled")
		} else {
			connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
			if err := handler.Connect(connectCtx); err != nil {
				logger.Warn().Err(err).Msg("MQTT broker unreachable, events will not be published")
			}
			cancel()
			handler.Attach(bus)
			defer handler.Close()
		}
	}

	conn := pipe.Stdio()
	sess := session.New(conn, session.OptionsFromConfig(cfg.Session, validator, bus))
	err := sess.Run(ctx)

	// Let telemetry and audit handlers finish before the deferred closes run.
	bus.Stop()

	stats := conn.Stats()
	logger.Info().
		Str("state", sess.State().String()).
		Str("username", sess.Username()).
		Uint64("sent", stats.Sent).
		Uint64("received", stats.Received).
		Msg("login helper finished")

	return reportOutcome(logger, err)
}

// reportOutcome logs how the session ended and returns the error that should
// set the exit status. Clients turned away on purpose are not failures of the
// helper, but still exit non-zero.
func reportOutcome(logger zerolog.Logger, err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, session.ErrConfigDenied),
		errors.Is(err, session.ErrCredentialRejected),
		errors.Is(err, session.ErrProbeTimeout):
		logger.Info().Err(err).Msg("client turned away")
	default:
		logger.Error().Err(err).Msg("session failed")
	}
	return err
}

// runCommand executes one of the maintenance subcommands.
func runCommand(cfg *config.Config, name string, args []string) error {
	if cfg.Credentials.Database == "" {
		return fmt.Errorf("%s: credentials.database is not configured", name)
	}

	database, err := db.NewDatabase(cfg.Credentials.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	store := db.NewCredentialStore(database)

	switch name {
	case "adduser", "passwd":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <name>", name)
		}
		password, err := readPassword(os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		if name == "adduser" {
			err = store.AddUser(ctx, args[0], password)
		} else {
			err = store.SetPassword(ctx, args[0], password)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: ok\n", args[0])

	case "deluser":
		if len(args) != 1 {
			return fmt.Errorf("usage: deluser <name>")
		}
		if err := store.RemoveUser(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: removed\n", args[0])

	case "users":
		users, err := store.Users(ctx)
		if err != nil {
			return err
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"Username", "Created", "Last Login"})
		for _, u := range users {
			tw.Append([]string{u.Username, formatTime(u.CreatedAt), formatTime(u.LastLogin)})
		}
		tw.Render()

	case "audit":
		n := 20
		if len(args) > 0 {
			if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
				return fmt.Errorf("audit: invalid count %q", args[0])
			}
		}
		entries, err := db.NewAuditLog(database).Recent(ctx, n)
		if err != nil {
			return err
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"Time", "PID", "Event", "Username", "Detail"})
		tw.SetAutoWrapText(false)
		for _, e := range entries {
			tw.Append([]string{
				formatTime(e.Time),
				strconv.Itoa(e.PID),
				e.Type,
				e.Username,
				e.Detail,
			})
		}
		tw.Render()

	default:
		return fmt.Errorf("unknown command %q (see --help)", name)
	}
	return nil
}

// readPassword prompts twice on a terminal, or reads one line otherwise.
func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(prompt, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

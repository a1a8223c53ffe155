package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxSetupAttempts bounds how often the wizard restarts after a failed validation.
const maxSetupAttempts = 3

// RunSetupWizard asks for the main settings on out, reads the answers from in
// and saves the result to the config path. An empty answer keeps the current
// value.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║          Login Helper - Configuration        ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")

	for attempt := 1; ; attempt++ {
		askSettings(reader, out, cfg)

		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			break
		}

		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if attempt == maxSetupAttempts {
			return fmt.Errorf("configuration validation failed: %w", result.Err())
		}
		retry := promptString(reader, out, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) != "yes" {
			return fmt.Errorf("configuration validation failed: %w", result.Err())
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to %s\n", cfg.Path())
	return nil
}

func askSettings(reader *bufio.Reader, out io.Writer, cfg *Config) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Session ──")

	s := &cfg.Session
	s.Secret = promptString(reader, out, "Shared password (used without a credential database)", s.Secret)
	s.ProbeCVar = promptString(reader, out, "Client setting that must stay enabled", s.ProbeCVar)
	s.PollIntervalSec = promptInt(reader, out, "Re-check interval in seconds", s.PollIntervalSec)
	s.ProbeTimeoutSec = promptInt(reader, out, "Probe timeout in seconds (0 waits forever)", s.ProbeTimeoutSec)
	s.DebugEcho = promptBool(reader, out, "Echo client messages back", s.DebugEcho)
	s.AnnoyOnJoin = promptBool(reader, out, "Start with greetings enabled", s.AnnoyOnJoin)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Credentials ──")

	cfg.Credentials.Database = promptString(reader, out, "Credential database (blank for the shared password)", cfg.Credentials.Database)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")

	m := &cfg.MQTT
	m.Enabled = promptBool(reader, out, "Enable MQTT telemetry", m.Enabled)
	if m.Enabled {
		m.BrokerURL = promptString(reader, out, "Broker host", m.BrokerURL)
		m.Port = promptInt(reader, out, "Broker port", m.Port)
		m.UseTLS = promptBool(reader, out, "Use TLS", m.UseTLS)
		m.TopicPrefix = promptString(reader, out, "Topic prefix", m.TopicPrefix)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Logging ──")

	cfg.Logging.Level = promptString(reader, out, "Log level", cfg.Logging.Level)
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}

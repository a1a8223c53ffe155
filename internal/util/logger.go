// Package util provides utility functions used throughout the login helper.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level     string `json:"level"`
	Directory string `json:"directory"`
	File      bool   `json:"file"`
	Console   bool   `json:"console"`
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:     "info",
		Directory: "logs",
		File:      false,
		Console:   true,
	}
}

// InitLogger initializes the zerolog global logger.
//
// Standard output carries the host protocol, so console output always goes to
// stderr and nothing here may ever write to os.Stdout.
func InitLogger(cfg LogConfig) error {
	return initLogger(cfg, os.Stderr)
}

func initLogger(cfg LogConfig, console io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	logFilePath := ""

	// File writer (JSON format for machine parsing)
	if cfg.File {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
		}

		logFileName := fmt.Sprintf("loginhelper_%s.log", time.Now().Format("2006-01-02"))
		logFilePath = filepath.Join(cfg.Directory, logFileName)

		logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
		}
		writers = append(writers, logFile)
	}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: "15:04:05",
			NoColor:    true,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "loginhelper").
		Int("pid", os.Getpid()).
		Logger()

	log.Debug().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	return nil
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

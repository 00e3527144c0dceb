// Command loom is a terminal client for a streaming chat service.
//
// Usage:
//
//	LOOM_TOKEN=... loom [flags]
//
// The token is read from the LOOM_TOKEN environment variable. Threads are
// saved as JSON on exit and can be resumed with --thread.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loomlabs/loom"
	loomjson "github.com/loomlabs/loom/json"
	"github.com/loomlabs/loom/transport"
	"github.com/loomlabs/loom/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultBaseURL = "https://api.loom.dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL  string
		thread   string
		logFile  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "loom",
		Short:         "Streaming chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(baseURL, thread, logFile, logLevel, os.Getenv("LOOM_TOKEN"))
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", defaultBaseURL, "Chat service base URL")
	cmd.Flags().StringVar(&thread, "thread", "", "Path to a thread file to resume")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (the TUI owns the terminal)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")

	return cmd
}

func run(baseURL, threadPath, logFile, logLevel, token string) error {
	if token == "" {
		return fmt.Errorf("LOOM_TOKEN is not set")
	}

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, closeLog, err := newLogger(logFile, logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	thread, err := loadOrCreateThread(threadPath)
	if err != nil {
		return err
	}

	client := transport.New(loom.StaticToken(token), transport.WithBaseURL(baseURL))
	engine := loom.NewEngine(client, loom.WithLogger(logger))

	sessionID := uuid.NewString()
	logger.Info().Str("thread_id", thread.ID).Str("session_id", sessionID).Msg("starting")

	model := tui.New(engine, &thread, sessionID, loom.DefaultTheme())
	if err := tui.Run(ctx, model); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	engine.Stop()

	// Save the thread on exit.
	savePath := threadPath
	if savePath == "" {
		if len(thread.Messages) == 0 {
			return nil
		}
		savePath = defaultThreadPath(thread.ID)
	}
	if err := loomjson.Save(savePath, thread); err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Thread saved to %s\n", savePath)
	return nil
}

// newLogger builds the file-backed logger. Logging goes to a file because
// the TUI owns the terminal; without --log-file everything is discarded.
func newLogger(path, level string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.Nop(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := zerolog.New(f).Level(parseLevel(level)).With().Timestamp().Logger()
	return logger, func() { f.Close() }, nil
}

// parseLevel converts a string level into zerolog.Level with a safe default.
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info":
		fallthrough
	default:
		return zerolog.InfoLevel
	}
}

func loadOrCreateThread(path string) (loom.Thread, error) {
	if path != "" {
		th, err := loomjson.Load(path)
		switch {
		case err == nil:
			return th, nil
		case errors.Is(err, os.ErrNotExist):
			// A fresh path is fine; the thread is created below and saved
			// there on exit.
		default:
			return loom.Thread{}, fmt.Errorf("load thread: %w", err)
		}
	}
	now := time.Now()
	return loom.Thread{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func defaultThreadPath(id string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".loom", "threads", id+".json")
}

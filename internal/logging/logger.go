package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel  // Minimum log level to output
	Format LogFormat // Output format (json or text)
	Output io.Writer // Output destination (defaults to stderr)
	Quiet  bool      // If true, suppress non-error output
}

// Logger wraps slog.Logger with secure logging practices
type Logger struct {
	logger *slog.Logger
	config Config
}

// NewLogger creates a new secure logger instance
func NewLogger(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: convertLogLevel(config.Level),
	}

	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		config: config,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return NewLogger(Config{Output: io.Discard, Level: LevelError})
}

func convertLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	if l.config.Quiet {
		return
	}
	l.logger.Info(msg, args...)
}

// Warn logs a warning. Warnings are suppressed in quiet mode like info.
func (l *Logger) Warn(msg string, args ...any) {
	if l.config.Quiet {
		return
	}
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// InfoContext logs an informational message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	if l.config.Quiet {
		return
	}
	l.logger.InfoContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// With returns a logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		logger: l.logger.With(args...),
		config: l.config,
	}
}

// LogConnect logs an established control-plane session. Passwords are never logged.
func (l *Logger) LogConnect(name, host string, port int, remote bool, duration time.Duration) {
	l.Info("host connected",
		"name", name,
		"host", host,
		"port", port,
		"remote", remote,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogConnectError logs a failed connect or reconnect attempt
func (l *Logger) LogConnectError(name, host string, port int, err error) {
	l.Error("host connection failed",
		"name", name,
		"host", host,
		"port", port,
		"error", err.Error(),
	)
}

// LogDisconnect logs a released control-plane session
func (l *Logger) LogDisconnect(name string) {
	l.Info("host disconnected", "name", name)
}

// LogHostSwitch logs a change of the active host
func (l *Logger) LogHostSwitch(from, to string) {
	l.Info("active host switched",
		"from", from,
		"to", to,
	)
}

// LogCommandError logs a command that failed. Arguments are not logged since
// they may carry guest credentials.
func (l *Logger) LogCommandError(command string, err error) {
	l.Error("command failed",
		"command", command,
		"error", err.Error(),
	)
}

// LogFanout logs the outcome of a group fan-out
func (l *Logger) LogFanout(command, group string, succeeded, failed, skipped int, duration time.Duration) {
	l.Info("group fan-out completed",
		"command", command,
		"group", group,
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogFanoutError logs a single machine failure inside a group fan-out
func (l *Logger) LogFanoutError(command, group, host, machine string, err error) {
	l.Error("group fan-out machine failed",
		"command", command,
		"group", group,
		"host", host,
		"machine", machine,
		"error", err.Error(),
	)
}

// LogConfigLoad logs configuration loading events
func (l *Logger) LogConfigLoad(source string, hosts, machines int) {
	l.Info("configuration loaded",
		"source", source,
		"hosts", hosts,
		"machines", machines,
	)
}

// LogConfigError logs configuration errors
func (l *Logger) LogConfigError(source string, err error) {
	l.Error("configuration error",
		"source", source,
		"error", err.Error(),
	)
}

// LogBatchStart logs the start of a batch file
func (l *Logger) LogBatchStart(file, runID string) {
	l.Info("batch started",
		"file", file,
		"run_id", runID,
	)
}

// LogBatchFinish logs the end of a batch file
func (l *Logger) LogBatchFinish(file, runID string, succeeded, failed int, duration time.Duration) {
	l.Info("batch finished",
		"file", file,
		"run_id", runID,
		"succeeded", succeeded,
		"failed", failed,
		"duration_ms", duration.Milliseconds(),
	)
}

// IsQuiet returns whether the logger is in quiet mode
func (l *Logger) IsQuiet() bool {
	return l.config.Quiet
}

// NewLoggerFromConfig creates a logger from application configuration
func NewLoggerFromConfig(logLevel, logFormat string, quiet bool) *Logger {
	var level LogLevel
	switch logLevel {
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}

	var format LogFormat
	switch logFormat {
	case "json":
		format = FormatJSON
	default:
		format = FormatText
	}

	return NewLogger(Config{
		Level:  level,
		Format: format,
		Quiet:  quiet,
	})
}

// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type loggerKey struct{}

// LevelVar controls the level of DefaultLogger.
var LevelVar = &slog.LevelVar{}

// DefaultLogger is used whenever the context carries no logger.
var DefaultLogger = slog.New(NewPrettyHandler(
	&slog.HandlerOptions{Level: LevelVar},
	WithAutoColour(),
	WithDestinationWriter(os.Stderr),
))

func init() {
	exe, _ := os.Executable()
	LevelVar.Set(ParseLevel(os.Getenv(LevelEnvName(exe))))
}

// New returns a copy of ctx that carries logger, or DefaultLogger if logger is nil.
func New(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		logger = DefaultLogger
	}

	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger carried by ctx, or DefaultLogger.
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return DefaultLogger
}

// With returns a copy of ctx whose logger has the given attributes added.
func With(ctx context.Context, args ...any) context.Context {
	return New(ctx, Logger(ctx).With(args...))
}

// Debug logs at debug level with the logger from ctx.
func Debug(ctx context.Context, msg string, args ...any) {
	Logger(ctx).DebugContext(ctx, msg, args...)
}

// Info logs at info level with the logger from ctx.
func Info(ctx context.Context, msg string, args ...any) {
	Logger(ctx).InfoContext(ctx, msg, args...)
}

// Warn logs at warn level with the logger from ctx.
func Warn(ctx context.Context, msg string, args ...any) {
	Logger(ctx).WarnContext(ctx, msg, args...)
}

// Error logs at error level with the logger from ctx.
func Error(ctx context.Context, msg string, args ...any) {
	Logger(ctx).ErrorContext(ctx, msg, args...)
}

// LevelEnvName derives the log level variable from an executable path,
// e.g. "/usr/local/bin/batchrun.exe" gives "BATCHRUN_LOG_LEVEL".
func LevelEnvName(executable string) string {
	name := filepath.Base(executable)
	name = strings.TrimSuffix(name, ".exe")
	name = strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}

		return r
	}, name)

	return strings.ToUpper(name) + "_LOG_LEVEL"
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels.
// Anything else gives slog.LevelWarn.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the batchrun command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matt-FFFFFF/batchrun"
	"github.com/matt-FFFFFF/batchrun/cmd/batchrun/run"
	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
	"github.com/matt-FFFFFF/batchrun/internal/signalbroker"
)

const exitCodeInterrupted = 130

func main() {
	ctx := ctxlog.New(context.Background(), ctxlog.DefaultLogger)

	// forced is cancelled by the watchdog when the same signal arrives twice.
	forced, force := context.WithCancel(ctx)

	sigCh := signalbroker.New(ctx)

	go signalbroker.Watch(ctx, sigCh, force)

	go func() {
		<-forced.Done()
		ctxlog.Error(ctx, "terminated by signal")
		os.Exit(exitCodeInterrupted)
	}()

	rootCmd := run.NewCommand()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", batchrun.Version, batchrun.Commit)
	rootCmd.Writer = os.Stdout
	rootCmd.ErrWriter = os.Stderr

	if err := rootCmd.Run(ctx, os.Args); err != nil {
		ctxlog.Error(ctx, "batch failed", "error", err)
		os.Exit(1)
	}

	ctxlog.Info(ctx, "batch completed")
}

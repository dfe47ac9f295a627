// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package signalbroker subscribes to the signals that should end a batch run.
// The child processes share the terminal's process group, so they receive the same
// interrupt and normally exit by themselves; Watch only forces the issue when the
// user insists by sending the same signal twice.
package signalbroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
)

var termSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// New returns a channel notified of sigs, or of SIGINT, SIGTERM and SIGQUIT if none are given.
func New(ctx context.Context, sigs ...os.Signal) chan os.Signal {
	if len(sigs) == 0 {
		sigs = termSignals
	}

	ch := make(chan os.Signal, 1)

	ctxlog.Debug(ctx, "creating signal broker", "signals", sigs)
	signal.Notify(ch, sigs...)

	return ch
}

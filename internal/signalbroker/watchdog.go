// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
)

// Watch reads sigCh until it is closed or ctx is done.
// The first signal of each kind is logged; the second one of the same kind calls cancel and returns.
func Watch(ctx context.Context, sigCh <-chan os.Signal, cancel context.CancelFunc) {
	seen := make(map[os.Signal]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}

			if _, dup := seen[sig]; dup {
				ctxlog.Warn(ctx, "received signal twice, terminating", "signal", sig.String())
				cancel()

				return
			}

			seen[sig] = struct{}{}

			ctxlog.Warn(ctx, "received signal, waiting for running commands to exit", "signal", sig.String())
		}
	}
}

// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import "context"

// Command is the text of one shell invocation, e.g. "git clone https://example.com/repo.git".
type Command string

// Executor runs a single Command to completion.
// A non-nil error means the process could not be run at all; anything the process
// itself reports, including a non-zero exit, is carried in the Result.
type Executor interface {
	Execute(ctx context.Context, c Command) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, c Command) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, c Command) (Result, error) {
	return f(ctx, c)
}

// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
)

const (
	goosWindows          = "windows"
	commandSwitchWindows = "/C"
	commandSwitchUnix    = "-c"
	binSh                = "/bin/sh"
	winSystemRootEnv     = "SystemRoot"

	// Exit statuses a shell uses when it cannot find the program it was asked to run.
	exitCodeNotFoundUnix    = 127
	exitCodeNotFoundWindows = 9009
)

var _ Executor = (*ShellExecutor)(nil)

var (
	// ErrCouldNotStartProcess is returned when the shell process could not be spawned.
	ErrCouldNotStartProcess = errors.New("could not start process")
	// ErrCommandNotFound is joined with ErrCouldNotStartProcess when the shell started
	// but reported that the program to run does not exist.
	ErrCommandNotFound = errors.New("command not found")
	// ErrWaitProcess is returned when waiting for the process fails for a reason other than its exit status.
	ErrWaitProcess = errors.New("failed waiting for process")
)

// ShellExecutor runs each Command through a shell (`sh -c` or `cmd.exe /C`).
// The child inherits the environment and working directory of the current process.
type ShellExecutor struct {
	Shell         string // Path to the shell, DefaultShell() if empty
	MaxOutputSize int    // Bytes kept per stream, 8MB if zero
}

// NewShellExecutor returns a ShellExecutor using shell, or the default shell if shell is empty.
func NewShellExecutor(shell string) *ShellExecutor {
	return &ShellExecutor{Shell: shell}
}

// Execute implements Executor. It blocks until the process has exited.
// There is no timeout: the context is used for logging only.
func (e *ShellExecutor) Execute(ctx context.Context, c Command) (Result, error) {
	shell := e.Shell
	if shell == "" {
		shell = DefaultShell(ctx)
	}

	maxSize := e.MaxOutputSize
	if maxSize <= 0 {
		maxSize = maxBufferSize
	}

	logger := ctxlog.Logger(ctx).With("runnableType", "ShellExecutor")

	stdout := newCappedBuffer(maxSize)
	stderr := newCappedBuffer(maxSize)

	cmd := exec.Command(shell, commandSwitch(), string(c)) //nolint:gosec
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("starting process", "shell", shell, "command", string(c))

	if err := cmd.Start(); err != nil {
		return Result{}, errors.Join(ErrCouldNotStartProcess, err)
	}

	startTime := time.Now()

	logger.Debug("process started", "pid", cmd.Process.Pid)

	err := cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()

	logger.Debug("process finished",
		"pid", cmd.Process.Pid,
		"exitCode", exitCode,
		"duration", time.Since(startTime).Round(time.Millisecond).String())

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Result{ExitCode: exitCode}, errors.Join(ErrWaitProcess, err)
	}

	if exitCode == notFoundExitCode() {
		return Result{ExitCode: exitCode}, errors.Join(
			ErrCouldNotStartProcess,
			ErrCommandNotFound,
			fmt.Errorf("%s: %s", shell, bytes.TrimSpace(stderr.Bytes())),
		)
	}

	for name, b := range map[string]*cappedBuffer{"stdout": stdout, "stderr": stderr} {
		if n := b.Dropped(); n > 0 {
			logger.Warn("output truncated", "stream", name, "maxBytes", maxSize, "droppedBytes", n)
		}
	}

	return NewResult(stdout.Bytes(), stderr.Bytes(), exitCode), nil
}

// DefaultShell returns $SHELL, or /bin/sh. On Windows it returns cmd.exe from %SystemRoot%.
func DefaultShell(ctx context.Context) string {
	if runtime.GOOS == goosWindows {
		systemRoot := os.Getenv(winSystemRootEnv)
		if systemRoot == "" {
			systemRoot = `C:\Windows`
		}

		return fmt.Sprintf(`%s\System32\cmd.exe`, systemRoot)
	}

	if shell := os.Getenv("SHELL"); shell != "" {
		ctxlog.Debug(ctx, "using SHELL environment variable", "shell", shell)
		return shell
	}

	return binSh
}

func commandSwitch() string {
	if runtime.GOOS == goosWindows {
		return commandSwitchWindows
	}

	return commandSwitchUnix
}

func notFoundExitCode() int {
	if runtime.GOOS == goosWindows {
		return exitCodeNotFoundWindows
	}

	return exitCodeNotFoundUnix
}

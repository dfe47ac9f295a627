// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

// Kind tags which stream a Result was taken from.
type Kind int

const (
	// KindEmpty means the process wrote nothing to either stream.
	KindEmpty Kind = iota
	// KindStdOut means the process wrote to stdout only.
	KindStdOut
	// KindStdErr means the process wrote to stderr, whether or not it also wrote to stdout.
	KindStdErr
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindStdOut:
		return "stdout"
	case KindStdErr:
		return "stderr"
	}

	return "unknown"
}

// Result is the captured outcome of one Command.
type Result struct {
	Kind     Kind   // Which stream Data came from
	Data     []byte // Bytes of that stream, nil for KindEmpty
	ExitCode int    // Exit status of the process, informational only
}

// NewResult picks the stream that represents the run. Anything on stderr wins, even
// when the process exited zero and even if it is only a progress message.
func NewResult(stdout, stderr []byte, exitCode int) Result {
	switch {
	case len(stderr) > 0:
		return Result{Kind: KindStdErr, Data: stderr, ExitCode: exitCode}
	case len(stdout) > 0:
		return Result{Kind: KindStdOut, Data: stdout, ExitCode: exitCode}
	default:
		return Result{Kind: KindEmpty, ExitCode: exitCode}
	}
}

// String returns the captured data as a string.
func (r Result) String() string {
	return string(r.Data)
}

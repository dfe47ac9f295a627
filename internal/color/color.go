// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package color

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const (
	// NoColor is the environment variable that disables color output.
	NoColor = "NO_COLOR"
	// ForceColor is the environment variable that forces color output.
	ForceColor = "FORCE_COLOR"

	escape = "\033["
	reset  = "\033[0m"
)

// Code is an SGR parameter, e.g. a foreground colour.
type Code int

// Foreground colours used by the log handler.
const (
	FgRed Code = iota + 31
	FgGreen
	FgYellow
	FgBlue
	FgMagenta
	FgCyan
	FgWhite
)

// Bright foreground colours.
const (
	FgHiRed Code = iota + 91
	FgHiGreen
	FgHiYellow
	FgHiBlue
	FgHiMagenta
	FgHiCyan
	FgHiWhite
)

var enabled = isColorCapable()

// Enabled reports whether Colorize emits escape sequences.
func Enabled() bool {
	return enabled
}

// SetEnabled overrides terminal detection and returns the previous value.
func SetEnabled(v bool) bool {
	prev := enabled
	enabled = v

	return prev
}

// Colorize wraps str in the given codes followed by a reset.
// It returns str unchanged when colour is disabled.
func Colorize(str string, codes ...Code) string {
	if !enabled {
		return str
	}

	return Wrap(str, codes...)
}

// Wrap is Colorize without the Enabled check.
func Wrap(str string, codes ...Code) string {
	if len(codes) == 0 {
		return str
	}

	params := make([]string, 0, len(codes))
	for _, c := range codes {
		params = append(params, strconv.Itoa(int(c)))
	}

	var sb strings.Builder

	sb.Grow(len(escape) + len(str) + len(reset) + 4*len(codes))
	sb.WriteString(escape)
	sb.WriteString(strings.Join(params, ";"))
	sb.WriteString("m")
	sb.WriteString(str)
	sb.WriteString(reset)

	return sb.String()
}

func isColorCapable() bool {
	if os.Getenv(NoColor) != "" {
		return false
	}

	if os.Getenv(ForceColor) != "" {
		return true
	}

	return term.IsTerminal(int(os.Stdout.Fd()))
}

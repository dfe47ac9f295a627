// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package source turns a newline-delimited list of items, usually repository URLs,
// into the Commands a batch will run. The first line of the list is a header and is
// skipped unless asked otherwise.
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
	"github.com/matt-FFFFFF/batchrun/internal/runbatch"
	"github.com/spf13/afero"
)

const (
	// Placeholder is replaced by the item in a command template.
	Placeholder = "{}"
	// DefaultTemplate clones each item with git.
	DefaultTemplate = "git clone " + Placeholder

	maxLineSize = 1024 * 1024
)

var (
	// ErrReadSource is returned when the item list cannot be opened or read.
	ErrReadSource = errors.New("failed to read input file")
	// ErrTemplate is returned when a command template cannot produce distinct commands.
	ErrTemplate = errors.New("invalid command template")
)

// FsFactory returns the filesystem the item list is read from.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// Options controls how items become Commands.
type Options struct {
	Template   string // Command template containing Placeholder, DefaultTemplate if empty
	KeepHeader bool   // Treat the first line as an item instead of discarding it
}

func (o Options) template() string {
	if o.Template == "" {
		return DefaultTemplate
	}

	return o.Template
}

// Load reads path and returns one Command per item, in file order.
// Remote locations (see IsRemote) are downloaded with go-getter first.
// Any failure is returned before a single Command is produced.
func Load(ctx context.Context, path string, opts Options) ([]runbatch.Command, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no file given", ErrReadSource)
	}

	if err := ValidateTemplate(opts.template()); err != nil {
		return nil, err
	}

	if IsRemote(path) {
		data, err := fetch(ctx, path)
		if err != nil {
			return nil, err
		}

		return Parse(ctx, bytes.NewReader(data), opts)
	}

	f, err := FsFactory().Open(path)
	if err != nil {
		return nil, errors.Join(ErrReadSource, err)
	}

	defer f.Close() //nolint:errcheck

	ctxlog.Debug(ctx, "reading items", "path", path)

	return Parse(ctx, f, opts)
}

// Parse reads items from r, one per line. Surrounding whitespace is trimmed and
// blank lines are skipped.
func Parse(ctx context.Context, r io.Reader, opts Options) ([]runbatch.Command, error) {
	tmpl := opts.template()
	if err := ValidateTemplate(tmpl); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	var (
		cmds   []runbatch.Command
		lineNo int
	)

	for scanner.Scan() {
		lineNo++

		if lineNo == 1 && !opts.KeepHeader {
			ctxlog.Debug(ctx, "skipping header", "line", scanner.Text())
			continue
		}

		item := strings.TrimSpace(scanner.Text())
		if item == "" {
			ctxlog.Debug(ctx, "skipping blank line", "lineNumber", lineNo)
			continue
		}

		cmds = append(cmds, Render(tmpl, item))
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Join(ErrReadSource, fmt.Errorf("line %d: %w", lineNo+1, err))
	}

	ctxlog.Debug(ctx, "items read", "lines", lineNo, "commands", len(cmds))

	return cmds, nil
}

// Render substitutes item for every Placeholder in tmpl.
func Render(tmpl, item string) runbatch.Command {
	return runbatch.Command(strings.ReplaceAll(tmpl, Placeholder, item))
}

// ValidateTemplate checks that tmpl is non-empty and mentions Placeholder.
func ValidateTemplate(tmpl string) error {
	switch {
	case strings.TrimSpace(tmpl) == "":
		return fmt.Errorf("%w: template is empty", ErrTemplate)
	case !strings.Contains(tmpl, Placeholder):
		return fmt.Errorf("%w: %q does not contain %s", ErrTemplate, tmpl, Placeholder)
	}

	return nil
}

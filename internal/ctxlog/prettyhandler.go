// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/TylerBrock/colorjson"
	"github.com/matt-FFFFFF/batchrun/internal/color"
)

// TimeFormat is the timestamp layout used by PrettyHandler.
const TimeFormat = "[15:04:05.000]"

var (
	// ErrMarshalAttribute is returned when record attributes cannot be rendered.
	ErrMarshalAttribute = errors.New("error when marshaling attribute")
	// ErrIoWrite is returned when the destination writer fails.
	ErrIoWrite = errors.New("error when writing to output")
)

// PrettyHandler renders records for humans. Attributes are collected by an inner
// JSON handler and re-emitted through colorjson.
type PrettyHandler struct {
	inner  slog.Handler
	buf    *bytes.Buffer
	mu     *sync.Mutex
	writer io.Writer
	colour bool
}

// Option configures a PrettyHandler.
type Option func(h *PrettyHandler)

// WithDestinationWriter sets where records are written. The default is os.Stderr.
func WithDestinationWriter(w io.Writer) Option {
	return func(h *PrettyHandler) {
		h.writer = w
	}
}

// WithColour forces coloured output.
func WithColour() Option {
	return func(h *PrettyHandler) {
		h.colour = true
	}
}

// WithAutoColour colours output only when the color package says the console supports it.
func WithAutoColour() Option {
	return func(h *PrettyHandler) {
		h.colour = color.Enabled()
	}
}

// NewPrettyHandler returns a handler honouring the level and AddSource of opts.
func NewPrettyHandler(opts *slog.HandlerOptions, options ...Option) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	buf := &bytes.Buffer{}
	h := &PrettyHandler{
		inner: slog.NewJSONHandler(buf, &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   opts.AddSource,
			ReplaceAttr: dropBuiltins,
		}),
		buf:    buf,
		mu:     &sync.Mutex{},
		writer: os.Stderr,
	}

	for _, opt := range options {
		opt(h)
	}

	return h
}

// Enabled implements slog.Handler.
func (h *PrettyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// WithAttrs implements slog.Handler.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)

	return &c
}

// WithGroup implements slog.Handler.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)

	return &c
}

// Handle implements slog.Handler.
func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	attrs, err := h.attrs(ctx, r)
	if err != nil {
		return err
	}

	var out strings.Builder

	out.WriteString(h.paint(r.Time.Format(TimeFormat), color.FgWhite))
	out.WriteString(" ")
	out.WriteString(h.paint(r.Level.String()+":", levelColour(r.Level)))
	out.WriteString(" ")
	out.WriteString(h.paint(r.Message, color.FgHiWhite))

	if len(attrs) > 0 {
		f := colorjson.NewFormatter()
		f.Indent = 2
		f.DisabledColor = !h.colour

		b, err := f.Marshal(attrs)
		if err != nil {
			return errors.Join(ErrMarshalAttribute, err)
		}

		out.WriteString(" ")
		out.Write(b)
	}

	out.WriteString("\n")

	if _, err := io.WriteString(h.writer, out.String()); err != nil {
		return errors.Join(ErrIoWrite, err)
	}

	return nil
}

// attrs runs the record through the inner JSON handler. Callers hold h.mu.
func (h *PrettyHandler) attrs(ctx context.Context, r slog.Record) (map[string]any, error) {
	defer h.buf.Reset()

	if err := h.inner.Handle(ctx, r); err != nil {
		return nil, fmt.Errorf("inner handler: %w", err)
	}

	var attrs map[string]any
	if err := json.Unmarshal(h.buf.Bytes(), &attrs); err != nil {
		return nil, errors.Join(ErrMarshalAttribute, err)
	}

	return attrs, nil
}

func (h *PrettyHandler) paint(s string, c color.Code) string {
	if !h.colour {
		return s
	}

	return color.Wrap(s, c)
}

func levelColour(l slog.Level) color.Code {
	switch {
	case l <= slog.LevelDebug:
		return color.FgWhite
	case l <= slog.LevelInfo:
		return color.FgCyan
	case l < slog.LevelError:
		return color.FgYellow
	default:
		return color.FgRed
	}
}

func dropBuiltins(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}

	switch a.Key {
	case slog.TimeKey, slog.LevelKey, slog.MessageKey:
		return slog.Attr{}
	}

	return a
}

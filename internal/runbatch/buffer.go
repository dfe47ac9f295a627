// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package runbatch

import "bytes"

const maxBufferSize = 8 * 1024 * 1024 // 8MB

// cappedBuffer keeps the first max bytes written to it and counts the rest.
// It never returns a short write, so the process keeps running when output is dropped.
type cappedBuffer struct {
	buf     bytes.Buffer
	max     int
	dropped int
}

func newCappedBuffer(maxBytes int) *cappedBuffer {
	return &cappedBuffer{max: maxBytes}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()

	switch {
	case room <= 0:
		b.dropped += len(p)
	case len(p) > room:
		b.buf.Write(p[:room])
		b.dropped += len(p) - room
	default:
		b.buf.Write(p)
	}

	return len(p), nil
}

// Bytes returns the kept bytes, or nil if nothing was written.
func (b *cappedBuffer) Bytes() []byte {
	if b.buf.Len() == 0 {
		return nil
	}

	return b.buf.Bytes()
}

func (b *cappedBuffer) Dropped() int {
	return b.dropped
}

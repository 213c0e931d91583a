// Package flushio provides flushable writers: the suo writer buffers
// rune-at-a-time output and needs an explicit flush point after each
// printed value.
package flushio

import (
	"bufio"
	"io"
)

// WriteFlusher is a flush-able io.Writer.
type WriteFlusher interface {
	io.Writer
	Flush() error
}

// NewWriteFlusher wraps w with flushing support: a writer that already
// flushes (or an in-memory buffer, which never needs to) gets a pass-through
// wrapper, anything else gets buffered through bufio.
func NewWriteFlusher(w io.Writer) WriteFlusher {
	if wf, is := w.(WriteFlusher); is {
		return wf
	}

	// bytes.Buffer and strings.Builder shaped writers hold everything in
	// memory already; wrapping them in bufio would only delay the bytes.
	type buffer interface {
		io.Writer
		Cap() int
		Len() int
		Grow(n int)
		Reset()
	}
	if _, isBuffer := w.(buffer); isBuffer {
		return nopFlusher{w}
	}

	return bufio.NewWriter(w)
}

type nopFlusher struct{ io.Writer }

func (nf nopFlusher) Flush() error { return nil }

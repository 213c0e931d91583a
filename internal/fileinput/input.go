// Package fileinput feeds the reader one uninterrupted rune stream drawn
// from a queue of source files, tracking file names and line numbers so
// diagnostics about malformed forms can say where they came from.
package fileinput

import (
	"fmt"
	"io"

	"github.com/carriercomm/suo/internal/runeio"
)

// Location names a line in an Input file.
type Location struct {
	Name string
	Line int
}

func (loc Location) String() string { return fmt.Sprintf("%v:%v", loc.Name, loc.Line) }

// Input reads runes sequentially through a Queue of one or more input
// streams. Closing happens as each stream is exhausted; io.EOF is only
// reported once the whole queue is drained.
type Input struct {
	rr  io.RuneReader
	loc Location

	Queue []io.Reader
}

// Where returns the location of the rune about to be read, for
// diagnostics.
func (in *Input) Where() string { return in.loc.String() }

// ReadRune reads one rune from the current input stream, advancing the
// tracked location past line feeds and rolling over to the next queued
// stream at end of input.
func (in *Input) ReadRune() (rune, int, error) {
	if in.rr == nil && !in.nextIn() {
		return 0, 0, io.EOF
	}

	r, n, err := in.rr.ReadRune()
	if r == '\n' {
		in.loc.Line++
	}

	if r != 0 {
		return r, n, nil
	}
	if err == io.EOF && in.nextIn() {
		err = nil
	}
	return 0, n, err
}

func (in *Input) nextIn() bool {
	if in.rr != nil {
		if cl, ok := in.rr.(io.Closer); ok {
			cl.Close()
		}
		in.rr = nil
	}
	if len(in.Queue) > 0 {
		r := in.Queue[0]
		in.Queue = in.Queue[1:]
		in.rr = runeio.NewReader(r)
		in.loc = Location{Name: nameOf(r), Line: 1}
	}
	return in.rr != nil
}

func nameOf(obj interface{}) string {
	if nom, ok := obj.(interface{ Name() string }); ok {
		return nom.Name()
	}
	return fmt.Sprintf("<unnamed %T>", obj)
}

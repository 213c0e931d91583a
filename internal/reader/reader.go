// Package reader implements the bootstrap S-expression reader: pairs,
// vectors, strings, fixnums, symbols, characters, and a handful of `#`
// abbreviations for quote and for the operation vectors the eval package
// understands directly. Like the writer, it keeps its nested-construct
// state in an explicit heap-allocated stack instead of recursing in Go, so
// arbitrarily deep input structure reads in bounded Go stack space.
package reader

import (
	"fmt"

	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/value"
)

// runeSource is the minimal interface Reader needs from its input. It is
// exactly io.RuneReader, spelled out locally so callers reading the
// doc comment don't have to chase another package: strings.Reader,
// bufio.Reader, and fileinput.Input all already implement it.
type runeSource interface {
	ReadRune() (rune, int, error)
}

// locator is optionally implemented by a runeSource that can name where
// its next rune comes from (fileinput.Input does); complaints about
// malformed input then say which file and line they mean.
type locator interface {
	Where() string
}

const (
	whitespace = " \t\n"
	delimiters = "()[]{}';"
)

// sharpOpener/constructOpener values identify which entry of constructs a
// stack frame belongs to. ' ' is the implicit outermost form; '(' and '['
// are ordinary lists and vectors; sharpList/sharpVector are `#(` and `#[`,
// which read like a list/vector but finish into an `fn` function-literal
// form wrapping that structure rather than the literal structure itself.
const (
	openOuter     = ' '
	openList      = '('
	openVector    = '['
	openSharpList = rune(1)
	openSharpVec  = rune(2)
)

type construct struct {
	opener, closer rune
	finish         func(r *Reader, elements value.Value, n int, tag string) value.Value
	tag            string
}

var constructs = []construct{
	{openOuter, 0, finishOuter, ""},
	{openList, ')', finishList, ""},
	{openVector, ']', finishVector, ""},
	{'\'', 0, finishAbbrev, "quote"},
	{openSharpList, ')', finishSharpList, ""},
	{openSharpVec, ']', finishSharpVector, ""},
}

func findConstruct(opener rune) (int, bool) {
	for i, c := range constructs {
		if c.opener == opener {
			return i, true
		}
	}
	return 0, false
}

// Reader reads values out of an underlying rune source.
type Reader struct {
	vm         *runtime.VM
	in         runeSource
	pushed     rune
	havePushed bool
}

// New wraps in for reading values into vm's heap. in must support
// rune-at-a-time reading (wrap a plain io.Reader in a bufio.Reader first).
func New(vm *runtime.VM, in runeSource) *Reader {
	return &Reader{vm: vm, in: in}
}

func (r *Reader) getc() rune {
	if r.havePushed {
		r.havePushed = false
		return r.pushed
	}
	c, _, err := r.in.ReadRune()
	if err != nil {
		return -1 // end-of-input sentinel
	}
	return c
}

func (r *Reader) ungetc(c rune) {
	r.pushed = c
	r.havePushed = true
}

// complain reports a malformed-input diagnostic, prefixed with the input's
// current location when it has one.
func (r *Reader) complain(format string, args ...interface{}) {
	if loc, ok := r.in.(locator); ok {
		fmt.Printf("%s: ", loc.Where())
	}
	fmt.Printf(format+"\n", args...)
}

func isIn(set string, c rune) bool {
	if c < 0 {
		return false
	}
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}

func (r *Reader) skipWhitespace() rune {
	for {
		c := r.getc()
		if c == ';' {
			for {
				c = r.getc()
				if c == -1 || c == '\n' {
					break
				}
			}
			continue
		}
		if c == -1 || !isIn(whitespace, c) {
			return c
		}
	}
}

// Read parses and returns the next value from the input, or value.Unspec
// at end of input. Malformed input reports a diagnostic and also yields
// value.Unspec; the two are not distinguished.
func (r *Reader) Read() value.Value {
	vm := r.vm
	var x, stack value.Value = value.Unspec, value.Nil
	defer vm.Heap.Protect(&x, &stack)()

	stack = r.start(stack, openOuter)

	for !stack.IsNil() {
		c := r.skipWhitespace()

		switch {
		case c == -1:
			if !vm.Heap.PairCdr(stack).IsNil() {
				r.complain("unexpected end of input")
			}
			x = value.Unspec

		case c == '"':
			x = r.readString()

		case c == '#':
			c2 := r.skipWhitespace()
			switch {
			case c2 == -1:
				r.complain("unexpected end of input")
				return value.Unspec
			case c2 == '\\':
				c3 := r.skipWhitespace()
				x = r.readCharSymbol(r.readToken(c3))
			case c2 == '(':
				stack = r.start(stack, openSharpList)
				continue
			case c2 == '[':
				stack = r.start(stack, openSharpVec)
				continue
			default:
				x = r.readSharpSymbol(r.readToken(c2))
			}

		case isIn(delimiters, c):
			if c == r.delimiterOf(stack) {
				x = r.finish(stack)
				stack = vm.Heap.PairCdr(stack)
			} else {
				next := r.start(stack, c)
				if next.IsUnspecified() {
					r.complain("unexpected delimiter %q", string(c))
					x = value.Unspec
				} else {
					stack = next
					continue
				}
			}

		default:
			x = r.readToken(c)
		}

		if x.IsUnspecified() {
			return value.Unspec
		}

		for !stack.IsNil() {
			r.add(stack, x)
			if r.delimiterOf(stack) == 0 {
				x = r.finish(stack)
				stack = vm.Heap.PairCdr(stack)
			} else {
				break
			}
		}
	}

	return x
}

func (r *Reader) start(stack value.Value, opener rune) value.Value {
	vm := r.vm
	i, ok := findConstruct(opener)
	if !ok {
		return value.Unspec
	}
	defer vm.Heap.Protect(&stack)()
	y := vm.Cons(value.MakeFixnum(int32(i)), value.Nil)
	return vm.Cons(y, stack)
}

func (r *Reader) delimiterOf(stack value.Value) rune {
	vm := r.vm
	f := vm.Heap.PairCar(vm.Heap.PairCar(stack))
	return constructs[f.Fixnum()].closer
}

func (r *Reader) add(stack, x value.Value) {
	vm := r.vm
	f := vm.Heap.PairCar(stack)
	defer vm.Heap.Protect(&f, &x)()
	y := vm.Cons(x, vm.Heap.PairCdr(f))
	vm.Heap.SetCdr(f, y)
}

func (r *Reader) finish(stack value.Value) value.Value {
	vm := r.vm
	f := vm.Heap.PairCar(stack)
	y := vm.Heap.PairCdr(f)
	var x value.Value = value.Nil
	n := 0

	if !y.IsNil() && !vm.Heap.PairCdr(y).IsNil() && vm.Heap.PairCar(vm.Heap.PairCdr(y)) == vm.DotToken {
		x = vm.Heap.PairCar(y)
		y = vm.Heap.PairCdr(vm.Heap.PairCdr(y))
	}

	for !y.IsNil() {
		z := vm.Heap.PairCdr(y)
		vm.Heap.SetCdr(y, x)
		x = y
		y = z
		n++
	}

	i := int(vm.Heap.PairCar(f).Fixnum())
	c := constructs[i]
	return c.finish(r, x, n, c.tag)
}

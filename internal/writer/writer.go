// Package writer implements the bootstrap printer: given a value, it
// prints a textual form a reader in this module can read back (for pairs,
// vectors, fixnums, #t, #f, and the empty list) or a best-effort
// rendering (for strings, symbols, byte vectors, and records of unknown
// type). Characters print as #x followed by their hex code point and the
// unspecified value as #unspec; the reader accepts neither spelling. Like
// the reader, it keeps its nested-structure state in an
// explicit heap-allocated stack instead of recursing in Go.
package writer

import (
	"fmt"
	"unicode"

	"github.com/carriercomm/suo/internal/flushio"
	"github.com/carriercomm/suo/internal/runeio"
	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/value"
)

// Writer prints values to an underlying flushable writer.
type Writer struct {
	vm  *runtime.VM
	out flushio.WriteFlusher
}

// New wraps out for writing values from vm's heap. out is flushed after
// every Write call.
func New(vm *runtime.VM, out flushio.WriteFlusher) *Writer {
	return &Writer{vm: vm, out: out}
}

func (w *Writer) str(s string) {
	for _, r := range s {
		if _, err := runeio.WriteRune(w.out, r); err != nil {
			panic(err)
		}
	}
}

// Write prints x and flushes the underlying writer.
func (w *Writer) Write(x value.Value) error {
	err := w.safeWrite(x)
	if ferr := w.out.Flush(); err == nil {
		err = ferr
	}
	return err
}

func (w *Writer) safeWrite(x value.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("writer: %v", r)
		}
	}()
	w.write(x)
	return nil
}

func (w *Writer) write(x value.Value) {
	vm := w.vm
	var stack value.Value = value.Nil
	defer vm.Heap.Protect(&stack, &x)()

	stack = w.start(stack, x)
	for !stack.IsNil() {
		f := vm.Heap.PairCar(stack)
		fx := vm.Heap.PairCar(f)
		i := vm.Heap.PairCdr(f)

		switch {
		case fx.IsPair():
			ii := int(i.Fixnum())
			switch ii {
			case 0:
				y := vm.Heap.PairCar(fx)
				vm.Heap.SetCdr(f, value.MakeFixnum(1))
				stack = w.start(stack, y)
			case 1:
				y := vm.Heap.PairCdr(fx)
				switch {
				case y.IsPair():
					w.str(" ")
					vm.Heap.SetCar(f, y)
					vm.Heap.SetCdr(f, value.MakeFixnum(0))
				case y.IsNil():
					w.str(")")
					stack = vm.Heap.PairCdr(stack)
				default:
					vm.Heap.SetCdr(f, value.MakeFixnum(2))
					w.str(" . ")
					stack = w.start(stack, y)
				}
			default:
				w.str(")")
				stack = vm.Heap.PairCdr(stack)
			}

		case fx.IsVector():
			ii := int(i.Fixnum())
			if ii < vm.Heap.VecLen(fx) {
				y := vm.Heap.VecRef(fx, ii)
				vm.Heap.SetCdr(f, value.MakeFixnum(int32(ii+1)))
				if ii > 0 {
					w.str(" ")
				}
				stack = w.start(stack, y)
			} else {
				w.str("]")
				stack = vm.Heap.PairCdr(stack)
			}
		}
	}
}

// start prints the leading notation for x (everything that doesn't need
// to walk its children across multiple calls) and, for pairs and vectors,
// pushes a frame to resume from.
func (w *Writer) start(stack, x value.Value) value.Value {
	vm := w.vm
	switch {
	case x.IsFixnum():
		w.str(fmt.Sprintf("%d", x.Fixnum()))
	case x.IsChar():
		w.str(fmt.Sprintf("#x%x", x.Char()))
	case x.IsNil():
		w.str("()")
	case x.IsTrue():
		w.str("#t")
	case x.IsFalse():
		w.str("#f")
	case x.IsUnspecified():
		w.str("#unspec")
	case x.IsPair():
		w.str("(")
		return push(vm, stack, x)
	case x.IsVector():
		w.str("[")
		return push(vm, stack, x)
	case x.IsRecord():
		w.writeRecord(x)
	case x.IsBytevectorOrCode():
		w.writeBytevector(x)
	default:
		w.str("?")
	}
	return stack
}

func push(vm *runtime.VM, stack, x value.Value) value.Value {
	defer vm.Heap.Protect(&stack, &x)()
	f := vm.Cons(x, value.MakeFixnum(0))
	return vm.Cons(f, stack)
}

func (w *Writer) writeRecord(x value.Value) {
	vm := w.vm
	typ := vm.Heap.RecDesc(x)
	switch {
	case typ == vm.StringType:
		b := vm.Heap.RecRef(x, 0)
		n := vm.Heap.BytevLen(b)
		w.str("\"")
		for i := 0; i < n; i++ {
			c := vm.Heap.BytevRefU8(b, i)
			if isPrint(c) {
				w.str(string(rune(c)))
			} else {
				w.str(fmt.Sprintf("\\x%02x", c))
			}
		}
		w.str("\"")

	case typ == vm.SymbolType:
		s := vm.Heap.RecRef(x, 0)
		b := vm.Heap.RecRef(s, 0)
		n := vm.Heap.BytevLen(b)
		for i := 0; i < n; i++ {
			c := vm.Heap.BytevRefU8(b, i)
			if isWhitespace(c) || isDelimiter(c) || (c == '.' && n == 1) {
				w.str("\\" + string(rune(c)))
			} else {
				w.str(string(rune(c)))
			}
		}

	default:
		w.str("{...}")
	}
}

func (w *Writer) writeBytevector(x value.Value) {
	vm := w.vm
	if vm.Heap.IsCode(x) {
		lits := vm.Heap.CodeLitEnd(x) - vm.Heap.CodeLitBegin(x) + 1
		w.str(fmt.Sprintf("{code %d bytes, %d literals}", vm.Heap.BytevLen(x), lits))
		return
	}
	n := vm.Heap.BytevLen(x)
	w.str("/")
	for i := 0; i < n; i++ {
		w.str(fmt.Sprintf("%02x", vm.Heap.BytevRefU8(x, i)))
	}
	w.str("/")
}

func isPrint(c byte) bool {
	return unicode.IsPrint(rune(c))
}

func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\n':
		return true
	default:
		return false
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '[', ']', '{', '}', '\'', ';':
		return true
	default:
		return false
	}
}

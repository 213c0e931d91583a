// Package runtime wires together the heap, the bootstrap record types, and
// the diagnostic logging every other package in this module shares. It is
// the single place that knows how to build a value out of a host Go string
// or byte slice.
package runtime

import (
	"fmt"
	"strings"

	"github.com/carriercomm/suo/internal/heap"
	"github.com/carriercomm/suo/internal/value"
)

// VM bundles a heap with the bootstrap type descriptors every record in
// this system is built from, plus diagnostic logging. The zero VM is not
// usable; construct one with New and then BootInit it.
type VM struct {
	Heap *heap.Heap

	RecordType   value.Value
	StringType   value.Value
	SymbolType   value.Value
	FunctionType value.Value

	// Symbols is the intern table: a 511-bucket vector of pair chains that
	// Intern consults so that two symbols with the same name are always the
	// same record. Registered as a permanent root by BootInit.
	Symbols  value.Value
	DotToken value.Value

	logging

	heapOpts []heap.Option
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithHeapOptions passes opts through to heap.New when the VM's heap is
// constructed.
func WithHeapOptions(opts ...heap.Option) Option {
	return func(vm *VM) { vm.heapOpts = append(vm.heapOpts, opts...) }
}

// WithLogf supplies a diagnostic sink in the (mark, message, args...) shape
// used throughout this codebase.
func WithLogf(logfn func(mark, mess string, args ...interface{})) Option {
	return func(vm *VM) { vm.logging.logfn = logfn }
}

// New allocates a heap and returns a VM ready for BootInit.
func New(opts ...Option) *VM {
	vm := &VM{}
	for _, opt := range opts {
		opt(vm)
	}
	hopts := append([]heap.Option{}, vm.heapOpts...)
	hopts = append(hopts, heap.WithLogf(func(mark, mess string, args ...interface{}) {
		vm.logging.logf(mark, mess, args...)
	}))
	vm.Heap = heap.New(hopts...)
	return vm
}

// Logf emits a diagnostic through the sink installed by WithLogf, or does
// nothing if none was installed. Other packages in this module (eval's
// FixnumOverflow diagnostic, in particular) use this to log through the
// same sink the heap's GC/checker diagnostics use, rather than writing to
// stderr directly.
func (vm *VM) Logf(mark, mess string, args ...interface{}) {
	vm.logging.logf(mark, mess, args...)
}

// logging mirrors the mark-width-aligning logger this codebase uses
// elsewhere: a no-op until a sink is installed with WithLogf.
type logging struct {
	logfn     func(mark, mess string, args ...interface{})
	markWidth int
}

func (log *logging) logf(mark, mess string, args ...interface{}) {
	if log.logfn == nil {
		return
	}
	if n := log.markWidth - len(mark); n > 0 {
		for _, r := range mark {
			mark = strings.Repeat(string(r), n) + mark
			break
		}
	} else {
		log.markWidth = len(mark)
	}
	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	log.logfn(mark, mess)
}

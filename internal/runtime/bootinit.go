package runtime

import "github.com/carriercomm/suo/internal/value"

// BootInit builds the four bootstrap record types a freshly constructed VM
// needs before it can read, write, or evaluate anything: record types
// themselves, strings, symbols, and functions. RecordType is its own
// descriptor, closing the self-referential cycle every record-based system
// like this one needs somewhere.
//
// The six fields BootInit populates are registered as permanent GC roots
// first, before any of them holds a real value: they live for the VM's
// entire lifetime and are never unregistered.
func (vm *VM) BootInit() {
	vm.Heap.RegisterRoot(&vm.RecordType)
	vm.Heap.RegisterRoot(&vm.StringType)
	vm.Heap.RegisterRoot(&vm.SymbolType)
	vm.Heap.RegisterRoot(&vm.FunctionType)
	vm.Heap.RegisterRoot(&vm.Symbols)
	vm.Heap.RegisterRoot(&vm.DotToken)

	vm.RecordType = vm.Heap.RecAlloc(2)
	vm.Heap.RecSetDesc(vm.RecordType, vm.RecordType)
	vm.Heap.RecSet(vm.RecordType, 0, value.MakeFixnum(2))
	vm.Heap.RecSet(vm.RecordType, 1, value.Nil)

	vm.StringType = vm.RecMake(vm.RecordType, value.MakeFixnum(1), value.Nil)
	vm.SymbolType = vm.RecMake(vm.RecordType, value.MakeFixnum(1), value.Nil)
	vm.FunctionType = vm.RecMake(vm.RecordType, value.MakeFixnum(2), value.Nil)

	vm.Symbols = vm.VecMake(511, value.Nil)
	vm.DotToken = vm.StringMake("{dot token}")

	// Each Intern result lands in a local first: interning allocates, and a
	// collection there relocates the type records, so the RecSet target must
	// be read only after the allocation is done.
	x := vm.Intern("record-type")
	vm.Heap.RecSet(vm.RecordType, 1, x)
	x = vm.Intern("string")
	vm.Heap.RecSet(vm.StringType, 1, x)
	x = vm.Intern("symbol")
	vm.Heap.RecSet(vm.SymbolType, 1, x)
	x = vm.Intern("function")
	vm.Heap.RecSet(vm.FunctionType, 1, x)
}

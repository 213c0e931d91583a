package runtime

import (
	"hash/fnv"

	"github.com/carriercomm/suo/internal/value"
)

// Cons allocates a new pair, protecting both arguments across the
// allocation (either could itself be the last reference to a value whose
// heap storage a GC triggered by this allocation would otherwise reclaim).
func (vm *VM) Cons(a, d value.Value) value.Value {
	defer vm.Heap.Protect(&a, &d)()
	p := vm.Heap.PairAlloc()
	vm.Heap.SetCar(p, a)
	vm.Heap.SetCdr(p, d)
	return p
}

// VecMake allocates a length-len vector with every slot set to init.
func (vm *VM) VecMake(length int, init value.Value) value.Value {
	defer vm.Heap.Protect(&init)()
	v := vm.Heap.VecAlloc(length)
	for i := 0; i < length; i++ {
		vm.Heap.VecSet(v, i, init)
	}
	return v
}

// RecMake allocates a record described by typ, with fields set from the
// given values. The caller must pass exactly as many fields as typ's
// descriptor declares; RecMake does not validate this.
func (vm *VM) RecMake(typ value.Value, fields ...value.Value) value.Value {
	slots := make([]*value.Value, 0, len(fields)+1)
	slots = append(slots, &typ)
	for i := range fields {
		slots = append(slots, &fields[i])
	}
	defer vm.Heap.Protect(slots...)()

	r := vm.Heap.RecAlloc(len(fields))
	vm.Heap.RecSetDesc(r, typ)
	for i, f := range fields {
		vm.Heap.RecSet(r, i, f)
	}
	return r
}

// StringMake builds a string record (a byte vector of its contents wrapped
// in a StringType record) from a Go string.
func (vm *VM) StringMake(s string) value.Value {
	b := vm.Heap.BytevAlloc(len(s))
	for i := 0; i < len(s); i++ {
		vm.Heap.BytevSetU8(b, i, s[i])
	}
	return vm.RecMake(vm.StringType, b)
}

// StringEq reports whether the string value a holds exactly the bytes of
// the Go string b.
func (vm *VM) StringEq(a value.Value, b string) bool {
	bytes := vm.Heap.RecRef(a, 0)
	if vm.Heap.BytevLen(bytes) != len(b) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if vm.Heap.BytevRefU8(bytes, i) != b[i] {
			return false
		}
	}
	return true
}

// internBucket hashes s into one of the Symbols vector's chains.
func internBucket(s string, buckets int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32()) % buckets
}

// Intern returns the canonical symbol record for s, allocating one and
// chaining it into the Symbols bucket vector on first use. Subsequent
// Intern calls with the same name walk the same bucket's pair chain and
// return the existing symbol rather than allocating a duplicate, so two
// symbols with the same name are always eq.
func (vm *VM) Intern(s string) value.Value {
	buckets := vm.Heap.VecLen(vm.Symbols)
	bucket := internBucket(s, buckets)

	for chain := vm.Heap.VecRef(vm.Symbols, bucket); chain.IsPair(); chain = vm.Heap.PairCdr(chain) {
		sym := vm.Heap.PairCar(chain)
		if vm.StringEq(vm.SymbolName(sym), s) {
			return sym
		}
	}

	sym := vm.RecMake(vm.SymbolType, vm.StringMake(s))
	defer vm.Heap.Protect(&sym)()
	// Hoisted: a collection inside Cons relocates the Symbols table, so
	// the table must be re-read after the allocation, not before it.
	pair := vm.Cons(sym, vm.Heap.VecRef(vm.Symbols, bucket))
	vm.Heap.VecSet(vm.Symbols, bucket, pair)
	return sym
}

// SymbolName returns a symbol's underlying string record.
func (vm *VM) SymbolName(sym value.Value) value.Value {
	return vm.Heap.RecRef(sym, 0)
}

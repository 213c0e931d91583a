package heap

import (
	"fmt"

	"github.com/carriercomm/suo/internal/value"
)

// copyValue moves v's referent into the new semispace if it has not moved
// already, installing a forwarding pointer in its old location, and returns
// the (possibly unchanged) value pointing at its new location. Immediates
// pass through untouched.
//
// copyValue never calls scanAt: the object it just moved is left unscanned,
// to be picked up later when collect's scan cursor reaches it. Recursing
// here instead would blow the Go stack on a long cons chain exactly as it
// would in a C implementation using native recursion.
func (h *Heap) copyValue(v value.Value) value.Value {
	if !v.IsPointer() {
		return v
	}
	ptr := int(v.PointerIndex())

	// Already in the new semispace: a root slot registered more than once
	// was rewritten the first time it was visited.
	if ptr >= h.newBase && ptr < h.newEnd {
		return v
	}

	if moved := h.followForwarding(ptr); moved != ptr {
		return value.PointerValue(uint32(moved), v.LowTag())
	}

	var size int
	switch {
	case h.isPairAt(ptr):
		size = 2
	case h.isVectorHeaderAt(ptr):
		size = vectorLen(h.raw[ptr]) + 1
	case h.isBytevectorHeaderAt(ptr):
		size = bytevWords(bytevLen(h.raw[ptr])) + 1
	case h.isCodeHeaderAt(ptr):
		size = h.codeLitEnd(ptr) + 1
	case h.isRecordHeaderAt(ptr):
		// The descriptor may already have been relocated by an earlier
		// copyValue call, in which case a forwarding pointer sits where
		// its header used to be; follow it before trusting its field 0.
		descHeader := int(h.recDescPointer(ptr).PointerIndex())
		descHeader = h.followForwarding(descHeader)
		size = int(absInt32(h.raw[descHeader+1].Fixnum())) + 1
	default:
		h.fatal(ErrHeapCorruption, "copyValue: object at unrecognized shape")
		return v // unreachable, fatal panics
	}

	newPtr := h.newNext
	h.newNext += roundUpEven(size)
	copy(h.raw[newPtr:newPtr+size], h.raw[ptr:ptr+size])
	h.installForwarding(ptr, newPtr)

	return value.PointerValue(uint32(newPtr), v.LowTag())
}

// installForwarding overwrites an old object's first word with a pair-tagged
// pointer into the new semispace. followForwarding recognizes this by
// checking that the pointed-to index actually falls inside the new
// semispace's range, since an ordinary pair value could otherwise look
// identical.
func (h *Heap) installForwarding(old, moved int) {
	h.raw[old] = value.PointerValue(uint32(moved), value.TagPair)
}

func (h *Heap) followForwarding(ptr int) int {
	w := h.raw[ptr]
	if w.LowTag() == value.TagPair {
		idx := int(w.PointerIndex())
		if idx >= h.newBase && idx < h.newEnd {
			return idx
		}
	}
	return ptr
}

func absInt32(n int32) int32 {
	if n < 0 {
		return -n
	}
	return n
}

// scanAt copies every value reachable from the object at ptr (which must
// already live in the new semispace) and returns the word index of the next
// object to scan. Like copyValue, it never recurses into what it copies;
// collect drives it in a loop over the whole new semispace instead.
func (h *Heap) scanAt(ptr int) int {
	cur := ptr
	var size int

	switch {
	case h.isPairAt(ptr):
		size = 2
	case h.isVectorHeaderAt(ptr):
		size = vectorLen(h.raw[ptr])
		cur++
	case h.isBytevectorHeaderAt(ptr):
		cur += bytevWords(bytevLen(h.raw[ptr])) + 1
		size = 0
	case h.isCodeHeaderAt(ptr):
		begin := codeLitBegin(h.raw[ptr])
		end := h.codeLitEnd(ptr)
		size = end - begin + 1
		cur += begin
	case h.isRecordHeaderAt(ptr):
		// The descriptor pointer has its own funny tag-6 disguise and has
		// to be copied here explicitly rather than through the generic
		// slot loop below.
		desc := h.copyValue(h.recDescPointer(ptr))
		h.raw[ptr] = recHeaderFor(desc)
		descBase := int(desc.PointerIndex())
		size = int(h.raw[descBase+1].Fixnum())
		cur++
		if size < 0 {
			// A raw record: its fields are opaque bytes, not values, so
			// skip over them instead of copying each as a reference.
			cur -= size
			size = 0
		}
	default:
		h.fatal(ErrHeapCorruption, "scanAt: object at unrecognized shape")
	}

	for i := 0; i < size; i++ {
		h.raw[cur+i] = h.copyValue(h.raw[cur+i])
	}

	return roundUpEven(cur + size)
}

// Collect forces an immediate full collection, regardless of how much of
// the active semispace is free.
func (h *Heap) Collect() { h.collect(0) }

// collect runs a full semispace flip: every root is relocated into a fresh
// semispace, then every object reachable from those roots (transitively) is
// relocated too, by scanning the new semispace from the front as it grows.
// collect panics with a FatalError wrapping ErrHeapExhausted if the new
// semispace cannot even satisfy the pending allocation of n words once the
// flip completes.
func (h *Heap) collect(n int) {
	if h.checkHeap {
		h.Check()
	}

	h.newBase = h.capacity - h.base
	h.newNext = h.newBase
	h.newEnd = h.newBase + h.capacity

	for _, root := range h.roots {
		*root = h.copyValue(*root)
	}

	cur := h.newBase
	objects := 0
	for cur < h.newNext {
		cur = h.scanAt(cur)
		objects++
	}

	h.base = h.newBase
	h.next = h.newNext
	h.end = h.newEnd
	h.newBase, h.newNext, h.newEnd = 0, 0, 0
	h.collections++

	h.log("gc", "collected %d objects, %d/%d words live", objects, h.next-h.base, h.capacity)

	if h.end-h.next < n {
		h.fatal(ErrHeapExhausted, fmt.Sprintf("need %d words after collection, have %d", n, h.end-h.next))
	}

	if h.checkHeap {
		h.Check()
	}
}

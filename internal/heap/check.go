package heap

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// objectSizeAt returns the word count (header included) of the object
// starting at ptr, using the same shape dispatch as copyValue/scanAt. It
// assumes a heap with no forwarding pointers in flight, which holds
// whenever Check is called: either between collections, or right at the
// start/end of one before any object has moved.
func (h *Heap) objectSizeAt(ptr int) int {
	switch {
	case h.isPairAt(ptr):
		return 2
	case h.isVectorHeaderAt(ptr):
		return vectorLen(h.raw[ptr]) + 1
	case h.isBytevectorHeaderAt(ptr):
		return bytevWords(bytevLen(h.raw[ptr])) + 1
	case h.isCodeHeaderAt(ptr):
		return h.codeLitEnd(ptr) + 1
	case h.isRecordHeaderAt(ptr):
		desc := h.recDescPointer(ptr)
		if !desc.IsRecord() {
			h.fatal(ErrHeapCorruption, fmt.Sprintf("check: record at %d has a malformed descriptor", ptr))
		}
		return int(absInt32(h.recDescLen(desc))) + 1
	default:
		h.fatal(ErrHeapCorruption, fmt.Sprintf("check: object at %d has unrecognized shape", ptr))
		return 0 // unreachable, fatal panics
	}
}

// objectSlotsAt returns the index range [slotsBegin, slotsEnd) of the value
// slots of the size-word object at ptr: everything except headers, raw byte
// payloads, and raw record fields.
func (h *Heap) objectSlotsAt(ptr, size int) (slotsBegin, slotsEnd int) {
	switch {
	case h.isPairAt(ptr):
		return ptr, ptr + size
	case h.isVectorHeaderAt(ptr):
		return ptr + 1, ptr + size
	case h.isBytevectorHeaderAt(ptr):
		return ptr + size, ptr + size
	case h.isCodeHeaderAt(ptr):
		return ptr + codeLitBegin(h.raw[ptr]), ptr + size
	case h.isRecordHeaderAt(ptr):
		if h.recDescLen(h.recDescPointer(ptr)) < 0 {
			return ptr + size, ptr + size
		}
		return ptr + 1, ptr + size
	default:
		h.fatal(ErrHeapCorruption, fmt.Sprintf("check: object at %d has unrecognized shape", ptr))
		return 0, 0 // unreachable
	}
}

// checkStarts walks the active semispace once, recording the size of every
// object at its start index (1-indexed by shadow[i-base] != 0 so 0 can mean
// "not a start"), and the list of start indices in ascending order. This is
// the non-parallelizable half of the checker: each object's position
// depends on the previous object's size.
func (h *Heap) checkStarts() (shadow []int, starts []int) {
	shadow = make([]int, h.capacity)
	ptr := h.base
	for ptr < h.next {
		size := h.objectSizeAt(ptr)
		shadow[ptr-h.base] = size
		starts = append(starts, ptr)
		ptr = roundUpEven(ptr + size)
	}
	return shadow, starts
}

// checkObject validates every value slot of the object at ptr: no slot may
// hold a vector/byte-vector/code header or a record-descriptor header (a
// header word has no business appearing as an ordinary value), and pointers
// must land inside the active semispace, at a recorded object start.
func (h *Heap) checkObject(shadow []int, ptr int) {
	size := shadow[ptr-h.base]
	if size == 0 {
		h.fatal(ErrHeapCorruption, fmt.Sprintf("check: no recorded object at %d", ptr))
	}
	begin, end := h.objectSlotsAt(ptr, size)
	for cur := begin; cur < end; cur++ {
		v := h.raw[cur]
		if h.isVectorHeaderAt(cur) || h.isBytevectorHeaderAt(cur) || h.isCodeHeaderAt(cur) {
			h.fatal(ErrHeapCorruption, fmt.Sprintf("check: header word found as a value at %d", cur))
		}
		if !v.IsPointer() {
			continue
		}
		if v.IsRecordDescHeader() {
			h.fatal(ErrHeapCorruption, fmt.Sprintf("check: record-descriptor header found as a value at %d", cur))
		}
		p := int(v.PointerIndex())
		if p < h.base || p >= h.end {
			h.fatal(ErrHeapCorruption, fmt.Sprintf("check: pointer at %d targets %d, outside the active semispace", cur, p))
		}
		if shadow[p-h.base] == 0 {
			h.fatal(ErrHeapCorruption, fmt.Sprintf("check: pointer at %d targets %d, not an object start", cur, p))
		}
	}
}

// Check walks the active semispace twice: once to record where every
// object begins, once to validate that no value slot holds a header word
// and that every value slot referencing the heap points at a recorded
// object start. It
// panics with a heap-corruption FatalError at the first inconsistency
// found. Collect calls this automatically when WithHeapCheck is set.
func (h *Heap) Check() {
	shadow, starts := h.checkStarts()
	for _, ptr := range starts {
		h.checkObject(shadow, ptr)
	}
}

// ConcurrentCheck runs the same validation as Check but spreads the
// second, read-only pass across goroutines, one per available CPU. The
// first pass (recording object starts) is inherently sequential, since
// each object's position depends on the one before it; only the
// already-positioned objects' slot validation parallelizes.
func (h *Heap) ConcurrentCheck(ctx context.Context) error {
	shadow, starts := h.checkStarts()

	workers := runtime.GOMAXPROCS(0)
	if workers > len(starts) {
		workers = len(starts)
	}
	if workers < 1 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(starts) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= len(starts) {
			break
		}
		if hi > len(starts) {
			hi = len(starts)
		}
		slice := starts[lo:hi]
		g.Go(func() error {
			return h.checkRange(ctx, shadow, slice)
		})
	}
	return g.Wait()
}

func (h *Heap) checkRange(ctx context.Context, shadow []int, starts []int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()
	for _, ptr := range starts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.checkObject(shadow, ptr)
	}
	return nil
}

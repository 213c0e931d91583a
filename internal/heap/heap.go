// Package heap implements suo's semispace allocator, object layout, and
// Cheney-style copying collector: a flat array of tagged words, with every
// heap object's kind discoverable from its first word alone (see
// value.Value's tag scheme). It is the single place in the runtime that
// understands both "how objects are shaped" and "how to move them", because
// the collector needs both at once.
package heap

import (
	"fmt"

	"github.com/carriercomm/suo/internal/value"
)

// ErrHeapExhausted and ErrHeapCorruption are the two fatal error kinds a
// Heap can raise: both abort the owning process by panicking with a
// FatalError, which an embedding caller can recover via panicerr.Recover.
var (
	ErrHeapExhausted  = fmt.Errorf("heap exhausted")
	ErrHeapCorruption = fmt.Errorf("heap corruption detected")
)

// FatalError wraps one of the fatal error kinds above with the heap state
// at the time it was raised. Recovering it (see panicerr) is the only
// sanctioned way to turn a heap abort into a returned Go error; code that
// continues running after the heap raised a FatalError is working with an
// inconsistent runtime.
type FatalError struct {
	Err error
}

func (e FatalError) Error() string { return e.Err.Error() }
func (e FatalError) Unwrap() error { return e.Err }

// Heap is a two-space copying collector over a flat []value.Value array.
// The zero Heap is not usable; construct one with New.
type Heap struct {
	// raw backs both semispaces at once, each of capacity words, so that
	// "is this address in old space or new space" -- the question the
	// forwarding-pointer protocol depends on -- is answered by comparing
	// against base/newBase rather than by any per-word flag.
	raw []value.Value

	capacity int
	base     int // start of the active semispace within raw
	next     int // bump pointer, absolute index within [base, base+capacity)
	end      int // base + capacity

	// valid only while a collection is in progress
	newBase int
	newNext int
	newEnd  int

	roots []*value.Value

	debugGC     bool
	checkHeap   bool
	collections int

	logf func(mark, mess string, args ...interface{})
}

// Option configures a Heap at construction time, mirroring the functional
// options used throughout this codebase's CLI and runtime layers.
type Option func(*Heap)

// WithCapacityWords sets the semispace capacity in words. The reference
// configuration uses 217000.
func WithCapacityWords(n int) Option {
	return func(h *Heap) { h.capacity = n }
}

// WithDebugGC forces a collection before every allocation, so tests can
// exercise collector behavior exhaustively rather than depending on a heap
// that happens to be large enough to never collect.
func WithDebugGC(on bool) Option {
	return func(h *Heap) { h.debugGC = on }
}

// WithHeapCheck enables the two-pass consistency checker around every
// collection.
func WithHeapCheck(on bool) Option {
	return func(h *Heap) { h.checkHeap = on }
}

// WithLogf supplies a diagnostic sink for GC and checker messages, in the
// same (mark, message, args...) shape the rest of this codebase's logging
// uses.
func WithLogf(logfn func(mark, mess string, args ...interface{})) Option {
	return func(h *Heap) { h.logf = logfn }
}

const defaultCapacityWords = 217000

// New allocates a fresh semispace and returns a ready-to-use Heap.
func New(opts ...Option) *Heap {
	h := &Heap{capacity: defaultCapacityWords}
	for _, opt := range opts {
		opt(h)
	}
	h.raw = make([]value.Value, 2*h.capacity)
	h.base = 0
	h.next = 0
	h.end = h.capacity
	return h
}

func (h *Heap) log(mark, mess string, args ...interface{}) {
	if h.logf != nil {
		h.logf(mark, mess, args...)
	}
}

func (h *Heap) fatal(base error, detail string) {
	err := FatalError{Err: fmt.Errorf("%w: %s", base, detail)}
	h.log("!", "%v", err)
	panic(err)
}

// roundUpEven rounds n up to the next even number, so that an allocation of
// n words always advances `next` by an even word count -- the allocator's
// half of the 8-byte alignment invariant.
func roundUpEven(n int) int {
	return (n + 1) &^ 1
}

// Allocate reserves n contiguous words and returns their starting word
// index. It triggers a collection if the active semispace cannot satisfy
// the request (or always, in debug-GC mode), and panics with a FatalError
// wrapping ErrHeapExhausted if a fresh semispace still cannot.
func (h *Heap) Allocate(n int) int {
	if h.debugGC || h.next+n > h.end {
		h.collect(n)
	}
	if h.next+n > h.end {
		h.fatal(ErrHeapExhausted, fmt.Sprintf("need %d words, have %d", n, h.end-h.next))
	}
	start := h.next
	h.next += roundUpEven(n)
	return start
}

// Shutdown releases the heap's backing storage and root set. The Heap is
// unusable afterwards; any further access panics on the nil backing array.
func (h *Heap) Shutdown() {
	h.raw = nil
	h.roots = nil
	h.capacity = 0
	h.base, h.next, h.end = 0, 0, 0
}

// Used returns the number of words currently allocated in the active
// semispace.
func (h *Heap) Used() int { return h.next - h.base }

// Capacity returns the semispace's fixed word capacity.
func (h *Heap) Capacity() int { return h.capacity }

// Load reads the raw word at index i.
func (h *Heap) Load(i int) value.Value { return h.raw[i] }

// Store writes the raw word at index i.
func (h *Heap) Store(i int, v value.Value) { h.raw[i] = v }

// RegisterRoot adds slot to the root set. Roots must be unregistered in
// strict LIFO order via UnregisterRoot; prefer Protect for scoped use.
func (h *Heap) RegisterRoot(slot *value.Value) {
	h.roots = append(h.roots, slot)
}

// UnregisterRoot removes the most recently registered root. It is a fatal
// heap-corruption condition to call this with no roots registered, since
// that can only happen from mismatched Protect/RegisterRoot nesting.
func (h *Heap) UnregisterRoot() {
	if len(h.roots) == 0 {
		h.fatal(ErrHeapCorruption, "unregister_root with empty root stack")
	}
	h.roots = h.roots[:len(h.roots)-1]
}

// Protect registers slots as roots and returns a release function that
// unregisters exactly them, in LIFO order, on every exit path:
//
//	defer h.Protect(&a, &d)()
//
// Nesting Protect calls is safe as long as each call's release runs before
// an outer call's release (strict LIFO); a violation panics with a
// heap-corruption FatalError rather than silently desyncing the root stack.
func (h *Heap) Protect(slots ...*value.Value) (release func()) {
	start := len(h.roots)
	for _, s := range slots {
		h.RegisterRoot(s)
	}
	want := start + len(slots)
	return func() {
		if len(h.roots) != want {
			h.fatal(ErrHeapCorruption, "root protection released out of LIFO order")
		}
		h.roots = h.roots[:start]
	}
}

// NumRoots reports the number of currently registered roots, for tests.
func (h *Heap) NumRoots() int { return len(h.roots) }

//// Object shape discrimination
//
// These are the load-bearing predicates the collector and the checker both
// need: given only the first word of an object, tell what kind it is.

// isPairAt reports whether the object whose first word is at index i is a
// pair: structurally, anything that is not a vector/bytevector/code/record
// header. This is the single most delicate distinction in the
// representation; a caller that writes a header-shaped word into a pair
// slot breaks it, which is the main corruption Check exists to catch.
func (h *Heap) isPairAt(i int) bool {
	head := h.raw[i]
	if head.Tag(3) == value.TagSpecial {
		refined := head.Tag(6)
		return refined == value.HeadTagChar || refined == value.HeadTagSpecial
	}
	return head.Tag(3) != value.TagRecordDescHead
}

func (h *Heap) isVectorHeaderAt(i int) bool {
	return h.raw[i].Tag(4) == value.HeadTagVector
}

func (h *Heap) isBytevectorHeaderAt(i int) bool {
	return h.raw[i].Tag(6) == value.HeadTagBytevector
}

func (h *Heap) isCodeHeaderAt(i int) bool {
	return h.raw[i].Tag(6) == value.HeadTagCode
}

func (h *Heap) isRecordHeaderAt(i int) bool {
	return h.raw[i].Tag(3) == value.TagRecordDescHead
}

func vectorLen(head value.Value) int { return int(head.Payload(4)) }
func bytevLen(head value.Value) int  { return int(head.Payload(6)) }

// bytevWords returns the number of words a byte-vector of byteLen bytes
// occupies for its byte payload (not counting the header).
func bytevWords(byteLen int) int { return (byteLen + 3) / 4 }

// codeLitBegin returns the word offset (from the header) of a code block's
// first literal slot. The word just before it holds the offset of the last
// literal slot, so a code block's total footprint is codeLitEnd+1 words and
// its literal region is codeLitBegin..codeLitEnd inclusive.
func codeLitBegin(head value.Value) int { return bytevWords(bytevLen(head)) + 2 }

// codeLitEnd reads the last-literal offset stored between a code block's
// byte payload and its literal region.
func (h *Heap) codeLitEnd(headerIdx int) int {
	head := h.raw[headerIdx]
	begin := codeLitBegin(head)
	return int(h.raw[headerIdx+begin-1].Fixnum())
}

// recDescPointer reconstructs the tag-3 record pointer value stored (in its
// funny tag-6 header disguise) as the first word of a record at index i.
func (h *Heap) recDescPointer(i int) value.Value {
	header := h.raw[i]
	return value.PointerValue(header.PointerIndex(), value.TagRecord)
}

// recHeaderFor packs a record-descriptor pointer (tag 3) into the tag-6
// header word format used as a record's first word.
func recHeaderFor(desc value.Value) value.Value {
	return value.PointerValue(desc.PointerIndex(), value.TagRecordDescHead)
}

// recDescLen reads field 0 of a record descriptor (itself a record): the
// signed word count, whose sign distinguishes scannable (>=0) from raw
// (<0) records.
func (h *Heap) recDescLen(descPtr value.Value) int32 {
	descBase := int(descPtr.PointerIndex()) + 1 // +1 skips the descriptor's own header
	return h.raw[descBase].Fixnum()
}

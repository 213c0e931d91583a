package heap

import "github.com/carriercomm/suo/internal/value"

//// Low-level constructors: these allocate, but never call anything that
//// could itself trigger a nested allocation, so they need no root
//// protection of their own. Callers that must fill them with
//// already-allocated values (cons, vec_make, rec_make, ...) are the ones
//// responsible for protecting those values across the allocation.

// PairAlloc reserves an uninitialized pair. Callers must set both slots
// before the next allocation, or a collection could observe (and try to
// scan) garbage.
func (h *Heap) PairAlloc() value.Value {
	i := h.Allocate(2)
	return value.PointerValue(uint32(i), value.TagPair)
}

// PairCar and PairCdr read a pair's slots.
func (h *Heap) PairCar(v value.Value) value.Value { return h.raw[v.PointerIndex()] }
func (h *Heap) PairCdr(v value.Value) value.Value { return h.raw[v.PointerIndex()+1] }

// SetCar and SetCdr write a pair's slots. Writing a header or
// record-descriptor-header value into a pair slot is the one corruption
// the heap checker exists to catch; these setters trust their caller not to.
func (h *Heap) SetCar(v, x value.Value) { h.raw[v.PointerIndex()] = x }
func (h *Heap) SetCdr(v, x value.Value) { h.raw[v.PointerIndex()+1] = x }

// VecAlloc reserves an uninitialized vector header plus len value slots.
// Contents are not zeroed; callers must fill them before any further
// allocation.
func (h *Heap) VecAlloc(length int) value.Value {
	i := h.Allocate(length + 1)
	h.raw[i] = value.MakeImmediate(value.Word(length), value.HeadShiftVector, value.HeadTagVector)
	return value.PointerValue(uint32(i), value.TagVector)
}

// VecLen returns a vector's length.
func (h *Heap) VecLen(v value.Value) int {
	return vectorLen(h.raw[v.PointerIndex()])
}

// VecRef and VecSet access a vector's ith value slot.
func (h *Heap) VecRef(v value.Value, i int) value.Value {
	return h.raw[int(v.PointerIndex())+1+i]
}
func (h *Heap) VecSet(v value.Value, i int, x value.Value) {
	h.raw[int(v.PointerIndex())+1+i] = x
}

// IsBytevector and IsCode discriminate the two heap-object kinds sharing
// the byte-vector low tag, by consulting the header word.
func (h *Heap) IsBytevector(v value.Value) bool {
	return v.IsBytevectorOrCode() && h.isBytevectorHeaderAt(int(v.PointerIndex()))
}
func (h *Heap) IsCode(v value.Value) bool {
	return v.IsBytevectorOrCode() && h.isCodeHeaderAt(int(v.PointerIndex()))
}

// BytevAlloc reserves an uninitialized byte vector of byteLen bytes.
func (h *Heap) BytevAlloc(byteLen int) value.Value {
	i := h.Allocate(bytevWords(byteLen) + 1)
	h.raw[i] = value.MakeImmediate(value.Word(byteLen), value.HeadShiftBytevector, value.HeadTagBytevector)
	return value.PointerValue(uint32(i), value.TagBytevOrCode)
}

// BytevLen returns a byte vector's length in bytes.
func (h *Heap) BytevLen(v value.Value) int {
	return bytevLen(h.raw[v.PointerIndex()])
}

// BytevRefU8 and BytevSetU8 access individual bytes of a byte vector,
// packed four per word, least significant byte first.
func (h *Heap) BytevRefU8(v value.Value, i int) byte {
	base := int(v.PointerIndex()) + 1
	word := h.raw[base+i/4]
	return byte(uint32(word) >> (uint(i%4) * 8))
}

func (h *Heap) BytevSetU8(v value.Value, i int, b byte) {
	base := int(v.PointerIndex()) + 1
	shift := uint(i%4) * 8
	word := uint32(h.raw[base+i/4])
	word = (word &^ (0xFF << shift)) | (uint32(b) << shift)
	h.raw[base+i/4] = value.Value(word)
}

// CodeAlloc reserves an uninitialized code block: byteLen bytes of
// instruction payload, then a word recording where the literal region
// ends, then litCount value slots the collector scans like vector
// contents.
func (h *Heap) CodeAlloc(byteLen, litCount int) value.Value {
	payload := bytevWords(byteLen)
	i := h.Allocate(payload + 2 + litCount)
	h.raw[i] = value.MakeImmediate(value.Word(byteLen), value.HeadShiftCode, value.HeadTagCode)
	h.raw[i+payload+1] = value.MakeFixnum(int32(payload + 1 + litCount))
	return value.PointerValue(uint32(i), value.TagBytevOrCode)
}

// CodeLitBegin and CodeLitEnd return the word offsets (relative to the
// block's header) of the first and last literal slot. A block with no
// literals has CodeLitEnd = CodeLitBegin-1.
func (h *Heap) CodeLitBegin(v value.Value) int {
	return codeLitBegin(h.raw[v.PointerIndex()])
}
func (h *Heap) CodeLitEnd(v value.Value) int {
	return h.codeLitEnd(int(v.PointerIndex()))
}

// CodeLitRef and CodeLitSet access a code block's literal slots, indexed
// from 0.
func (h *Heap) CodeLitRef(v value.Value, i int) value.Value {
	begin := h.CodeLitBegin(v)
	return h.raw[int(v.PointerIndex())+begin+i]
}
func (h *Heap) CodeLitSet(v value.Value, i int, x value.Value) {
	begin := h.CodeLitBegin(v)
	h.raw[int(v.PointerIndex())+begin+i] = x
}

// RecAlloc reserves an uninitialized record body of length words. The
// caller must set a descriptor with RecSetDesc before the record is
// otherwise valid -- an unset record has tag-6 garbage in its header slot
// and will fail the heap checker if scanned.
func (h *Heap) RecAlloc(length int) value.Value {
	i := h.Allocate(length + 1)
	return value.PointerValue(uint32(i), value.TagRecord)
}

// RecSetDesc installs v's record-descriptor pointer.
func (h *Heap) RecSetDesc(v, desc value.Value) {
	h.raw[v.PointerIndex()] = recHeaderFor(desc)
}

// RecDesc returns v's record-descriptor pointer.
func (h *Heap) RecDesc(v value.Value) value.Value {
	return h.recDescPointer(int(v.PointerIndex()))
}

// RecRef and RecSet access a record's ith field.
func (h *Heap) RecRef(v value.Value, i int) value.Value {
	return h.raw[int(v.PointerIndex())+1+i]
}
func (h *Heap) RecSet(v value.Value, i int, x value.Value) {
	h.raw[int(v.PointerIndex())+1+i] = x
}

// RecLen returns a record's field count, read from field 0 of its
// descriptor.
func (h *Heap) RecLen(v value.Value) int {
	desc := h.RecDesc(v)
	n := h.recDescLen(desc)
	if n < 0 {
		n = -n
	}
	return int(n)
}

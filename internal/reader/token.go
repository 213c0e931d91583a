package reader

import "github.com/carriercomm/suo/internal/value"

// growBytev copies tok's first n bytes into a byte vector with at least
// n+1 bytes of room, leaving the rest uninitialized.
func (r *Reader) growBytev(tok value.Value, n int) value.Value {
	vm := r.vm
	defer vm.Heap.Protect(&tok)()
	y := vm.Heap.BytevAlloc(n + 200)
	for i := 0; i < n; i++ {
		vm.Heap.BytevSetU8(y, i, vm.Heap.BytevRefU8(tok, i))
	}
	return y
}

// readToken reads characters into a growable byte buffer until an
// unescaped delimiter, unescaped whitespace, or EOF, having already
// consumed first. It then tries to parse the token as a fixnum; failing
// that, an unescaped lone "." becomes the dot token, and anything else
// becomes an interned symbol.
func (r *Reader) readToken(first rune) value.Value {
	vm := r.vm
	tok := vm.Heap.BytevAlloc(200)
	defer vm.Heap.Protect(&tok)()

	n := 0
	escaped := false
	anyEscaped := false
	c := first

	for {
		if c == -1 || (!escaped && (isIn(delimiters, c) || isIn(whitespace, c))) {
			r.ungetc(c)
			break
		}
		if c == '\\' && !escaped {
			escaped = true
			anyEscaped = true
		} else {
			if vm.Heap.BytevLen(tok) < n+1 {
				tok = r.growBytev(tok, n)
			}
			vm.Heap.BytevSetU8(tok, n, byte(c))
			n++
			escaped = false
		}
		c = r.getc()
	}

	res := r.tokenToFixnum(tok, n)
	if res.IsFalse() {
		if !anyEscaped && n == 1 && vm.Heap.BytevRefU8(tok, 0) == '.' {
			return vm.DotToken
		}
		name := make([]byte, n)
		for i := 0; i < n; i++ {
			name[i] = vm.Heap.BytevRefU8(tok, i)
		}
		return vm.Intern(string(name))
	}
	return res
}

// tokenToFixnum parses tok[0:n] as a signed decimal integer. A token that
// isn't entirely digits (after an optional leading sign) is not a number:
// returns value.False so the caller falls back to dot-token/symbol
// handling. A token that is all digits but out of fixnum range is a read
// error: returns value.Unspec, which aborts the enclosing Read call.
func (r *Reader) tokenToFixnum(tok value.Value, n int) value.Value {
	vm := r.vm
	if n == 0 {
		return value.False
	}

	i := 0
	sign := int32(1)
	switch vm.Heap.BytevRefU8(tok, 0) {
	case '-':
		sign = -1
		i = 1
	case '+':
		i = 1
	}
	start := i

	var num int64
	for i < n {
		c := vm.Heap.BytevRefU8(tok, i)
		if c < '0' || c > '9' {
			break
		}
		num = 10*num + int64(c-'0')
		if signed := int64(sign) * num; signed < int64(value.FixnumMin) || signed > int64(value.FixnumMax) {
			r.complain("number out of range")
			return value.Unspec
		}
		i++
	}

	if i == n && i > start {
		return value.MakeFixnum(sign * int32(num))
	}
	return value.False
}

// readString reads the body of a "..."-delimited string, having already
// consumed the opening quote. It reads until an unescaped closing quote
// or EOF.
func (r *Reader) readString() value.Value {
	vm := r.vm
	tok := vm.Heap.BytevAlloc(200)
	defer vm.Heap.Protect(&tok)()

	n := 0
	escaped := false
	for {
		c := r.getc()
		if c == -1 {
			r.complain("unexpected end of input in string")
			break
		}
		if c == '"' && !escaped {
			break
		}
		if c == '\\' && !escaped {
			escaped = true
			continue
		}
		if vm.Heap.BytevLen(tok) < n+1 {
			tok = r.growBytev(tok, n)
		}
		vm.Heap.BytevSetU8(tok, n, byte(c))
		n++
		escaped = false
	}

	b := vm.Heap.BytevAlloc(n)
	for i := 0; i < n; i++ {
		vm.Heap.BytevSetU8(b, i, vm.Heap.BytevRefU8(tok, i))
	}
	return vm.RecMake(vm.StringType, b)
}

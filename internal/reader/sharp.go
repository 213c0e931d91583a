package reader

import (
	"github.com/carriercomm/suo/internal/eval"
	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/value"
)

// tokenText recovers the source text of a value readToken produced, so a
// `#`-construct can look it up in a name table. readToken returns either
// the dot token or an interned symbol; anything else (a fixnum, an
// unspecified read error) has no name to look up.
func tokenText(vm *runtime.VM, x value.Value) (string, bool) {
	if x == vm.DotToken {
		return ".", true
	}
	if !x.IsRecord() || vm.Heap.RecDesc(x) != vm.SymbolType {
		return "", false
	}
	s := vm.Heap.RecRef(x, 0)
	b := vm.Heap.RecRef(s, 0)
	n := vm.Heap.BytevLen(b)
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = vm.Heap.BytevRefU8(b, i)
	}
	return string(buf), true
}

var charNames = map[string]rune{
	"space": ' ',
	"nl":    '\n',
}

// readCharSymbol turns the token following `#\` into a character value:
// a named character ("space", "nl"), or a token that's exactly one rune.
func (r *Reader) readCharSymbol(tok value.Value) value.Value {
	vm := r.vm
	text, ok := tokenText(vm, tok)
	if !ok {
		r.complain("malformed character literal")
		return value.Unspec
	}
	if c, ok := charNames[text]; ok {
		return value.MakeChar(c)
	}
	runes := []rune(text)
	if len(runes) == 1 {
		return value.MakeChar(runes[0])
	}
	r.complain("unrecognized character name %q", text)
	return value.Unspec
}

// sharpSymbols maps the token following a bare `#` to its value: the
// boolean literals, and the operation codes the eval package dispatches
// operation vectors on.
var sharpSymbols = map[string]value.Value{
	"t": value.True,
	"f": value.False,

	"@if":     value.MakeFixnum(eval.OpIf),
	"@lambda": value.MakeFixnum(eval.OpLambda),
	"@call":   value.MakeFixnum(eval.OpCall),
	"@apply":  value.MakeFixnum(eval.OpApply),
	"@quote":  value.MakeFixnum(eval.OpQuote),
	"@set":    value.MakeFixnum(eval.OpSet),
	"@sum":    value.MakeFixnum(eval.OpSum),
	"@mul":    value.MakeFixnum(eval.OpMul),
}

// readSharpSymbol turns the token following a bare `#` into its bound
// value, or reports it as unrecognized.
func (r *Reader) readSharpSymbol(tok value.Value) value.Value {
	vm := r.vm
	text, ok := tokenText(vm, tok)
	if !ok {
		r.complain("malformed # construct")
		return value.Unspec
	}
	if v, ok := sharpSymbols[text]; ok {
		return v
	}
	r.complain("unrecognized # construct %q", text)
	return value.Unspec
}

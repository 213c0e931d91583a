package reader_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carriercomm/suo/internal/eval"
	"github.com/carriercomm/suo/internal/flushio"
	"github.com/carriercomm/suo/internal/heap"
	"github.com/carriercomm/suo/internal/reader"
	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/value"
	"github.com/carriercomm/suo/internal/writer"
)

func newTestVM(t *testing.T, words int) *runtime.VM {
	t.Helper()
	vm := runtime.New(runtime.WithHeapOptions(heap.WithCapacityWords(words)))
	vm.BootInit()
	return vm
}

func writeToString(t *testing.T, vm *runtime.VM, x value.Value) string {
	t.Helper()
	var buf bytes.Buffer
	w := writer.New(vm, flushio.NewWriteFlusher(&buf))
	require.NoError(t, w.Write(x))
	return buf.String()
}

func TestReadFixnum(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("  123 "))
	x := r.Read()
	require.True(t, x.IsFixnum())
	assert.Equal(t, int32(123), x.Fixnum())
}

func TestReadNegativeFixnum(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("-17"))
	x := r.Read()
	require.True(t, x.IsFixnum())
	assert.Equal(t, int32(-17), x.Fixnum())
}

func TestReadList(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("(1 2 3)"))
	x := r.Read()
	assert.Equal(t, "(1 2 3)", writeToString(t, vm, x))
}

func TestReadDottedPair(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("(1 . 2)"))
	x := r.Read()
	assert.Equal(t, "(1 . 2)", writeToString(t, vm, x))
}

func TestReadVector(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("[1 2 3]"))
	x := r.Read()
	require.True(t, x.IsVector())
	assert.Equal(t, "[1 2 3]", writeToString(t, vm, x))
}

func TestReadString(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader(`"hello world"`))
	x := r.Read()
	assert.True(t, vm.StringEq(x, "hello world"))
}

func TestReadSymbol(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("foo-bar"))
	x := r.Read()
	require.True(t, x.IsRecord())
	assert.Equal(t, vm.SymbolType, vm.Heap.RecDesc(x))
	assert.True(t, vm.StringEq(vm.SymbolName(x), "foo-bar"))
}

func TestReadQuoteAbbreviation(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("'foo"))
	x := r.Read()
	require.True(t, x.IsPair())
	assert.True(t, vm.StringEq(vm.SymbolName(vm.Heap.PairCar(x)), "quote"))
}

func TestReadBooleans(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("#t #f"))
	assert.True(t, r.Read().IsTrue())
	assert.True(t, r.Read().IsFalse())
}

func TestReadCharLiteral(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader(`#\a #\space #\nl`))
	a := r.Read()
	require.True(t, a.IsChar())
	assert.Equal(t, 'a', a.Char())

	sp := r.Read()
	assert.Equal(t, ' ', sp.Char())

	nl := r.Read()
	assert.Equal(t, '\n', nl.Char())
}

func TestReadSequentialForms(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("1 2 3"))
	assert.Equal(t, int32(1), r.Read().Fixnum())
	assert.Equal(t, int32(2), r.Read().Fixnum())
	assert.Equal(t, int32(3), r.Read().Fixnum())
}

// TestReadEvalScenarios drives whole textual compiled forms through the
// reader and the evaluator: the `#@` opcode literals let operation vectors
// be written as plain text.
func TestReadEvalScenarios(t *testing.T) {
	for _, tc := range []struct {
		name, src string
		want      int32
	}{
		{"quote", "[#@quote 42]", 42},
		{"sum", "[#@sum [#@quote 1] [#@quote 2] [#@quote 3]]", 6},
		{"if-empty-list", "[#@if [#@quote ()] [#@quote 1] [#@quote 2]]", 2},
		{"call-lambda", "[#@call [#@lambda [#@sum (0 . 0) (0 . 1)]] [#@quote 10] [#@quote 32]]", 42},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vm := newTestVM(t, 8192)
			r := reader.New(vm, strings.NewReader(tc.src))
			form := r.Read()
			require.False(t, form.IsUnspecified(), "form should read cleanly")
			result := eval.Eval(vm, form)
			require.True(t, result.IsFixnum())
			assert.Equal(t, tc.want, result.Fixnum())
		})
	}
}

func TestReadSharpList(t *testing.T) {
	vm := newTestVM(t, 2048)
	r := reader.New(vm, strings.NewReader("#(1 2)"))
	x := r.Read()
	// #(1 2) reads as the call form (fn () (1 2)): a pair whose car is
	// the "fn" symbol.
	require.True(t, x.IsPair())
	assert.True(t, vm.StringEq(vm.SymbolName(vm.Heap.PairCar(x)), "fn"))
}

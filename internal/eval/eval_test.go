package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carriercomm/suo/internal/eval"
	"github.com/carriercomm/suo/internal/heap"
	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/value"
)

func newTestVM(t *testing.T, words int) *runtime.VM {
	t.Helper()
	vm := runtime.New(runtime.WithHeapOptions(heap.WithCapacityWords(words)))
	vm.BootInit()
	return vm
}

// opVec builds an operation vector [op, args...].
func opVec(vm *runtime.VM, op int, args ...value.Value) value.Value {
	v := vm.Heap.VecAlloc(len(args) + 1)
	vm.Heap.VecSet(v, 0, value.MakeFixnum(int32(op)))
	for i, a := range args {
		vm.Heap.VecSet(v, i+1, a)
	}
	return v
}

func TestEvalLiteral(t *testing.T) {
	vm := newTestVM(t, 4096)
	result := eval.Eval(vm, value.MakeFixnum(42))
	assert.Equal(t, int32(42), result.Fixnum())
}

func TestEvalSum(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpSum, value.MakeFixnum(1), value.MakeFixnum(2), value.MakeFixnum(3))
	result := eval.Eval(vm, form)
	assert.Equal(t, int32(6), result.Fixnum())
}

func TestEvalMul(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpMul, value.MakeFixnum(2), value.MakeFixnum(3), value.MakeFixnum(4))
	result := eval.Eval(vm, form)
	assert.Equal(t, int32(24), result.Fixnum())
}

func TestEvalQuote(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpQuote, value.Nil)
	result := eval.Eval(vm, form)
	assert.True(t, result.IsNil())
}

func TestEvalIfTrueBranch(t *testing.T) {
	vm := newTestVM(t, 4096)
	cond := opVec(vm, eval.OpQuote, value.True)
	then := opVec(vm, eval.OpQuote, value.MakeFixnum(1))
	els := opVec(vm, eval.OpQuote, value.MakeFixnum(2))
	form := opVec(vm, eval.OpIf, cond, then, els)

	result := eval.Eval(vm, form)
	assert.Equal(t, int32(1), result.Fixnum())
}

// TestEvalIfEmptyListIsFalse checks the single falsiness rule: only the
// empty list selects the else branch.
func TestEvalIfEmptyListIsFalse(t *testing.T) {
	vm := newTestVM(t, 4096)
	cond := opVec(vm, eval.OpQuote, value.Nil)
	then := opVec(vm, eval.OpQuote, value.MakeFixnum(1))
	els := opVec(vm, eval.OpQuote, value.MakeFixnum(2))
	form := opVec(vm, eval.OpIf, cond, then, els)

	result := eval.Eval(vm, form)
	assert.Equal(t, int32(2), result.Fixnum())
}

// TestEvalIfFalseBooleanIsTruthy pins down that #f is not false to if;
// nothing but the empty list is.
func TestEvalIfFalseBooleanIsTruthy(t *testing.T) {
	vm := newTestVM(t, 4096)
	cond := opVec(vm, eval.OpQuote, value.False)
	then := opVec(vm, eval.OpQuote, value.MakeFixnum(1))
	els := opVec(vm, eval.OpQuote, value.MakeFixnum(2))
	form := opVec(vm, eval.OpIf, cond, then, els)

	result := eval.Eval(vm, form)
	assert.Equal(t, int32(1), result.Fixnum())
}

// TestEvalLambdaCall builds ((lambda (x) x) 5): a function literal whose
// body is an environment reference to its sole argument, immediately
// called with a single literal argument.
func TestEvalLambdaCall(t *testing.T) {
	vm := newTestVM(t, 4096)

	// (UP=0 . N=0) refers to the current frame's first argument slot
	// (slot index n+2, so argument 0 lives at vector index 2).
	argRef := vm.Cons(value.MakeFixnum(0), value.MakeFixnum(0))
	lambda := opVec(vm, eval.OpLambda, argRef)

	arg := opVec(vm, eval.OpQuote, value.MakeFixnum(5))
	call := opVec(vm, eval.OpCall, lambda, arg)

	result := eval.Eval(vm, call)
	assert.Equal(t, int32(5), result.Fixnum())
}

// TestEvalLambdaCallSumArgs builds ((lambda (x y) (sum x y)) 10 32): two
// argument slots read through (UP . N) references and summed.
func TestEvalLambdaCallSumArgs(t *testing.T) {
	vm := newTestVM(t, 4096)

	argX := vm.Cons(value.MakeFixnum(0), value.MakeFixnum(0))
	argY := vm.Cons(value.MakeFixnum(0), value.MakeFixnum(1))
	body := opVec(vm, eval.OpSum, argX, argY)
	lambda := opVec(vm, eval.OpLambda, body)

	call := opVec(vm, eval.OpCall, lambda, value.MakeFixnum(10), value.MakeFixnum(32))

	result := eval.Eval(vm, call)
	assert.Equal(t, int32(42), result.Fixnum())
}

// TestEvalApply splats a pre-built vector of already-evaluated arguments
// into a fresh frame: [apply [lambda [sum (0 . 0) (0 . 1)]] [quote [10 32]]].
func TestEvalApply(t *testing.T) {
	vm := newTestVM(t, 4096)

	argX := vm.Cons(value.MakeFixnum(0), value.MakeFixnum(0))
	argY := vm.Cons(value.MakeFixnum(0), value.MakeFixnum(1))
	body := opVec(vm, eval.OpSum, argX, argY)
	lambda := opVec(vm, eval.OpLambda, body)

	argvec := vm.Heap.VecAlloc(2)
	vm.Heap.VecSet(argvec, 0, value.MakeFixnum(10))
	vm.Heap.VecSet(argvec, 1, value.MakeFixnum(32))

	form := opVec(vm, eval.OpApply, lambda, opVec(vm, eval.OpQuote, argvec))
	result := eval.Eval(vm, form)
	assert.Equal(t, int32(42), result.Fixnum())
}

// TestEvalSet overwrites the current frame's argument slot and checks both
// that set's own value is the assigned one and that a later read sees it:
// ((lambda (x) (sum (set x 40) x)) 5) is 80, not 45.
func TestEvalSet(t *testing.T) {
	vm := newTestVM(t, 4096)

	ref := vm.Cons(value.MakeFixnum(0), value.MakeFixnum(0))
	setForm := opVec(vm, eval.OpSet, ref, opVec(vm, eval.OpQuote, value.MakeFixnum(40)))
	body := opVec(vm, eval.OpSum, setForm, ref)
	lambda := opVec(vm, eval.OpLambda, body)
	form := opVec(vm, eval.OpCall, lambda, opVec(vm, eval.OpQuote, value.MakeFixnum(5)))

	result := eval.Eval(vm, form)
	assert.Equal(t, int32(80), result.Fixnum())
}

// requireEvalPanics runs f and asserts it panics with an error wrapping
// target, the way every fatal form error aborts.
func requireEvalPanics(t *testing.T, target error, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fatal panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
		assert.ErrorIs(t, err, target)
	}()
	f()
}

func TestEvalUnknownOpcodeIsFatal(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, 99, value.MakeFixnum(1))
	requireEvalPanics(t, eval.ErrMalformedForm, func() { eval.Eval(vm, form) })
}

func TestEvalWrongArityIsFatal(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpIf, opVec(vm, eval.OpQuote, value.True))
	requireEvalPanics(t, eval.ErrMalformedForm, func() { eval.Eval(vm, form) })
}

func TestEvalEnvRefPastChainIsFatal(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := vm.Cons(value.MakeFixnum(3), value.MakeFixnum(0))
	requireEvalPanics(t, eval.ErrMalformedForm, func() { eval.Eval(vm, form) })
}

func TestEvalCallOfNonFunctionIsFatal(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpCall, opVec(vm, eval.OpQuote, value.MakeFixnum(5)))
	requireEvalPanics(t, eval.ErrInvalidApply, func() { eval.Eval(vm, form) })
}

// TestEvalSumOverflowSubstitutesUnspecified checks the default
// FixnumOverflow policy: a sum pushed past FixnumMax logs a diagnostic
// (silently, with no logf sink installed here) and the form's value is
// Unspecified rather than a wrapped-around fixnum.
func TestEvalSumOverflowSubstitutesUnspecified(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpSum, value.MakeFixnum(value.FixnumMax), value.MakeFixnum(1))
	result := eval.Eval(vm, form)
	assert.True(t, result.IsUnspecified())
}

// TestEvalSumOverflowFatalAborts checks WithFatalOnOverflow: the same
// overflowing sum instead panics with ErrFixnumOverflow, the way
// HeapExhausted/HeapCorruption panic with a FatalError for an embedding
// caller to recover via internal/panicerr.
func TestEvalSumOverflowFatalAborts(t *testing.T) {
	vm := newTestVM(t, 4096)
	form := opVec(vm, eval.OpSum, value.MakeFixnum(value.FixnumMax), value.MakeFixnum(1))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
		assert.ErrorIs(t, err, eval.ErrFixnumOverflow)
	}()
	eval.Eval(vm, form, eval.WithFatalOnOverflow())
}

// TestTailCallChainDoesNotGrowHostStack builds a chain of depth zero-argument
// closures: closure k's body is a single call to a quote-embedded closure
// k-1, bottoming out at a closure that quotes 0. Because call pops its own
// stack frame before dispatching into the callee's body (it is a tail
// position, not a nested one), evaluating the head of the chain runs depth
// sequential dispatches in the same bounded Go stack space a single call
// would use, regardless of how deep the chain is.
func TestTailCallChainDoesNotGrowHostStack(t *testing.T) {
	vm := newTestVM(t, 1500000)

	const depth = 100000

	c := vm.RecMake(vm.FunctionType, opVec(vm, eval.OpQuote, value.MakeFixnum(0)), value.Nil)
	for i := 0; i < depth; i++ {
		next := vm.RecMake(vm.FunctionType, opVec(vm, eval.OpCall, opVec(vm, eval.OpQuote, c)), value.Nil)
		c = next
	}

	form := opVec(vm, eval.OpCall, opVec(vm, eval.OpQuote, c))
	result := eval.Eval(vm, form)
	assert.Equal(t, int32(0), result.Fixnum())
}

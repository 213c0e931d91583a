// Package eval implements the stack-free bootstrap evaluator: a small
// interpreter for a two-shape intermediate language (environment
// references and operation vectors) that never recurses in the host
// language, so no program it runs can overflow the Go call stack. All of
// its control state -- the expression being evaluated, the results
// accumulated so far, and the position within them -- lives in heap-
// allocated frames linked into an explicit stack instead.
package eval

import (
	"errors"
	"fmt"

	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/value"
)

// ErrFixnumOverflow is the error wrapped into a panic when WithFatalOnOverflow
// is set and an arithmetic primitive's result falls outside
// value.FixnumMin..value.FixnumMax. Recover it via internal/panicerr like any
// other fatal abort.
var ErrFixnumOverflow = errors.New("fixnum overflow")

// ErrMalformedForm and ErrInvalidApply are the two fatal form errors: an
// operation vector with an unknown opcode or wrong arity, an environment
// reference indexing past the environment chain, or a call/apply whose
// target is not a function. Both abort by panicking with a wrapping error,
// recoverable via internal/panicerr.
var (
	ErrMalformedForm = errors.New("malformed form")
	ErrInvalidApply  = errors.New("apply of a non-function")
)

// Option configures Eval's FixnumOverflow policy; evaluation semantics are
// otherwise fixed.
type Option func(*config)

type config struct {
	fatalOnOverflow bool
}

// WithFatalOnOverflow makes a FixnumOverflow abort the process (panicking
// with ErrFixnumOverflow, recoverable through internal/panicerr) instead of
// the default reference behavior: log a diagnostic and substitute
// Unspecified as the form's value.
func WithFatalOnOverflow() Option {
	return func(c *config) { c.fatalOnOverflow = true }
}

// Operation codes identifying a vector-shaped form. These are the literal
// integers a reader or compiler embeds in operation vectors' first slot;
// they have no meaning beyond indexing into the switch in Eval.
const (
	OpIf = iota
	OpLambda
	OpCall
	OpApply

	OpQuote
	OpSet

	OpSum
	OpMul
)

// Eval runs form to completion and returns its value. form is either:
//
//   - a pair (UP . N): an environment reference, looked up N+2 slots into
//     the environment frame UP levels up the chain from the current one;
//   - a vector [OP arg1 arg2 ...]: an operation, dispatched on OP;
//   - anything else: a self-evaluating literal.
//
// Nested evaluation (argument lists, lambda bodies entered via call/apply)
// reuses a single heap-resident stack of frames rather than the Go call
// stack, so arbitrarily deep or tail-recursive suo programs run in bounded
// Go stack space.
func Eval(vm *runtime.VM, form value.Value, opts ...Option) value.Value {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	var stack, env value.Value = value.Nil, value.Nil
	var topResult, topForm value.Value = value.Nil, value.Nil
	var result value.Value

	defer vm.Heap.Protect(&form, &stack, &env, &topResult, &topForm, &result)()

	// topResult starts as Nil: use_value's "stack empty" test is
	// topResult.IsNil(), and the sentinel frame must read that way until
	// the first push() gives it a real result vector.
	topForm = vm.VecMake(1, value.MakeFixnum(OpSum))
	topPos := 1
	topOp := OpSum

	push := func(nextForm value.Value, op int) {
		defer vm.Heap.Protect(&nextForm)()
		f := vm.Heap.VecAlloc(3)
		vm.Heap.VecSet(f, 0, topForm)
		vm.Heap.VecSet(f, 1, topResult)
		vm.Heap.VecSet(f, 2, value.MakeFixnum(int32(topPos)))
		stack = vm.Cons(f, stack)

		topForm = nextForm
		topResult = vm.VecMake(vm.Heap.VecLen(nextForm), value.Unspec)
		topOp = op
		topPos = 1
	}

	pop := func() {
		f := vm.Heap.PairCar(stack)
		topForm = vm.Heap.VecRef(f, 0)
		topResult = vm.Heap.VecRef(f, 1)
		topPos = int(vm.Heap.VecRef(f, 2).Fixnum())
		topOp = int(vm.Heap.VecRef(topForm, 0).Fixnum())
		stack = vm.Heap.PairCdr(stack)
	}

	const (
		stateEvalForm = iota
		stateDoOpStep
		stateUseValue
	)
	state := stateEvalForm

	for {
		switch state {
		case stateEvalForm:
			switch {
			case form.IsPair():
				result = envRef(vm, env, form)
				state = stateUseValue

			case form.IsVector():
				op := int(vm.Heap.VecRef(form, 0).Fixnum())
				checkArity(op, vm.Heap.VecLen(form))
				switch op {
				case OpQuote:
					result = vm.Heap.VecRef(form, 1)
					state = stateUseValue
				case OpLambda:
					result = vm.RecMake(vm.FunctionType, vm.Heap.VecRef(form, 1), env)
					state = stateUseValue
				default:
					push(form, op)
					state = stateDoOpStep
				}

			default:
				result = form
				state = stateUseValue
			}

		case stateDoOpStep:
			switch topOp {
			case OpIf:
				if topPos == 1 {
					form = vm.Heap.VecRef(topForm, topPos)
				} else {
					if vm.Heap.VecRef(topResult, 1).IsTruthy() {
						form = vm.Heap.VecRef(topForm, 2)
					} else {
						form = vm.Heap.VecRef(topForm, 3)
					}
					pop()
				}
				state = stateEvalForm

			case OpSet:
				if topPos == 1 {
					topPos = 2
					form = vm.Heap.VecRef(topForm, 2)
					state = stateEvalForm
				} else {
					result = vm.Heap.VecRef(topResult, 2)
					envSet(vm, env, vm.Heap.VecRef(topForm, 1), result)
					pop()
					state = stateUseValue
				}

			default:
				if topPos >= vm.Heap.VecLen(topForm) {
					switch topOp {
					case OpCall:
						fn := vm.Heap.VecRef(topResult, 1)
						checkFunction(vm, fn)
						form = vm.Heap.RecRef(fn, 0)
						env = vm.Cons(topResult, vm.Heap.RecRef(fn, 1))
						pop()
						state = stateEvalForm

					case OpApply:
						checkFunction(vm, vm.Heap.VecRef(topResult, 1))
						l := vm.Heap.VecLen(vm.Heap.VecRef(topResult, 2))
						frame := vm.Heap.VecAlloc(l + 2)
						// The allocation above may have moved everything;
						// re-read fn and the argument vector through the
						// rooted topResult rather than trusting locals.
						fn := vm.Heap.VecRef(topResult, 1)
						rest := vm.Heap.VecRef(topResult, 2)
						vm.Heap.VecSet(frame, 0, value.Unspec)
						vm.Heap.VecSet(frame, 1, fn)
						for i := 0; i < l; i++ {
							vm.Heap.VecSet(frame, i+2, vm.Heap.VecRef(rest, i))
						}
						form = vm.Heap.RecRef(fn, 0)
						env = vm.Heap.RecRef(fn, 1)
						env = vm.Cons(frame, env)
						pop()
						state = stateEvalForm

					default:
						result = applyPrimitive(vm, topOp, topResult, cfg)
						pop()
						state = stateUseValue
					}
				} else {
					form = vm.Heap.VecRef(topForm, topPos)
					state = stateEvalForm
				}
			}

		case stateUseValue:
			if topResult.IsNil() {
				return result
			}
			vm.Heap.VecSet(topResult, topPos, result)
			topPos++
			state = stateDoOpStep

		default:
			panic(fmt.Sprintf("eval: unreachable state %d", state))
		}
	}
}

// envFrame walks an environment reference (UP . N) down the chain and
// returns the frame vector it lands on along with the slot index N+2.
// A reference past the end of the chain or past the frame's width is a
// malformed form, which is fatal.
func envFrame(vm *runtime.VM, env, ref value.Value) (frame value.Value, slot int) {
	if !vm.Heap.PairCar(ref).IsFixnum() || !vm.Heap.PairCdr(ref).IsFixnum() {
		panic(fmt.Errorf("%w: environment reference is not a pair of small integers", ErrMalformedForm))
	}
	up := int(vm.Heap.PairCar(ref).Fixnum())
	n := int(vm.Heap.PairCdr(ref).Fixnum())
	f := env
	for ; up > 0; up-- {
		if !f.IsPair() {
			panic(fmt.Errorf("%w: environment reference walks past the chain", ErrMalformedForm))
		}
		f = vm.Heap.PairCdr(f)
	}
	if !f.IsPair() {
		panic(fmt.Errorf("%w: environment reference walks past the chain", ErrMalformedForm))
	}
	frame = vm.Heap.PairCar(f)
	slot = n + 2
	if n < 0 || slot >= vm.Heap.VecLen(frame) {
		panic(fmt.Errorf("%w: environment reference indexes past its frame", ErrMalformedForm))
	}
	return frame, slot
}

func envRef(vm *runtime.VM, env, ref value.Value) value.Value {
	frame, slot := envFrame(vm, env, ref)
	return vm.Heap.VecRef(frame, slot)
}

func envSet(vm *runtime.VM, env, ref, v value.Value) {
	if !ref.IsPair() {
		panic(fmt.Errorf("%w: set target is not an environment reference", ErrMalformedForm))
	}
	frame, slot := envFrame(vm, env, ref)
	vm.Heap.VecSet(frame, slot, v)
}

// checkArity validates an operation vector's length against its opcode
// before any of it is evaluated: quote/lambda take one argument, set two,
// if three, apply exactly two, call at least one, and sum/mul any number.
func checkArity(op, length int) {
	bad := false
	switch op {
	case OpQuote, OpLambda:
		bad = length != 2
	case OpIf:
		bad = length != 4
	case OpSet:
		bad = length != 3
	case OpCall:
		bad = length < 2
	case OpApply:
		bad = length != 3
	case OpSum, OpMul:
	default:
		panic(fmt.Errorf("%w: unknown opcode %d", ErrMalformedForm, op))
	}
	if bad {
		panic(fmt.Errorf("%w: wrong arity %d for opcode %d", ErrMalformedForm, length-1, op))
	}
}

// checkFunction validates a call/apply target: anything but a function
// record is fatal.
func checkFunction(vm *runtime.VM, fn value.Value) {
	if !fn.IsRecord() || vm.Heap.RecDesc(fn) != vm.FunctionType {
		panic(fmt.Errorf("%w: %s", ErrInvalidApply, fn))
	}
}

// applyPrimitive dispatches the operations whose arguments have all
// already been evaluated into vals[1:] (vals[0], the slot matching the
// form's opcode, is never written and is unused here). sum/mul accumulate
// in int64 so that a result outside FixnumMin..FixnumMax is caught as a
// FixnumOverflow rather than silently wrapping in int32 arithmetic.
func applyPrimitive(vm *runtime.VM, op int, vals value.Value, cfg config) value.Value {
	switch op {
	case OpSum:
		var sum int64
		for i := 1; i < vm.Heap.VecLen(vals); i++ {
			sum += int64(vm.Heap.VecRef(vals, i).Fixnum())
			if overflows(sum) {
				return fixnumOverflow(vm, cfg)
			}
		}
		return value.MakeFixnum(int32(sum))
	case OpMul:
		product := int64(1)
		for i := 1; i < vm.Heap.VecLen(vals); i++ {
			product *= int64(vm.Heap.VecRef(vals, i).Fixnum())
			if overflows(product) {
				return fixnumOverflow(vm, cfg)
			}
		}
		return value.MakeFixnum(int32(product))
	default:
		panic(fmt.Errorf("%w: opcode %d is not a primitive", ErrMalformedForm, op))
	}
}

func overflows(n int64) bool {
	return n < int64(value.FixnumMin) || n > int64(value.FixnumMax)
}

// fixnumOverflow applies the configured FixnumOverflow policy: the default
// reference behavior logs a diagnostic and substitutes Unspecified as the
// form's value, while WithFatalOnOverflow aborts the process.
func fixnumOverflow(vm *runtime.VM, cfg config) value.Value {
	if cfg.fatalOnOverflow {
		panic(fmt.Errorf("%w: result outside %d..%d", ErrFixnumOverflow, value.FixnumMin, value.FixnumMax))
	}
	vm.Logf("!", "fixnum overflow: result outside %d..%d, substituting unspecified", value.FixnumMin, value.FixnumMax)
	return value.Unspec
}

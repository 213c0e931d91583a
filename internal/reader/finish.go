package reader

import "github.com/carriercomm/suo/internal/value"

func finishOuter(r *Reader, x value.Value, n int, _ string) value.Value {
	if n != 1 {
		return value.Unspec
	}
	return r.vm.Heap.PairCar(x)
}

func finishList(r *Reader, x value.Value, n int, _ string) value.Value {
	return x
}

func finishVector(r *Reader, x value.Value, n int, _ string) value.Value {
	vm := r.vm
	defer vm.Heap.Protect(&x)()
	z := vm.Heap.VecAlloc(n)
	for i := 0; i < n; i++ {
		vm.Heap.VecSet(z, i, vm.Heap.PairCar(x))
		x = vm.Heap.PairCdr(x)
	}
	return z
}

func finishAbbrev(r *Reader, x value.Value, n int, tag string) value.Value {
	vm := r.vm
	defer vm.Heap.Protect(&x)()
	z := vm.Intern(tag)
	return vm.Cons(z, x)
}

// finishSharpList turns #(elements...) into the surface form
// (fn () (elements...)): a zero-parameter function literal whose body is
// the single form made of the elements, for a compiler front-end to lower
// into a lambda vector.
func finishSharpList(r *Reader, x value.Value, n int, _ string) value.Value {
	vm := r.vm
	defer vm.Heap.Protect(&x)()
	x = vm.Cons(x, value.Nil)
	x = vm.Cons(value.Nil, x)
	z := vm.Intern("fn")
	return vm.Cons(z, x)
}

func finishSharpVector(r *Reader, x value.Value, n int, _ string) value.Value {
	vm := r.vm
	defer vm.Heap.Protect(&x)()
	x = vm.Cons(x, value.Nil)
	z := vm.Intern("fn")
	return vm.Cons(z, x)
}

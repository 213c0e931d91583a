// Package panicerr converts the panics the suo runtime uses for fatal
// aborts (heap exhaustion, heap corruption, malformed forms) into ordinary
// returned errors at the embedding boundary.
package panicerr

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Recover runs f in a new goroutine whose deferred handlers turn any panic
// or runtime.Goexit into a non-nil returned error. The panic value and its
// stack are preserved: IsPanic and PanicStack recover them, and a panic
// value that was itself an error stays reachable through errors.Is/As.
func Recover(name string, f func() error) error {
	errch := make(chan error, 1)
	go func() {
		defer close(errch)

		// Ordering matters: an f that calls runtime.Goexit never reaches
		// the send below, so the outermost defer reports the exit -- unless
		// the inner recover already reported a panic.
		defer func() {
			select {
			case errch <- exitError(name):
			default:
			}
		}()
		defer func() {
			if e := recover(); e != nil {
				select {
				case errch <- panicError{name: name, value: e, stack: debug.Stack()}:
				default:
				}
			}
		}()

		errch <- f()
	}()
	return <-errch
}

// IsPanic returns true if err came from a recovered panic.
func IsPanic(err error) bool {
	var pe panicError
	return errors.As(err, &pe)
}

// PanicStack returns the recovered panic's stack trace, or "" if err did
// not come from one.
func PanicStack(err error) string {
	var pe panicError
	if errors.As(err, &pe) {
		return string(pe.stack)
	}
	return ""
}

type panicError struct {
	name  string
	value interface{}
	stack []byte
}

func (pe panicError) Error() string { return fmt.Sprint(pe) }

func (pe panicError) Format(f fmt.State, c rune) {
	if pe.name == "" {
		fmt.Fprintf(f, "paniced: %v", pe.value)
	} else {
		fmt.Fprintf(f, "%v paniced: %v", pe.name, pe.value)
	}
	if c == 'v' && f.Flag('+') {
		fmt.Fprintf(f, "\nPanic stack: %s", pe.stack)
	}
}

func (pe panicError) Unwrap() error {
	err, _ := pe.value.(error)
	return err
}

type exitError string

func (name exitError) Error() string {
	if name == "" {
		return "runtime.Goexit called"
	}
	return fmt.Sprintf("%v called runtime.Goexit", string(name))
}

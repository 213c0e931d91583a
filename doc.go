/* Package main: suo -- a stack-free bootstrap Lisp runtime

suo is a minimal bootstrap runtime for a Lisp-like language: a tagged-pointer
value representation, a two-space copying garbage collector that scans the
heap without any per-object type table, and an evaluator whose call stack
lives entirely on the managed heap so that arbitrarily deep (or arbitrarily
tail-recursive) user programs never grow the host Go call stack.

The runtime is split across internal packages, leaves first:

  - internal/value   the tag scheme distinguishing immediates from heap
                      references, and refining heap references by kind
  - internal/heap     the semispace allocator, object layout, and the
                      non-recursive Cheney-style copying collector
  - internal/runtime  constructors (cons, vec-make, rec-make, intern) that
                      thread root protection through every allocation site,
                      plus the bootstrap record types every value built on
                      top of the heap needs (strings, symbols, functions)
  - internal/eval     the stack-free evaluator: an explicit state machine
                      over a small compiled-form language (environment
                      references and operation vectors), with its control
                      stack held as heap-resident frames rather than Go
                      stack frames
  - internal/reader   a minimal S-expression reader sufficient to build the
                      forms the evaluator consumes; not a production reader
  - internal/writer   a non-recursive printer for the same value types

This command itself is a thin front-end: it wires a VM together from flags,
reads forms from its file arguments (or standard input), evaluates each in
turn, and prints the result.
*/
package main

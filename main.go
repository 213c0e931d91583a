package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/carriercomm/suo/internal/eval"
	"github.com/carriercomm/suo/internal/fileinput"
	"github.com/carriercomm/suo/internal/flushio"
	"github.com/carriercomm/suo/internal/heap"
	"github.com/carriercomm/suo/internal/logio"
	"github.com/carriercomm/suo/internal/panicerr"
	"github.com/carriercomm/suo/internal/reader"
	"github.com/carriercomm/suo/internal/runtime"
	"github.com/carriercomm/suo/internal/writer"
)

func main() {
	var log logio.Logger
	log.SetOutput(os.Stderr)
	if err := newRootCmd(&log).Execute(); err != nil {
		log.ErrorIf(err)
	}
	os.Exit(log.ExitCode())
}

func newRootCmd(log *logio.Logger) *cobra.Command {
	var (
		heapWords     int
		debugGC       bool
		checkHeap     bool
		fatalOverflow bool
		teePath       string
	)

	cmd := &cobra.Command{
		Use:   "suo [files...]",
		Short: "run suo bootstrap programs",
		Long: "suo reads compiled forms from its file arguments (or standard\n" +
			"input if none are given), evaluates each in turn with the bootstrap\n" +
			"evaluator, and prints the resulting value.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, log, options{
				heapWords:     heapWords,
				debugGC:       debugGC,
				checkHeap:     checkHeap,
				fatalOverflow: fatalOverflow,
				teePath:       teePath,
			})
		},
	}

	cmd.Flags().IntVar(&heapWords, "heap-words", 0, "semispace capacity in words (0 uses the reference default)")
	cmd.Flags().BoolVar(&debugGC, "debug-gc", false, "force a collection before every allocation")
	cmd.Flags().BoolVar(&checkHeap, "check-heap", false, "run the heap consistency checker around every collection")
	cmd.Flags().BoolVar(&fatalOverflow, "fatal-overflow", false, "abort on fixnum overflow instead of substituting an unspecified value")
	cmd.Flags().StringVar(&teePath, "tee", "", "also write evaluated results to the given file")

	return cmd
}

type options struct {
	heapWords     int
	debugGC       bool
	checkHeap     bool
	fatalOverflow bool
	teePath       string
}

// run builds a VM from the given flags and evaluates every form read from
// args (or stdin), recovering any fatal abort (HeapExhausted,
// HeapCorruption, MalformedForm, or a FixnumOverflow under
// --fatal-overflow) from the evaluator into a logged, non-zero exit rather
// than a raw Go panic reaching the user.
func run(cmd *cobra.Command, args []string, log *logio.Logger, opts options) error {
	hopts := []heap.Option{heap.WithDebugGC(opts.debugGC), heap.WithHeapCheck(opts.checkHeap)}
	if opts.heapWords > 0 {
		hopts = append(hopts, heap.WithCapacityWords(opts.heapWords))
	}

	logf := log.Leveledf("RUNTIME")
	vm := runtime.New(
		runtime.WithHeapOptions(hopts...),
		runtime.WithLogf(func(mark, mess string, args ...interface{}) {
			logf("[%s] "+mess, append([]interface{}{mark}, args...)...)
		}),
	)

	var evalOpts []eval.Option
	if opts.fatalOverflow {
		evalOpts = append(evalOpts, eval.WithFatalOnOverflow())
	}

	out := flushio.NewWriteFlusher(cmd.OutOrStdout())
	if opts.teePath != "" {
		f, err := os.Create(opts.teePath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = flushio.WriteFlushers(out, flushio.NewWriteFlusher(f))
	}

	err := panicerr.Recover("suo", func() error {
		vm.BootInit()
		return repl(vm, args, out, evalOpts...)
	})
	if stack := panicerr.PanicStack(err); stack != "" {
		log.Printf("DEBUG", "panic stack:\n%s", stack)
	}
	return err
}

// repl reads every form available from paths (or standard input, if paths
// is empty) through a single fileinput.Input so that read errors can be
// reported against a file name and line number, evaluates each, and writes
// its result.
func repl(vm *runtime.VM, paths []string, out flushio.WriteFlusher, evalOpts ...eval.Option) error {
	var in fileinput.Input

	if len(paths) == 0 {
		in.Queue = append(in.Queue, os.Stdin)
	} else {
		for _, path := range paths {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			in.Queue = append(in.Queue, f)
		}
	}

	r := reader.New(vm, &in)
	w := writer.New(vm, out)

	for {
		form := r.Read()
		if form.IsUnspecified() {
			return nil
		}
		if err := w.Write(eval.Eval(vm, form, evalOpts...)); err != nil {
			return err
		}
		if _, err := io.WriteString(out, "\n"); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
}

// Package main provides armjit, which runs a 32-bit ARM Linux ELF program on
// the JIT or on the reference interpreter.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/armjit/host"
	"github.com/sarchlab/armjit/jit"
	"github.com/sarchlab/armjit/loader"
)

var (
	interp      = flag.Bool("interp", false, "Run on the reference interpreter instead of the JIT")
	maxInstr    = flag.Uint64("max-instr", 0, "max instructions to execute (0 = unlimited)")
	slice       = flag.Uint64("slice", host.DefaultSliceLength, "instructions per engine run call")
	maxBlock    = flag.Int("max-block", jit.DefaultMaxBlockLength, "maximum instructions per translated block")
	verbosity   = flag.Int("v", 0, "log verbosity (1 = blocks, 2 = fallbacks and syscalls)")
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	showSummary = flag.Bool("stats", true, "print execution statistics")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: armjit [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	os.Exit(run(flag.Arg(0)))
}

func run(programPath string) int {
	log := newLogger(*verbosity)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		return 1
	}
	log.V(1).Info("loaded program", "path", programPath,
		"entry", fmt.Sprintf("0x%08x", prog.EntryPoint), "thumb", prog.Thumb,
		"segments", len(prog.Segments))

	opts := []host.MachineOption{
		host.WithLogger(log),
		host.WithStdin(os.Stdin),
		host.WithSliceLength(*slice),
		host.WithJitOptions(jit.WithMaxBlockLength(*maxBlock)),
	}
	if *interp {
		opts = append(opts, host.WithInterpreter())
	}

	machine := host.NewMachine(prog, opts...)
	defer machine.Close()

	start := time.Now()
	res, err := machine.Run(*maxInstr)
	elapsed := time.Since(start)

	if *showSummary {
		printSummary(machine, res, elapsed)
	}

	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, jit.ErrBreakpoint) {
			return 3
		}
		return 1
	case !res.Exited:
		fmt.Fprintf(os.Stderr, "Instruction limit reached\n")
		return 2
	default:
		return int(res.ExitCode)
	}
}

func printSummary(machine *host.Machine, res host.Result, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "\nExecution Results:\n")
	if res.Exited {
		fmt.Fprintf(os.Stderr, "Exit code: %d\n", res.ExitCode)
	}
	fmt.Fprintf(os.Stderr, "Instructions executed: %d\n", res.Executed)
	fmt.Fprintf(os.Stderr, "Elapsed time: %v\n", elapsed)
	if res.Executed > 0 && elapsed > 0 {
		fmt.Fprintf(os.Stderr, "Instructions/second: %.0f\n", float64(res.Executed)/elapsed.Seconds())
	}

	engine := machine.Engine()
	if engine == nil {
		return
	}
	stats := engine.Stats()
	fmt.Fprintf(os.Stderr, "Blocks compiled: %d (%d instructions)\n",
		stats.BlocksCompiled, stats.InstructionsCompiled)
	fmt.Fprintf(os.Stderr, "Interpreter fallbacks: %d\n", stats.Fallbacks)
	fmt.Fprintf(os.Stderr, "Cache hits/misses: %d/%d\n", stats.Cache.Hits, stats.Cache.Misses)
}

func newLogger(verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}

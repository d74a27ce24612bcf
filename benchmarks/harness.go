package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/armjit/host"
	"github.com/sarchlab/armjit/loader"
)

// ProgramAddr is where benchmark programs are loaded.
const ProgramAddr uint32 = 0x10000

// Engine names used in results.
const (
	EngineJIT         = "jit"
	EngineInterpreter = "interp"
)

// Benchmark is one guest program with a known exit status.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark exercises
	Description string

	// Thumb selects Thumb state at entry.
	Thumb bool

	// Program is the code loaded at ProgramAddr.
	Program []byte

	// ExpectedExit is the status the program passes to exit.
	ExpectedExit int32
}

// BenchmarkResult holds the results of one benchmark on one engine.
type BenchmarkResult struct {
	Name           string        `json:"name"`
	Engine         string        `json:"engine"`
	Instructions   uint64        `json:"instructions"`
	ExitCode       int32         `json:"exit_code"`
	ExpectedExit   int32         `json:"expected_exit"`
	BlocksCompiled uint64        `json:"blocks_compiled"`
	Fallbacks      uint64        `json:"fallbacks"`
	WallTime       time.Duration `json:"wall_time_ns"`
	Error          string        `json:"error,omitempty"`
}

// Passed reports whether the program exited with the expected status.
func (r BenchmarkResult) Passed() bool {
	return r.Error == "" && r.ExitCode == r.ExpectedExit
}

// HarnessConfig holds harness parameters.
type HarnessConfig struct {
	// Engines lists the engines to run: EngineJIT, EngineInterpreter.
	Engines []string

	// Repeat runs each benchmark this many times on a fresh machine and
	// reports the total wall time.
	Repeat int

	// MaxInstructions bounds each run.
	MaxInstructions uint64

	// Output is where results are printed.
	Output io.Writer
}

// DefaultConfig returns a harness configuration running both engines once.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Engines:         []string{EngineJIT, EngineInterpreter},
		Repeat:          1,
		MaxInstructions: 1_000_000,
		Output:          os.Stdout,
	}
}

// Harness runs benchmarks and collects results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Repeat <= 0 {
		config.Repeat = 1
	}
	return &Harness{config: config}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll runs every benchmark on every configured engine.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks)*len(h.config.Engines))
	for _, bench := range h.benchmarks {
		for _, engine := range h.config.Engines {
			results = append(results, h.runBenchmark(bench, engine))
		}
	}
	return results
}

func (h *Harness) runBenchmark(bench Benchmark, engine string) BenchmarkResult {
	result := BenchmarkResult{
		Name:         bench.Name,
		Engine:       engine,
		ExpectedExit: bench.ExpectedExit,
	}

	for i := 0; i < h.config.Repeat; i++ {
		m := NewMachine(bench, engine)

		start := time.Now()
		res, err := m.Run(h.config.MaxInstructions)
		result.WallTime += time.Since(start)
		m.Close()

		result.Instructions = res.Executed
		result.ExitCode = res.ExitCode
		if e := m.Engine(); e != nil {
			stats := e.Stats()
			result.BlocksCompiled = stats.BlocksCompiled
			result.Fallbacks = stats.Fallbacks
		}

		switch {
		case err != nil:
			result.Error = err.Error()
			return result
		case !res.Exited:
			result.Error = "instruction limit reached"
			return result
		}
	}

	return result
}

// NewMachine loads a benchmark into a fresh machine for the named engine.
func NewMachine(bench Benchmark, engine string, opts ...host.MachineOption) *host.Machine {
	prog := &loader.Program{
		EntryPoint: ProgramAddr,
		Thumb:      bench.Thumb,
		InitialSP:  loader.DefaultStackTop,
		Segments: []loader.Segment{{
			VirtAddr: ProgramAddr,
			Data:     bench.Program,
			MemSize:  uint32(len(bench.Program)),
			Flags:    loader.SegmentFlagRead | loader.SegmentFlagExecute,
		}},
	}
	if engine == EngineInterpreter {
		opts = append(opts, host.WithInterpreter())
	}
	return host.NewMachine(prog, append(opts, host.WithOutput(io.Discard, io.Discard))...)
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== armjit Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		status := "ok"
		if !r.Passed() {
			status = "FAIL"
		}
		_, _ = fmt.Fprintf(out, "Benchmark: %s [%s] %s\n", r.Name, r.Engine, status)
		_, _ = fmt.Fprintf(out, "  Exit Code:    %d (expected %d)\n", r.ExitCode, r.ExpectedExit)
		_, _ = fmt.Fprintf(out, "  Instructions: %d\n", r.Instructions)
		if r.Engine == EngineJIT {
			_, _ = fmt.Fprintf(out, "  Blocks:       %d\n", r.BlocksCompiled)
			_, _ = fmt.Fprintf(out, "  Fallbacks:    %d\n", r.Fallbacks)
		}
		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  Error:        %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(out, "  Wall Time:    %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,engine,instructions,blocks,fallbacks,wall_time_ns,exit_code,expected_exit")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Engine,
			r.Instructions,
			r.BlocksCompiled,
			r.Fallbacks,
			r.WallTime.Nanoseconds(),
			r.ExitCode,
			r.ExpectedExit,
		)
	}
}

// PrintJSON outputs benchmark results as indented JSON.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// Command benchmark runs the guest microbenchmarks on the JIT and on the
// reference interpreter.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv     Output results in CSV format (default: human-readable)
//	-json    Output results as JSON
//	-engine  Run only "jit" or "interp"
//	-repeat  Runs per benchmark
//	-core    Run the minimal core set only
//
// Example:
//
//	# Compare both engines
//	go run ./cmd/benchmark -repeat 100
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/armjit/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	engine := flag.String("engine", "", "Run only one engine: jit or interp")
	repeat := flag.Int("repeat", 1, "Runs per benchmark")
	core := flag.Bool("core", false, "Run the core benchmark set only")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.Repeat = *repeat
	config.Output = os.Stdout
	switch *engine {
	case "":
	case benchmarks.EngineJIT, benchmarks.EngineInterpreter:
		config.Engines = []string{*engine}
	default:
		fmt.Fprintf(os.Stderr, "Unknown engine %q\n", *engine)
		os.Exit(1)
	}

	harness := benchmarks.NewHarness(config)
	if *core {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		fmt.Println("armjit Benchmark Harness")
		fmt.Println("========================")
		fmt.Printf("Engines: %v, repeat: %d\n\n", config.Engines, config.Repeat)
		harness.PrintResults(results)
	}

	for _, r := range results {
		if !r.Passed() {
			os.Exit(1)
		}
	}
}

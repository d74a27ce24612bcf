// Package main provides fuzzjit, which runs differential campaigns between
// the JIT and the reference interpreter.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"golang.org/x/term"

	"github.com/sarchlab/armjit/fuzz"
)

var (
	configPath  = flag.String("config", "", "Path to campaign configuration (.json, .yaml or .yml)")
	saveConfig  = flag.String("save-config", "", "Write the effective configuration to this path and exit")
	set         = flag.String("set", "", "Instruction set: thumb1, thumb2 or arm")
	runs        = flag.Int("runs", 0, "Override the number of runs of every shape")
	workers     = flag.Int("workers", 0, "Number of parallel workers")
	seed        = flag.Uint64("seed", 0, "Base random seed (0 keeps the configured seed)")
	reportPath  = flag.String("report", "", "Also write a divergence report to this file")
	verbosity   = flag.Int("v", 0, "log verbosity")
	noHighlight = flag.Bool("no-color", false, "Disable highlighting in the divergence report")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	log := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: *verbosity})

	config, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *saveConfig != "" {
		if err := config.SaveConfig(*saveConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return runCampaign(ctx, config, log)
}

func buildConfig() (*fuzz.Config, error) {
	config := fuzz.DefaultConfig()
	if *configPath != "" {
		loaded, err := fuzz.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if *set != "" {
		if config.Set != *set {
			config.Shapes = nil
		}
		config.Set = *set
	}
	if *workers > 0 {
		config.Workers = *workers
	}
	if *seed != 0 {
		config.Seed = *seed
	}
	if *runs > 0 {
		shapes := config.ResolvedShapes()
		config.Shapes = make([]fuzz.Shape, len(shapes))
		for i, s := range shapes {
			s.Runs = *runs
			config.Shapes[i] = s
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func runCampaign(ctx context.Context, config *fuzz.Config, log logr.Logger) int {
	campaign := fuzz.NewCampaign(config, log)

	fmt.Printf("Campaign %s: set %s, seed %d, %d workers\n",
		campaign.ID, config.Set, config.Seed, config.Workers)
	for _, s := range config.ResolvedShapes() {
		fmt.Printf("  %-16s %5d instructions, execute %5d, %6d runs\n",
			s.Name, s.Instructions, s.Execute, s.Runs)
	}

	start := time.Now()
	divergence, err := campaign.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error after %d runs: %v\n", campaign.Completed(), err)
		return 1
	}

	if divergence == nil {
		fmt.Printf("Passed: %d runs in %v\n", campaign.Completed(), elapsed.Round(time.Millisecond))
		return 0
	}

	highlight := !*noHighlight && term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Printf("\nDivergence after %d runs:\n\n", campaign.Completed())
	divergence.Format(os.Stdout, highlight)

	if *reportPath != "" {
		if err := writeReport(*reportPath, divergence); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return 1
}

func writeReport(path string, d *fuzz.Divergence) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() { _ = f.Close() }()

	d.Format(f, false)
	return nil
}

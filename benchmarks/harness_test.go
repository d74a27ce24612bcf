package benchmarks_test

import (
	"bytes"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/benchmarks"
)

var _ = Describe("Microbenchmarks", func() {
	var results []benchmarks.BenchmarkResult

	BeforeEach(func() {
		config := benchmarks.DefaultConfig()
		config.Output = &bytes.Buffer{}
		h := benchmarks.NewHarness(config)
		h.AddBenchmarks(benchmarks.GetMicrobenchmarks())
		results = h.RunAll()
	})

	It("should run every benchmark on both engines", func() {
		Expect(results).To(HaveLen(2 * len(benchmarks.GetMicrobenchmarks())))
	})

	It("should exit with the expected status", func() {
		for _, r := range results {
			Expect(r.Error).To(BeEmpty(), "%s on %s", r.Name, r.Engine)
			Expect(r.ExitCode).To(Equal(r.ExpectedExit), "%s on %s", r.Name, r.Engine)
		}
	})

	It("should retire the same instructions on both engines", func() {
		for i := 0; i < len(results); i += 2 {
			jitResult, interpResult := results[i], results[i+1]
			Expect(jitResult.Engine).To(Equal(benchmarks.EngineJIT))
			Expect(interpResult.Engine).To(Equal(benchmarks.EngineInterpreter))
			Expect(jitResult.Instructions).To(Equal(interpResult.Instructions), jitResult.Name)
		}
	})

	It("should send MUL through the fallback", func() {
		for _, r := range results {
			if r.Name == "multiply_fallback" && r.Engine == benchmarks.EngineJIT {
				Expect(r.Fallbacks).To(Equal(uint64(1)))
			}
		}
	})
})

var _ = Describe("Harness", func() {
	var (
		out *bytes.Buffer
		h   *benchmarks.Harness
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		config := benchmarks.DefaultConfig()
		config.Engines = []string{benchmarks.EngineJIT}
		config.Output = out
		h = benchmarks.NewHarness(config)
		h.AddBenchmark(benchmarks.GetCoreBenchmarks()[0])
	})

	It("should report a program that never exits", func() {
		config := benchmarks.DefaultConfig()
		config.MaxInstructions = 50
		config.Output = out
		h = benchmarks.NewHarness(config)
		h.AddBenchmark(benchmarks.Benchmark{
			Name:    "spin",
			Thumb:   true,
			Program: benchmarks.BuildThumbProgram(0xE7FE),
		})

		results := h.RunAll()

		Expect(results[0].Passed()).To(BeFalse())
		Expect(results[0].Error).To(Equal("instruction limit reached"))
		Expect(results[0].Instructions).To(Equal(uint64(50)))
	})

	It("should print CSV", func() {
		h.PrintCSV(h.RunAll())

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[1]).To(HavePrefix("loop_simulation,jit,"))
		Expect(lines[1]).To(HaveSuffix(",45,45"))
	})

	It("should print JSON", func() {
		Expect(h.PrintJSON(h.RunAll())).To(Succeed())

		var decoded []benchmarks.BenchmarkResult
		Expect(json.Unmarshal(out.Bytes(), &decoded)).To(Succeed())
		Expect(decoded).To(HaveLen(1))
		Expect(decoded[0].ExitCode).To(Equal(int32(45)))
	})

	It("should print readable results", func() {
		h.PrintResults(h.RunAll())

		Expect(out.String()).To(ContainSubstring("Benchmark: loop_simulation [jit] ok"))
	})
})

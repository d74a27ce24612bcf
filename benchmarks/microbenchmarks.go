// Package benchmarks provides guest microbenchmarks and a harness that
// measures them on the JIT and on the reference interpreter.
package benchmarks

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each
// exercises a different part of the translator.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		loopSimulation(),
		hotLoop(),
		multiplyFallback(),
		thumbLoop(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		functionCalls(),
		thumbLoop(),
	}
}

// 20 independent ADDs across five registers.
func arithmeticSequential() Benchmark {
	instrs := make([]uint32, 0, 22)
	for i := 0; i < 20; i++ {
		r := uint8(i % 5)
		instrs = append(instrs, EncodeADDImm(r, r, 1, false))
	}
	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADD operations in one block",
		Program:      BuildProgram(append(instrs, exitSequence()...)...),
		ExpectedExit: 4,
	}
}

// A single register incremented 20 times.
func dependencyChain() Benchmark {
	instrs := make([]uint32, 0, 22)
	for i := 0; i < 20; i++ {
		instrs = append(instrs, EncodeADDImm(0, 0, 1, false))
	}
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDs (R0 = R0 + 1)",
		Program:      BuildProgram(append(instrs, exitSequence()...)...),
		ExpectedExit: 20,
	}
}

// Store/load pairs below the stack pointer.
func memorySequential() Benchmark {
	instrs := []uint32{
		EncodeSUBImm(1, 13, 64, false), // R1 = SP - 64
		EncodeMOVImm(0, 42),
	}
	for i := uint16(0); i < 10; i++ {
		instrs = append(instrs, EncodeSTR(0, 1, 4*i), EncodeLDR(0, 1, 4*i))
	}
	return Benchmark{
		Name:         "memory_sequential",
		Description:  "10 store/load pairs to sequential addresses",
		Program:      BuildProgram(append(instrs, exitSequence()...)...),
		ExpectedExit: 42,
	}
}

// Five BL/BX LR round trips to a one-instruction function.
func functionCalls() Benchmark {
	instrs := []uint32{EncodeMOVImm(0, 0)}
	// add_one lives at index 8.
	for i := int32(1); i <= 5; i++ {
		instrs = append(instrs, EncodeBL(8-i))
	}
	instrs = append(instrs, exitSequence()...)
	instrs = append(instrs, EncodeADDImm(0, 0, 1, false), EncodeBXLR())
	return Benchmark{
		Name:         "function_calls",
		Description:  "5 function calls (BL + BX LR pairs)",
		Program:      BuildProgram(instrs...),
		ExpectedExit: 5,
	}
}

// Sum of 0..9 with a compare-and-branch loop.
func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "10-iteration loop with CMP and BNE",
		Program: BuildProgram(
			EncodeMOVImm(0, 0),
			EncodeMOVImm(1, 0),
			EncodeADDReg(0, 0, 1), // loop:
			EncodeADDImm(1, 1, 1, false),
			EncodeCMPImm(1, 10),
			EncodeBcond(CondNE, -3),
			EncodeMOVImm(7, 1),
			EncodeSVC(0),
		),
		ExpectedExit: 45,
	}
}

// A 200-iteration countdown loop, dominated by cached block dispatch.
func hotLoop() Benchmark {
	return Benchmark{
		Name:        "hot_loop",
		Description: "200-iteration SUBS/BNE loop",
		Program: BuildProgram(
			EncodeMOVImm(0, 0),
			EncodeMOVImm(2, 200),
			EncodeADDImm(0, 0, 3, false), // loop:
			EncodeSUBImm(2, 2, 1, true),
			EncodeBcond(CondNE, -2),
			EncodeMOVImm(7, 1),
			EncodeSVC(0),
		),
		ExpectedExit: 600,
	}
}

// MUL runs through the interpreter fallback.
func multiplyFallback() Benchmark {
	return Benchmark{
		Name:        "multiply_fallback",
		Description: "MUL executed by the interpreter fallback",
		Program: BuildProgram(
			EncodeMOVImm(1, 7),
			EncodeMOVImm(2, 6),
			EncodeMUL(0, 1, 2),
			EncodeMOVImm(7, 1),
			EncodeSVC(0),
		),
		ExpectedExit: 42,
	}
}

// Sum of 1..10 in Thumb state.
func thumbLoop() Benchmark {
	return Benchmark{
		Name:        "thumb_loop",
		Description: "10-iteration Thumb ADDS/SUBS/BNE loop",
		Thumb:       true,
		Program: BuildThumbProgram(
			0x2000, // movs r0, #0
			0x210A, // movs r1, #10
			0x1840, // loop: adds r0, r0, r1
			0x3901, // subs r1, #1
			0xD1FC, // bne loop
			0x2701, // movs r7, #1
			0xDF00, // svc #0
		),
		ExpectedExit: 55,
	}
}

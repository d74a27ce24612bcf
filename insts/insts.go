// Package insts provides ARM and Thumb instruction definitions and decoding.
//
// This package decodes 16-bit Thumb and 32-bit ARM machine code into
// structured instruction representations shared by the JIT emitter and the
// diagnostics tools. It supports:
//   - Thumb-1 (ARMv6): every format, including BL/BLX halves, CPS and SETEND
//   - ARM data processing, multiplies, single, extra and block transfers
//   - Branches: B, BL, BLX (immediate and register), BX
//   - System: SVC, BKPT, UDF, CPS, SETEND, MRS, MSR
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.DecodeThumb(0, 0x1CC8) // ADDS R0, R1, #3
//	fmt.Printf("Op: %v, Rd: %d, Rn: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rn, inst.Operand.Imm)
package insts

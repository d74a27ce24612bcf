package jit

import (
	"math/bits"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/insts"
)

// operandFunc produces the flexible second operand and the shifter carry.
type operandFunc func(j *Jit) (value uint32, carry bool)

// aluFunc computes a data-processing result. c and v are the incoming
// flags; logical operations return the shifter carry instead.
type aluFunc func(a, b uint32, c, shifterCarry, v bool) (result uint32, carry, overflow bool)

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func add(a, b, cin uint32) (uint32, bool, bool) {
	r, c := bits.Add32(a, b, cin)
	return r, c != 0, ((a^r)&(b^r))>>31 != 0
}

func sub(a, b, borrow uint32) (uint32, bool, bool) {
	r, out := bits.Sub32(a, b, borrow)
	return r, out == 0, ((a^b)&(a^r))>>31 != 0
}

var aluFuncs = map[insts.Op]aluFunc{
	insts.OpAND: func(a, b uint32, _, sc, v bool) (uint32, bool, bool) { return a & b, sc, v },
	insts.OpEOR: func(a, b uint32, _, sc, v bool) (uint32, bool, bool) { return a ^ b, sc, v },
	insts.OpSUB: func(a, b uint32, _, _, _ bool) (uint32, bool, bool) { return sub(a, b, 0) },
	insts.OpRSB: func(a, b uint32, _, _, _ bool) (uint32, bool, bool) { return sub(b, a, 0) },
	insts.OpADD: func(a, b uint32, _, _, _ bool) (uint32, bool, bool) { return add(a, b, 0) },
	insts.OpADC: func(a, b uint32, c, _, _ bool) (uint32, bool, bool) { return add(a, b, b2u(c)) },
	insts.OpSBC: func(a, b uint32, c, _, _ bool) (uint32, bool, bool) { return sub(a, b, 1-b2u(c)) },
	insts.OpRSC: func(a, b uint32, c, _, _ bool) (uint32, bool, bool) { return sub(b, a, 1-b2u(c)) },
	insts.OpTST: func(a, b uint32, _, sc, v bool) (uint32, bool, bool) { return a & b, sc, v },
	insts.OpTEQ: func(a, b uint32, _, sc, v bool) (uint32, bool, bool) { return a ^ b, sc, v },
	insts.OpCMP: func(a, b uint32, _, _, _ bool) (uint32, bool, bool) { return sub(a, b, 0) },
	insts.OpCMN: func(a, b uint32, _, _, _ bool) (uint32, bool, bool) { return add(a, b, 0) },
	insts.OpORR: func(a, b uint32, _, sc, v bool) (uint32, bool, bool) { return a | b, sc, v },
	insts.OpMOV: func(_, b uint32, _, sc, v bool) (uint32, bool, bool) { return b, sc, v },
	insts.OpBIC: func(a, b uint32, _, sc, v bool) (uint32, bool, bool) { return a &^ b, sc, v },
	insts.OpMVN: func(_, b uint32, _, sc, v bool) (uint32, bool, bool) { return ^b, sc, v },
}

// shiftImmediate applies a normalized immediate shift (see insts.Operand).
func shiftImmediate(value uint32, shift insts.ShiftType, amount uint8, carry bool) (uint32, bool) {
	switch shift {
	case insts.ShiftLSL:
		if amount == 0 {
			return value, carry
		}
		return value << amount, value&(1<<(32-amount)) != 0
	case insts.ShiftLSR:
		if amount == 32 {
			return 0, value&0x80000000 != 0
		}
		return value >> amount, value&(1<<(amount-1)) != 0
	case insts.ShiftASR:
		if amount == 32 {
			sign := uint32(int32(value) >> 31)
			return sign, sign != 0
		}
		return uint32(int32(value) >> amount), value&(1<<(amount-1)) != 0
	case insts.ShiftROR:
		return bits.RotateLeft32(value, -int(amount)), value&(1<<(amount-1)) != 0
	default: // RRX
		return value>>1 | b2u(carry)<<31, value&1 != 0
	}
}

// shiftRegister applies a shift by the bottom byte of a register.
func shiftRegister(value uint32, shift insts.ShiftType, amount uint32, carry bool) (uint32, bool) {
	amount &= 0xFF
	switch {
	case amount == 0:
		return value, carry
	case amount < 32:
		return shiftImmediate(value, shift, uint8(amount), carry)
	}

	switch shift {
	case insts.ShiftLSL:
		if amount == 32 {
			return 0, value&1 != 0
		}
		return 0, false
	case insts.ShiftLSR:
		if amount == 32 {
			return 0, value&0x80000000 != 0
		}
		return 0, false
	case insts.ShiftASR:
		sign := uint32(int32(value) >> 31)
		return sign, sign != 0
	default: // ROR
		if rot := amount & 31; rot != 0 {
			return shiftImmediate(value, insts.ShiftROR, uint8(rot), carry)
		}
		return value, value&0x80000000 != 0
	}
}

// operand compiles the flexible second operand of inst.
func (e *Emitter) operand(inst *insts.Instruction) operandFunc {
	opnd := inst.Operand
	pc := inst.PCValue()

	switch opnd.Kind {
	case insts.OperandImm:
		imm := opnd.Imm
		if opnd.Rotated {
			carry := imm&0x80000000 != 0
			return func(*Jit) (uint32, bool) { return imm, carry }
		}
		return func(j *Jit) (uint32, bool) { return imm, j.regs.CPSR.C }
	case insts.OperandRegShift:
		return func(j *Jit) (uint32, bool) {
			return shiftRegister(j.reg(opnd.Rm, pc), opnd.Shift, j.reg(opnd.Rs, pc), j.regs.CPSR.C)
		}
	default:
		if opnd.Shift == insts.ShiftLSL && opnd.Amount == 0 {
			return func(j *Jit) (uint32, bool) { return j.reg(opnd.Rm, pc), j.regs.CPSR.C }
		}
		return func(j *Jit) (uint32, bool) {
			return shiftImmediate(j.reg(opnd.Rm, pc), opnd.Shift, opnd.Amount, j.regs.CPSR.C)
		}
	}
}

// dataProcessing compiles the 16 data-processing operations and ADR.
func (e *Emitter) dataProcessing(inst *insts.Instruction, mode cpu.Mode) op {
	rd, rn := inst.Rd, inst.Rn
	next := inst.Next()
	pc := inst.PCValue()

	if inst.Op == insts.OpADR {
		value := pc&^3 + inst.Operand.Imm
		return func(j *Jit) status {
			j.regs.R[rd] = value
			j.regs.R[cpu.PC] = next
			return statusNext
		}
	}

	alu := aluFuncs[inst.Op]
	operand := e.operand(inst)
	setFlags := inst.SetFlags || inst.Op.IsCompare()
	writes := !inst.Op.IsCompare()
	thumb := mode.Thumb

	return func(j *Jit) status {
		psr := &j.regs.CPSR
		b, shifterCarry := operand(j)
		result, c, v := alu(j.reg(rn, pc), b, psr.C, shifterCarry, psr.V)

		if writes && rd == cpu.PC {
			j.regs.R[cpu.PC] = cpu.AlignPC(result, thumb)
			return statusExit
		}
		if setFlags {
			psr.N = result&0x80000000 != 0
			psr.Z = result == 0
			psr.C = c
			psr.V = v
		}
		if writes {
			j.regs.R[rd] = result
		}
		j.regs.R[cpu.PC] = next
		return statusNext
	}
}

// multiply compiles MUL. The flag-setting form sets N and Z only.
func (e *Emitter) multiply(inst *insts.Instruction) op {
	rd, rm, rs, rn := inst.Rd, inst.Rm, inst.Rs, inst.Rn
	accumulate := inst.Op == insts.OpMLA
	setFlags := inst.SetFlags
	next := inst.Next()

	return func(j *Jit) status {
		result := j.regs.R[rm] * j.regs.R[rs]
		if accumulate {
			result += j.regs.R[rn]
		}
		j.regs.R[rd] = result
		if setFlags {
			j.regs.CPSR.N = result&0x80000000 != 0
			j.regs.CPSR.Z = result == 0
		}
		j.regs.R[cpu.PC] = next
		return statusNext
	}
}

// extend compiles the sign/zero extensions and byte reversals.
func (e *Emitter) extend(inst *insts.Instruction) op {
	rd, rm := inst.Rd, inst.Rm
	next := inst.Next()

	var f func(uint32) uint32
	switch inst.Op {
	case insts.OpSXTH:
		f = func(v uint32) uint32 { return uint32(int32(int16(v))) }
	case insts.OpSXTB:
		f = func(v uint32) uint32 { return uint32(int32(int8(v))) }
	case insts.OpUXTH:
		f = func(v uint32) uint32 { return v & 0xFFFF }
	case insts.OpUXTB:
		f = func(v uint32) uint32 { return v & 0xFF }
	case insts.OpREV:
		f = bits.ReverseBytes32
	case insts.OpREV16:
		f = func(v uint32) uint32 {
			return uint32(bits.ReverseBytes16(uint16(v>>16)))<<16 | uint32(bits.ReverseBytes16(uint16(v)))
		}
	default: // REVSH
		f = func(v uint32) uint32 { return uint32(int32(int16(bits.ReverseBytes16(uint16(v))))) }
	}

	return func(j *Jit) status {
		j.regs.R[rd] = f(j.regs.R[rm])
		j.regs.R[cpu.PC] = next
		return statusNext
	}
}

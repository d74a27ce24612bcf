package emu

import "github.com/sarchlab/armjit/cpu"

// Shift types as encoded in bits [6:5] of a shifted register operand.
const (
	shiftLSL = 0b00
	shiftLSR = 0b01
	shiftASR = 0b10
	shiftROR = 0b11
)

// Data-processing opcodes.
const (
	opAND = 0x0
	opEOR = 0x1
	opSUB = 0x2
	opRSB = 0x3
	opADD = 0x4
	opADC = 0x5
	opSBC = 0x6
	opRSC = 0x7
	opTST = 0x8
	opTEQ = 0x9
	opCMP = 0xA
	opCMN = 0xB
	opORR = 0xC
	opMOV = 0xD
	opBIC = 0xE
	opMVN = 0xF
)

// addWithCarry returns x + y + carry along with the carry-out and signed
// overflow, computed in 64-bit arithmetic.
func addWithCarry(x, y uint32, carry bool) (result uint32, carryOut, overflow bool) {
	var c uint64
	if carry {
		c = 1
	}
	unsigned := uint64(x) + uint64(y) + c
	signed := int64(int32(x)) + int64(int32(y)) + int64(c)
	result = uint32(unsigned)
	return result, uint64(result) != unsigned, int64(int32(result)) != signed
}

// shiftByImmediate applies an immediate shift encoded as in ARM and Thumb:
// LSR #0 and ASR #0 mean a shift of 32 and ROR #0 means RRX. LSL #0 leaves
// both the value and the carry unchanged.
func shiftByImmediate(value uint32, typ, amount uint32, carry bool) (uint32, bool) {
	if amount == 0 {
		switch typ {
		case shiftLSL:
			return value, carry
		case shiftROR:
			var in uint32
			if carry {
				in = 0x80000000
			}
			return value>>1 | in, value&1 != 0
		}
		amount = 32
	}
	return shiftByRegister(value, typ, amount, carry)
}

// shiftByRegister applies a shift whose amount comes from the bottom byte
// of a register. An amount of zero leaves the value and carry unchanged.
func shiftByRegister(value uint32, typ, amount uint32, carry bool) (uint32, bool) {
	amount &= 0xFF
	if amount == 0 {
		return value, carry
	}

	switch typ {
	case shiftLSL:
		switch {
		case amount < 32:
			return value << amount, (value>>(32-amount))&1 != 0
		case amount == 32:
			return 0, value&1 != 0
		default:
			return 0, false
		}
	case shiftLSR:
		switch {
		case amount < 32:
			return value >> amount, (value>>(amount-1))&1 != 0
		case amount == 32:
			return 0, value&0x80000000 != 0
		default:
			return 0, false
		}
	case shiftASR:
		if amount >= 32 {
			if value&0x80000000 != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(value) >> amount), (value>>(amount-1))&1 != 0
	default:
		rot := amount & 31
		if rot == 0 {
			return value, value&0x80000000 != 0
		}
		result := value>>rot | value<<(32-rot)
		return result, result&0x80000000 != 0
	}
}

// dataProcessing executes one of the 16 data-processing operations with
// operands a (Rn) and b (the shifted second operand). shifterCarry is the
// carry produced by the shifter, used by the logical operations.
//
// It reports whether PC was written. A write to PC is a plain branch: it
// never changes state and never updates the flags.
func (i *Interpreter) dataProcessing(opcode, rd uint32, setFlags bool, a, b uint32, shifterCarry bool) bool {
	psr := &i.regFile.CPSR
	result := uint32(0)
	carry, overflow := shifterCarry, psr.V

	switch opcode {
	case opAND, opTST:
		result = a & b
	case opEOR, opTEQ:
		result = a ^ b
	case opSUB, opCMP:
		result, carry, overflow = addWithCarry(a, ^b, true)
	case opRSB:
		result, carry, overflow = addWithCarry(b, ^a, true)
	case opADD, opCMN:
		result, carry, overflow = addWithCarry(a, b, false)
	case opADC:
		result, carry, overflow = addWithCarry(a, b, psr.C)
	case opSBC:
		result, carry, overflow = addWithCarry(a, ^b, psr.C)
	case opRSC:
		result, carry, overflow = addWithCarry(b, ^a, psr.C)
	case opORR:
		result = a | b
	case opMOV:
		result = b
	case opBIC:
		result = a &^ b
	case opMVN:
		result = ^b
	}

	compare := opcode >= opTST && opcode <= opCMN
	if !compare && rd == cpu.PC {
		i.regFile.R[cpu.PC] = cpu.AlignPC(result, psr.T)
		return true
	}

	if setFlags || compare {
		psr.SetNZ(result)
		psr.C = carry
		psr.V = overflow
	}
	if !compare {
		i.regFile.R[rd] = result
	}
	return false
}

// multiply executes MUL (accumulate false) or MLA. The S form sets N and Z
// and leaves C and V unchanged.
func (i *Interpreter) multiply(rd uint32, setFlags bool, rm, rs, acc uint32) bool {
	result := rm*rs + acc
	if rd == cpu.PC {
		i.regFile.R[cpu.PC] = cpu.AlignPC(result, i.regFile.CPSR.T)
		return true
	}
	i.regFile.R[rd] = result
	if setFlags {
		i.regFile.CPSR.SetNZ(result)
	}
	return false
}

func swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

func swap32(v uint32) uint32 {
	return v<<24 | (v<<8)&0x00FF0000 | (v>>8)&0x0000FF00 | v>>24
}

func signExtend(value uint32, bits uint) uint32 {
	shift := 32 - bits
	return uint32(int32(value<<shift) >> shift)
}

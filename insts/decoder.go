// Package insts provides ARM and Thumb instruction definitions and decoding.
package insts

import "github.com/sarchlab/armjit/cpu"

// Decoder decodes ARM and Thumb machine code into instructions.
// Decoding is pure; it never reads registers or memory.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes the encoding at addr in the given mode. For Thumb only the
// low 16 bits of raw are used.
func (d *Decoder) Decode(addr, raw uint32, thumb bool) *Instruction {
	if thumb {
		return d.DecodeThumb(addr, uint16(raw))
	}
	return d.DecodeARM(addr, raw)
}

func newInstruction(addr, raw uint32, thumb bool) *Instruction {
	inst := &Instruction{
		Addr:  addr,
		Raw:   raw,
		Thumb: thumb,
		Size:  4,
		Op:    OpUnknown,
		Cond:  cpu.CondAL,
	}
	if thumb {
		inst.Size = 2
	}
	return inst
}

// regOperand builds a plain register operand.
func regOperand(rm uint8) Operand {
	return Operand{Kind: OperandReg, Rm: rm, Shift: ShiftLSL}
}

// immOperand builds an unrotated immediate operand.
func immOperand(imm uint32) Operand {
	return Operand{Kind: OperandImm, Imm: imm}
}

// shiftedOperand builds a register operand shifted by an encoded immediate,
// normalizing the ARM zero-amount special cases.
func shiftedOperand(rm uint8, shift ShiftType, amount uint8) Operand {
	op := Operand{Kind: OperandReg, Rm: rm, Shift: shift, Amount: amount}
	if amount == 0 {
		switch shift {
		case ShiftLSR, ShiftASR:
			op.Amount = 32
		case ShiftROR:
			op.Shift = ShiftRRX
		}
	}
	return op
}

func signExtend(value uint32, bits uint) uint32 {
	shift := 32 - bits
	return uint32(int32(value<<shift) >> shift)
}

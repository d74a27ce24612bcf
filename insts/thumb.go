// Package insts provides ARM and Thumb instruction definitions and decoding.
package insts

import (
	"math/bits"

	"github.com/sarchlab/armjit/cpu"
)

// thumbShifts maps the shift-by-register ALU opcodes to shift types.
var thumbShifts = [16]ShiftType{0x2: ShiftLSL, 0x3: ShiftLSR, 0x4: ShiftASR, 0x7: ShiftROR}

// DecodeThumb decodes a 16-bit Thumb encoding (ARMv6 Thumb-1).
func (d *Decoder) DecodeThumb(addr uint32, op uint16) *Instruction {
	inst := newInstruction(addr, uint32(op), true)
	w := uint32(op)

	switch {
	case w&0xF800 == 0x1800:
		d.decodeThumbAddSub(w, inst)
	case w&0xE000 == 0x0000:
		d.decodeThumbShiftImm(w, inst)
	case w&0xE000 == 0x2000:
		d.decodeThumbImm8(w, inst)
	case w&0xFC00 == 0x4000:
		d.decodeThumbALU(w, inst)
	case w&0xFC00 == 0x4400:
		d.decodeThumbHiReg(w, inst)
	case w&0xF800 == 0x4800:
		d.decodeThumbLiteral(w, inst)
	case w&0xF000 == 0x5000:
		d.decodeThumbRegOffset(w, inst)
	case w&0xE000 == 0x6000:
		d.decodeThumbImmOffset(w, inst)
	case w&0xF000 == 0x8000:
		d.decodeThumbHalfImm(w, inst)
	case w&0xF000 == 0x9000:
		d.decodeThumbSPRelative(w, inst)
	case w&0xF000 == 0xA000:
		d.decodeThumbAddress(w, inst)
	case w&0xF000 == 0xB000:
		d.decodeThumbMisc(w, inst)
	case w&0xF000 == 0xC000:
		d.decodeThumbMultiple(w, inst)
	case w&0xF000 == 0xD000:
		d.decodeThumbCondBranch(w, inst)
	case w&0xF800 == 0xE000:
		d.decodeThumbBranch(w, inst)
	default:
		d.decodeThumbLongBranch(w, inst)
	}

	return inst
}

// decodeThumbShiftImm decodes LSL/LSR/ASR with a 5-bit immediate.
// Format: 000 | op(2) | imm5 | Rm | Rd
func (d *Decoder) decodeThumbShiftImm(w uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.Op = OpMOV
	inst.SetFlags = true
	inst.Rd = uint8(w & 0x7)
	inst.Operand = shiftedOperand(uint8((w>>3)&0x7), ShiftType((w>>11)&0x3), uint8((w>>6)&0x1F))
}

// decodeThumbAddSub decodes ADD/SUB with a register or 3-bit immediate.
// Format: 00011 | I | op | Rm/imm3 | Rn | Rd
func (d *Decoder) decodeThumbAddSub(w uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.SetFlags = true
	inst.Rd = uint8(w & 0x7)
	inst.Rn = uint8((w >> 3) & 0x7)
	field := (w >> 6) & 0x7

	if w&0x0400 != 0 {
		inst.Operand = immOperand(field)
	} else {
		inst.Operand = regOperand(uint8(field))
	}

	if w&0x0200 != 0 {
		inst.Op = OpSUB
	} else {
		inst.Op = OpADD
	}
}

// decodeThumbImm8 decodes MOV/CMP/ADD/SUB with an 8-bit immediate.
// Format: 001 | op(2) | Rdn | imm8
func (d *Decoder) decodeThumbImm8(w uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.SetFlags = true
	rdn := uint8((w >> 8) & 0x7)
	inst.Rd = rdn
	inst.Rn = rdn
	inst.Operand = immOperand(w & 0xFF)

	switch (w >> 11) & 0x3 {
	case 0b00:
		inst.Op = OpMOV
	case 0b01:
		inst.Op = OpCMP
	case 0b10:
		inst.Op = OpADD
	case 0b11:
		inst.Op = OpSUB
	}
}

// decodeThumbALU decodes the register data-processing group.
// Format: 010000 | op(4) | Rm | Rdn
func (d *Decoder) decodeThumbALU(w uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.SetFlags = true
	rdn := uint8(w & 0x7)
	rm := uint8((w >> 3) & 0x7)
	inst.Rd = rdn
	inst.Rn = rdn
	inst.Operand = regOperand(rm)

	switch (w >> 6) & 0xF {
	case 0x0:
		inst.Op = OpAND
	case 0x1:
		inst.Op = OpEOR
	case 0x2, 0x3, 0x4, 0x7:
		inst.Op = OpMOV
		inst.Operand = Operand{Kind: OperandRegShift, Rm: rdn, Shift: thumbShifts[(w>>6)&0xF], Rs: rm}
	case 0x5:
		inst.Op = OpADC
	case 0x6:
		inst.Op = OpSBC
	case 0x8:
		inst.Op = OpTST
	case 0x9:
		inst.Op = OpRSB
		inst.Rn = rm
		inst.Operand = immOperand(0)
	case 0xA:
		inst.Op = OpCMP
	case 0xB:
		inst.Op = OpCMN
	case 0xC:
		inst.Op = OpORR
	case 0xD:
		inst.Format = FormatMultiply
		inst.Op = OpMUL
		inst.Rm = rm
		inst.Rs = rdn
		inst.Operand = Operand{}
	case 0xE:
		inst.Op = OpBIC
	case 0xF:
		inst.Op = OpMVN
	}
}

// decodeThumbHiReg decodes high-register ADD/CMP/MOV and BX/BLX.
// Format: 010001 | op(2) | H1 | H2 | Rm | Rd
func (d *Decoder) decodeThumbHiReg(w uint32, inst *Instruction) {
	h1 := (w >> 7) & 0x1
	h2 := (w >> 6) & 0x1
	rd := uint8(h1<<3 | w&0x7)
	rm := uint8(h2<<3 | (w>>3)&0x7)

	switch (w >> 8) & 0x3 {
	case 0b00:
		inst.Format = FormatDataProc
		inst.Op = OpADD
		inst.Rd = rd
		inst.Rn = rd
		inst.Operand = regOperand(rm)
		if h1 == 0 && h2 == 0 {
			inst.unpredictable("high register ADD with two low registers")
		}
	case 0b01:
		inst.Format = FormatDataProc
		inst.Op = OpCMP
		inst.SetFlags = true
		inst.Rn = rd
		inst.Operand = regOperand(rm)
		if h1 == 0 && h2 == 0 {
			inst.unpredictable("high register CMP with two low registers")
		}
		if rd == cpu.PC || rm == cpu.PC {
			inst.unpredictable("high register CMP with PC operand")
		}
	case 0b10:
		inst.Format = FormatDataProc
		inst.Op = OpMOV
		inst.Rd = rd
		inst.Operand = regOperand(rm)
		if h1 == 0 && h2 == 0 {
			inst.unpredictable("high register MOV with two low registers")
		}
	case 0b11:
		inst.Format = FormatBranchReg
		inst.Rm = rm
		if h1 == 1 {
			inst.Op = OpBLX
		} else {
			inst.Op = OpBX
		}
		if rm == cpu.PC {
			inst.unpredictable("branch exchange to PC")
		}
		if w&0x7 != 0 {
			inst.unpredictable("branch exchange with non-zero SBZ bits")
		}
	}
}

// decodeThumbLiteral decodes LDR Rd, [PC, #imm8*4].
func (d *Decoder) decodeThumbLiteral(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Op = OpLDR
	inst.Width = 4
	inst.Rd = uint8((w >> 8) & 0x7)
	inst.Rn = cpu.PC
	inst.Literal = true
	inst.PreIndex = true
	inst.Up = true
	inst.Operand = immOperand((w & 0xFF) << 2)
}

// decodeThumbRegOffset decodes loads/stores with a register offset.
// Format: 0101 | op(3) | Rm | Rn | Rd
func (d *Decoder) decodeThumbRegOffset(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Rd = uint8(w & 0x7)
	inst.Rn = uint8((w >> 3) & 0x7)
	inst.Operand = regOperand(uint8((w >> 6) & 0x7))
	inst.PreIndex = true
	inst.Up = true

	switch (w >> 9) & 0x7 {
	case 0b000:
		inst.Op, inst.Width = OpSTR, 4
	case 0b001:
		inst.Op, inst.Width = OpSTR, 2
	case 0b010:
		inst.Op, inst.Width = OpSTR, 1
	case 0b011:
		inst.Op, inst.Width, inst.Signed = OpLDR, 1, true
	case 0b100:
		inst.Op, inst.Width = OpLDR, 4
	case 0b101:
		inst.Op, inst.Width = OpLDR, 2
	case 0b110:
		inst.Op, inst.Width = OpLDR, 1
	case 0b111:
		inst.Op, inst.Width, inst.Signed = OpLDR, 2, true
	}
}

// decodeThumbImmOffset decodes word and byte loads/stores with imm5.
// Format: 011 | B | L | imm5 | Rn | Rd
func (d *Decoder) decodeThumbImmOffset(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Rd = uint8(w & 0x7)
	inst.Rn = uint8((w >> 3) & 0x7)
	inst.PreIndex = true
	inst.Up = true
	imm := (w >> 6) & 0x1F

	if w&0x1000 != 0 {
		inst.Width = 1
		inst.Operand = immOperand(imm)
	} else {
		inst.Width = 4
		inst.Operand = immOperand(imm << 2)
	}

	if w&0x0800 != 0 {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}
}

// decodeThumbHalfImm decodes LDRH/STRH with imm5*2.
// Format: 1000 | L | imm5 | Rn | Rd
func (d *Decoder) decodeThumbHalfImm(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Width = 2
	inst.Rd = uint8(w & 0x7)
	inst.Rn = uint8((w >> 3) & 0x7)
	inst.PreIndex = true
	inst.Up = true
	inst.Operand = immOperand(((w >> 6) & 0x1F) << 1)

	if w&0x0800 != 0 {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}
}

// decodeThumbSPRelative decodes LDR/STR Rd, [SP, #imm8*4].
func (d *Decoder) decodeThumbSPRelative(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Width = 4
	inst.Rd = uint8((w >> 8) & 0x7)
	inst.Rn = cpu.SP
	inst.PreIndex = true
	inst.Up = true
	inst.Operand = immOperand((w & 0xFF) << 2)

	if w&0x0800 != 0 {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}
}

// decodeThumbAddress decodes ADR and ADD Rd, SP, #imm8*4.
func (d *Decoder) decodeThumbAddress(w uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.Rd = uint8((w >> 8) & 0x7)
	inst.Operand = immOperand((w & 0xFF) << 2)

	if w&0x0800 != 0 {
		inst.Op = OpADD
		inst.Rn = cpu.SP
	} else {
		inst.Op = OpADR
		inst.Rn = cpu.PC
	}
}

// decodeThumbMisc decodes the 1011 group: SP adjust, extends, PUSH/POP,
// byte reversal, CPS, SETEND and BKPT.
func (d *Decoder) decodeThumbMisc(w uint32, inst *Instruction) {
	switch {
	case w&0xFF00 == 0xB000:
		inst.Format = FormatDataProc
		inst.Rd = cpu.SP
		inst.Rn = cpu.SP
		inst.Operand = immOperand((w & 0x7F) << 2)
		if w&0x80 != 0 {
			inst.Op = OpSUB
		} else {
			inst.Op = OpADD
		}
	case w&0xFF00 == 0xB200:
		inst.Format = FormatExtend
		inst.Rd = uint8(w & 0x7)
		inst.Rm = uint8((w >> 3) & 0x7)
		inst.Op = [4]Op{OpSXTH, OpSXTB, OpUXTH, OpUXTB}[(w>>6)&0x3]
	case w&0xF600 == 0xB400:
		d.decodeThumbPushPop(w, inst)
	case w&0xFFC0 == 0xBA00, w&0xFFC0 == 0xBA40, w&0xFFC0 == 0xBAC0:
		inst.Format = FormatExtend
		inst.Rd = uint8(w & 0x7)
		inst.Rm = uint8((w >> 3) & 0x7)
		inst.Op = [4]Op{OpREV, OpREV16, OpUnknown, OpREVSH}[(w>>6)&0x3]
	case w&0xFFE8 == 0xB660:
		inst.Format = FormatSystem
		inst.Op = OpCPS
		inst.Disable = w&0x10 != 0
		inst.Flags = uint8(w & 0x7)
	case w&0xFFF7 == 0xB650:
		inst.Format = FormatSystem
		inst.Op = OpSETEND
		inst.BigEndian = w&0x8 != 0
	case w&0xFF00 == 0xBE00:
		inst.Format = FormatSystem
		inst.Op = OpBKPT
		inst.Imm = w & 0xFF
	}
}

// decodeThumbPushPop decodes PUSH {list, LR} and POP {list, PC} as
// STMDB SP! and LDMIA SP!.
// Format: 1011 | L | 10 | R | list(8)
func (d *Decoder) decodeThumbPushPop(w uint32, inst *Instruction) {
	inst.Format = FormatMultiple
	inst.Rn = cpu.SP
	inst.WriteBack = true
	list := uint16(w & 0xFF)
	extra := w&0x0100 != 0

	if w&0x0800 != 0 {
		inst.Op = OpLDM
		inst.Up = true
		if extra {
			list |= 1 << cpu.PC
		}
	} else {
		inst.Op = OpSTM
		inst.PreIndex = true
		if extra {
			list |= 1 << cpu.LR
		}
	}
	inst.RegList = list

	if list == 0 {
		inst.unpredictable("empty register list")
	}
}

// decodeThumbMultiple decodes STMIA/LDMIA Rn!, {list}.
// Format: 1100 | L | Rn | list(8)
func (d *Decoder) decodeThumbMultiple(w uint32, inst *Instruction) {
	inst.Format = FormatMultiple
	inst.Rn = uint8((w >> 8) & 0x7)
	inst.RegList = uint16(w & 0xFF)
	inst.Up = true
	inBase := inst.RegList&(1<<inst.Rn) != 0

	if w&0x0800 != 0 {
		inst.Op = OpLDM
		inst.WriteBack = !inBase
	} else {
		inst.Op = OpSTM
		inst.WriteBack = true
		lowest := uint8(bits.TrailingZeros16(inst.RegList))
		if inBase && lowest != inst.Rn {
			inst.unpredictable("STMIA storing a written-back base that is not the lowest register")
		}
	}

	if inst.RegList == 0 {
		inst.unpredictable("empty register list")
	}
}

// decodeThumbCondBranch decodes B<cond>, UDF and SVC.
// Format: 1101 | cond | imm8
func (d *Decoder) decodeThumbCondBranch(w uint32, inst *Instruction) {
	cond := cpu.Cond((w >> 8) & 0xF)

	switch cond {
	case cpu.CondAL:
		inst.Format = FormatSystem
		inst.Op = OpUDF
		inst.Imm = w & 0xFF
	case cpu.CondNV:
		inst.Format = FormatSystem
		inst.Op = OpSVC
		inst.Imm = w & 0xFF
	default:
		inst.Format = FormatBranch
		inst.Op = OpB
		inst.Cond = cond
		inst.Imm = inst.PCValue() + signExtend((w&0xFF)<<1, 9)
	}
}

// decodeThumbBranch decodes the unconditional B with imm11.
func (d *Decoder) decodeThumbBranch(w uint32, inst *Instruction) {
	inst.Format = FormatBranch
	inst.Op = OpB
	inst.Imm = inst.PCValue() + signExtend((w&0x7FF)<<1, 12)
}

// decodeThumbLongBranch decodes the BL/BLX halves. Each half executes as a
// separate instruction.
// Format: 111 | H(2) | imm11
func (d *Decoder) decodeThumbLongBranch(w uint32, inst *Instruction) {
	inst.Format = FormatBranch
	imm11 := w & 0x7FF

	switch (w >> 11) & 0x3 {
	case 0b01:
		if imm11&1 != 0 {
			inst.Format = FormatSystem
			inst.Op = OpUDF
			return
		}
		inst.Op = OpBLXSuffix
		inst.Imm = imm11 << 1
	case 0b10:
		inst.Op = OpBLPrefix
		inst.Imm = inst.PCValue() + signExtend(imm11<<12, 23)
	case 0b11:
		inst.Op = OpBL
		inst.Imm = imm11 << 1
	}
}

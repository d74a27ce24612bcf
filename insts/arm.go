// Package insts provides ARM and Thumb instruction definitions and decoding.
package insts

import (
	"math/bits"

	"github.com/sarchlab/armjit/cpu"
)

// DecodeARM decodes a 32-bit ARM encoding (ARMv5TE/ARMv6 integer subset).
func (d *Decoder) DecodeARM(addr, w uint32) *Instruction {
	inst := newInstruction(addr, w, false)
	inst.Cond = cpu.Cond(w >> 28)

	if inst.Cond == cpu.CondNV {
		d.decodeARMUnconditional(w, inst)
		return inst
	}

	switch (w >> 25) & 0x7 { // bits [27:25]
	case 0b000:
		d.decodeARMGroup0(w, inst)
	case 0b001:
		d.decodeARMGroup1(w, inst)
	case 0b010:
		d.decodeARMSingle(w, inst)
	case 0b011:
		if w&0x10 == 0 {
			d.decodeARMSingle(w, inst)
		}
	case 0b100:
		d.decodeARMMultiple(w, inst)
	case 0b101:
		d.decodeARMBranch(w, inst)
	case 0b111:
		if w&0x01000000 != 0 {
			inst.Format = FormatSystem
			inst.Op = OpSVC
			inst.Imm = w & 0xFFFFFF
		}
	}

	return inst
}

// decodeARMUnconditional decodes the cond == 1111 space: BLX (immediate)
// and SETEND.
func (d *Decoder) decodeARMUnconditional(w uint32, inst *Instruction) {
	switch {
	case (w>>25)&0x7 == 0b101:
		inst.Format = FormatBranch
		inst.Op = OpBLXImm
		inst.Cond = cpu.CondAL
		h := (w >> 24) & 0x1
		inst.Imm = inst.PCValue() + signExtend((w&0xFFFFFF)<<2, 26) + h<<1
	case w&0xFFFFFDFF == 0xF1010000:
		inst.Format = FormatSystem
		inst.Op = OpSETEND
		inst.Cond = cpu.CondAL
		inst.BigEndian = w&0x200 != 0
	}
}

// decodeARMGroup0 decodes bits [27:25] == 000: data processing with a
// register operand, multiplies, extra loads/stores and the miscellaneous
// instructions.
func (d *Decoder) decodeARMGroup0(w uint32, inst *Instruction) {
	op := (w >> 21) & 0xF
	s := (w >> 20) & 0x1

	switch {
	case w&0x0FFFFFF0 == 0x012FFF10:
		inst.Format = FormatBranchReg
		inst.Op = OpBX
		inst.Rm = uint8(w & 0xF)
	case w&0x0FFFFFF0 == 0x012FFF30:
		inst.Format = FormatBranchReg
		inst.Op = OpBLX
		inst.Rm = uint8(w & 0xF)
		if inst.Rm == cpu.PC {
			inst.unpredictable("BLX to PC")
		}
	case w&0x0FF000F0 == 0x01200070:
		inst.Format = FormatSystem
		inst.Op = OpBKPT
		inst.Imm = (w>>4)&0xFFF0 | w&0xF
		if inst.Cond != cpu.CondAL {
			inst.unpredictable("conditional BKPT")
		}
	case w&0x0FC000F0 == 0x00000090:
		d.decodeARMMultiply(w, inst)
	case w&0x90 == 0x90:
		if w&0x60 != 0 {
			d.decodeARMExtraLoadStore(w, inst)
		}
	case w&0x0FBF0FFF == 0x010F0000:
		if w&0x00400000 == 0 {
			inst.Format = FormatSystem
			inst.Op = OpMRS
			inst.Rd = uint8((w >> 12) & 0xF)
			if inst.Rd == cpu.PC {
				inst.unpredictable("MRS to PC")
			}
		}
	case w&0x0FB0FFF0 == 0x0120F000:
		if w&0x00400000 == 0 {
			inst.Format = FormatSystem
			inst.Op = OpMSR
			inst.Mask = uint8((w >> 16) & 0xF)
			inst.Operand = regOperand(uint8(w & 0xF))
			if inst.Operand.Rm == cpu.PC {
				inst.unpredictable("MSR from PC")
			}
		}
	case op&0xC == 0x8 && s == 0:
		// Remaining miscellaneous space (CLZ, saturating arithmetic, ...).
	case w&0x10 != 0:
		d.decodeARMDataProc(w, inst)
		inst.Operand = Operand{
			Kind:  OperandRegShift,
			Rm:    uint8(w & 0xF),
			Shift: ShiftType((w >> 5) & 0x3),
			Rs:    uint8((w >> 8) & 0xF),
		}
		if inst.Rd == cpu.PC || inst.Rn == cpu.PC || inst.Operand.Rm == cpu.PC || inst.Operand.Rs == cpu.PC {
			inst.unpredictable("register-shifted register operand with PC")
		}
	default:
		d.decodeARMDataProc(w, inst)
		inst.Operand = shiftedOperand(uint8(w&0xF), ShiftType((w>>5)&0x3), uint8((w>>7)&0x1F))
	}
}

// decodeARMGroup1 decodes bits [27:25] == 001: data processing with a
// rotated immediate and MSR (immediate).
func (d *Decoder) decodeARMGroup1(w uint32, inst *Instruction) {
	op := (w >> 21) & 0xF
	s := (w >> 20) & 0x1
	rot := int((w>>8)&0xF) * 2
	imm := Operand{
		Kind:    OperandImm,
		Imm:     bits.RotateLeft32(w&0xFF, -rot),
		Rotated: rot != 0,
	}

	if op&0xC == 0x8 && s == 0 {
		if w&0x0FB0F000 == 0x0320F000 && w&0x00400000 == 0 && (w>>16)&0xF != 0 {
			inst.Format = FormatSystem
			inst.Op = OpMSR
			inst.Mask = uint8((w >> 16) & 0xF)
			inst.Operand = imm
		}
		return
	}

	d.decodeARMDataProc(w, inst)
	inst.Operand = imm
}

// decodeARMDataProc fills the fields shared by every data-processing form.
// Format: cond | 00 | I | opcode(4) | S | Rn | Rd | operand2
func (d *Decoder) decodeARMDataProc(w uint32, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.Op = OpAND + Op((w>>21)&0xF)
	inst.SetFlags = w&0x00100000 != 0
	inst.Rn = uint8((w >> 16) & 0xF)
	inst.Rd = uint8((w >> 12) & 0xF)

	if inst.Op.IsCompare() {
		inst.Rd = 0
	}
	if inst.Op == OpMOV || inst.Op == OpMVN {
		inst.Rn = 0
	}
	if inst.SetFlags && inst.Rd == cpu.PC && !inst.Op.IsCompare() {
		inst.unpredictable("flag-setting write to PC without an SPSR")
	}
}

// decodeARMMultiply decodes MUL and MLA.
// Format: cond | 000000 | A | S | Rd | Rn | Rs | 1001 | Rm
func (d *Decoder) decodeARMMultiply(w uint32, inst *Instruction) {
	inst.Format = FormatMultiply
	inst.SetFlags = w&0x00100000 != 0
	inst.Rd = uint8((w >> 16) & 0xF)
	inst.Rn = uint8((w >> 12) & 0xF)
	inst.Rs = uint8((w >> 8) & 0xF)
	inst.Rm = uint8(w & 0xF)

	if w&0x00200000 != 0 {
		inst.Op = OpMLA
	} else {
		inst.Op = OpMUL
		inst.Rn = 0
	}

	if inst.Rd == cpu.PC || inst.Rm == cpu.PC || inst.Rs == cpu.PC || (inst.Op == OpMLA && inst.Rn == cpu.PC) {
		inst.unpredictable("multiply with PC operand")
	}
}

// decodeARMExtraLoadStore decodes halfword, signed and doubleword transfers.
// Format: cond | 000 | P | U | I | W | L | Rn | Rd | immH | 1 | S | H | 1 | immL/Rm
func (d *Decoder) decodeARMExtraLoadStore(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.PreIndex = w&0x01000000 != 0
	inst.Up = w&0x00800000 != 0
	inst.WriteBack = w&0x00200000 != 0
	inst.Rn = uint8((w >> 16) & 0xF)
	inst.Rd = uint8((w >> 12) & 0xF)
	load := w&0x00100000 != 0

	if w&0x00400000 != 0 {
		inst.Operand = immOperand((w>>4)&0xF0 | w&0xF)
	} else {
		inst.Operand = regOperand(uint8(w & 0xF))
	}

	switch sh := (w >> 5) & 0x3; {
	case load && sh == 0b01:
		inst.Op, inst.Width = OpLDR, 2
	case load && sh == 0b10:
		inst.Op, inst.Width, inst.Signed = OpLDR, 1, true
	case load && sh == 0b11:
		inst.Op, inst.Width, inst.Signed = OpLDR, 2, true
	case sh == 0b01:
		inst.Op, inst.Width = OpSTR, 2
	case sh == 0b10:
		inst.Op, inst.Width = OpLDRD, 8
	case sh == 0b11:
		inst.Op, inst.Width = OpSTRD, 8
	}

	if inst.Width == 8 && inst.Rd&1 != 0 {
		inst.Op = OpUnknown
		return
	}
	if inst.Width == 8 && inst.Rd == cpu.LR {
		inst.unpredictable("doubleword transfer of LR and PC")
	}
	d.checkSingleTransfer(inst)
}

// decodeARMSingle decodes LDR/STR/LDRB/STRB.
// Format: cond | 01 | I | P | U | B | W | L | Rn | Rd | offset12
func (d *Decoder) decodeARMSingle(w uint32, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.PreIndex = w&0x01000000 != 0
	inst.Up = w&0x00800000 != 0
	inst.WriteBack = w&0x00200000 != 0
	inst.Rn = uint8((w >> 16) & 0xF)
	inst.Rd = uint8((w >> 12) & 0xF)
	inst.Width = 4
	if w&0x00400000 != 0 {
		inst.Width = 1
	}

	if w&0x02000000 != 0 {
		inst.Operand = shiftedOperand(uint8(w&0xF), ShiftType((w>>5)&0x3), uint8((w>>7)&0x1F))
	} else {
		inst.Operand = immOperand(w & 0xFFF)
	}

	if w&0x00100000 != 0 {
		inst.Op = OpLDR
	} else {
		inst.Op = OpSTR
	}

	if !inst.PreIndex {
		// Post-indexed forms always write back; W selects the user-mode
		// translation variant, which behaves the same in user mode.
		inst.WriteBack = false
	}
	d.checkSingleTransfer(inst)
}

// checkSingleTransfer flags the unpredictable register combinations of
// single loads and stores.
func (d *Decoder) checkSingleTransfer(inst *Instruction) {
	wb := inst.WriteBack || !inst.PreIndex
	if inst.Operand.Kind == OperandReg && inst.Operand.Rm == cpu.PC {
		inst.unpredictable("register offset of PC")
	}
	if wb && inst.Rn == cpu.PC {
		inst.unpredictable("writeback to PC base")
	}
	if wb && (inst.Op == OpLDR || inst.Op == OpLDRD) &&
		(inst.Rn == inst.Rd || (inst.Op == OpLDRD && inst.Rn == inst.Rd+1)) {
		inst.unpredictable("load with writeback to the loaded register")
	}
	if inst.Width == 1 && inst.Rd == cpu.PC {
		inst.unpredictable("byte transfer of PC")
	}
	if inst.Width == 2 && inst.Rd == cpu.PC {
		inst.unpredictable("halfword transfer of PC")
	}
	if !inst.PreIndex && inst.WriteBack && inst.Width != 4 && inst.Width != 1 {
		inst.unpredictable("post-indexed extra transfer with W set")
	}
}

// decodeARMMultiple decodes LDM and STM.
// Format: cond | 100 | P | U | S | W | L | Rn | list(16)
func (d *Decoder) decodeARMMultiple(w uint32, inst *Instruction) {
	if w&0x00400000 != 0 {
		// User-bank and exception-return forms.
		return
	}

	inst.Format = FormatMultiple
	inst.PreIndex = w&0x01000000 != 0
	inst.Up = w&0x00800000 != 0
	inst.WriteBack = w&0x00200000 != 0
	inst.Rn = uint8((w >> 16) & 0xF)
	inst.RegList = uint16(w & 0xFFFF)

	if w&0x00100000 != 0 {
		inst.Op = OpLDM
	} else {
		inst.Op = OpSTM
	}

	inBase := inst.RegList&(1<<inst.Rn) != 0
	switch {
	case inst.RegList == 0:
		inst.unpredictable("empty register list")
	case inst.Rn == cpu.PC:
		inst.unpredictable("PC as base register")
	case inst.WriteBack && inBase && inst.Op == OpLDM:
		inst.unpredictable("LDM with writeback and base in list")
	case inst.WriteBack && inBase && uint8(bits.TrailingZeros16(inst.RegList)) != inst.Rn:
		inst.unpredictable("STM with writeback and base not lowest in list")
	}
}

// decodeARMBranch decodes B and BL.
// Format: cond | 101 | L | imm24
func (d *Decoder) decodeARMBranch(w uint32, inst *Instruction) {
	inst.Format = FormatBranch
	inst.Imm = inst.PCValue() + signExtend((w&0xFFFFFF)<<2, 26)

	if w&0x01000000 != 0 {
		inst.Op = OpBL
	} else {
		inst.Op = OpB
	}
}

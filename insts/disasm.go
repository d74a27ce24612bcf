// Package insts provides ARM and Thumb instruction definitions and decoding.
package insts

import (
	"fmt"
	"strings"
)

var regNames = [16]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

// RegName returns the assembler name of a register.
func RegName(r uint8) string {
	return regNames[r&0xF]
}

// String disassembles the instruction. The output is meant for diagnostics
// and follows UAL loosely.
func (i *Instruction) String() string {
	if i.Op == OpUnknown {
		if i.Thumb {
			return fmt.Sprintf(".hword 0x%04x", i.Raw)
		}
		return fmt.Sprintf(".word 0x%08x", i.Raw)
	}

	mnemonic := i.Op.String()
	if i.SetFlags && !i.Op.IsCompare() {
		mnemonic += "s"
	}
	mnemonic += i.Cond.String()

	text := mnemonic
	if args := i.operands(); args != "" {
		text = fmt.Sprintf("%-7s %s", mnemonic, args)
	}
	if i.Unpredictable {
		text += " ; unpredictable"
	}
	return text
}

func (i *Instruction) operands() string {
	switch i.Format {
	case FormatDataProc:
		return i.dataProcOperands()
	case FormatMultiply:
		if i.Op == OpMLA {
			return fmt.Sprintf("%s, %s, %s, %s", RegName(i.Rd), RegName(i.Rm), RegName(i.Rs), RegName(i.Rn))
		}
		return fmt.Sprintf("%s, %s, %s", RegName(i.Rd), RegName(i.Rm), RegName(i.Rs))
	case FormatExtend:
		return fmt.Sprintf("%s, %s", RegName(i.Rd), RegName(i.Rm))
	case FormatLoadStore:
		return i.loadStoreOperands()
	case FormatMultiple:
		return i.multipleOperands()
	case FormatBranch:
		switch i.Op {
		case OpBLPrefix:
			return fmt.Sprintf("lr := #0x%08x", i.Imm)
		case OpBL, OpBLXSuffix:
			if i.Thumb {
				return fmt.Sprintf("lr + #0x%x", i.Imm)
			}
		}
		return fmt.Sprintf("#0x%08x", i.Imm)
	case FormatBranchReg:
		return RegName(i.Rm)
	case FormatSystem:
		return i.systemOperands()
	}
	return ""
}

func (i *Instruction) dataProcOperands() string {
	op2 := i.Operand.String()
	switch {
	case i.Op == OpADR:
		return fmt.Sprintf("%s, #0x%x", RegName(i.Rd), i.Operand.Imm)
	case i.Op.IsCompare():
		return fmt.Sprintf("%s, %s", RegName(i.Rn), op2)
	case i.Op == OpMOV || i.Op == OpMVN:
		return fmt.Sprintf("%s, %s", RegName(i.Rd), op2)
	default:
		return fmt.Sprintf("%s, %s, %s", RegName(i.Rd), RegName(i.Rn), op2)
	}
}

func (i *Instruction) loadStoreOperands() string {
	rd := RegName(i.Rd)
	if i.Op == OpLDRD || i.Op == OpSTRD {
		rd += ", " + RegName(i.Rd+1)
	}
	if i.Literal {
		return fmt.Sprintf("%s, [pc, #0x%x]", rd, i.Operand.Imm)
	}

	sign := ""
	if !i.Up {
		sign = "-"
	}
	offset := sign + i.Operand.String()
	switch {
	case !i.PreIndex:
		return fmt.Sprintf("%s, [%s], %s", rd, RegName(i.Rn), offset)
	case i.WriteBack:
		return fmt.Sprintf("%s, [%s, %s]!", rd, RegName(i.Rn), offset)
	default:
		return fmt.Sprintf("%s, [%s, %s]", rd, RegName(i.Rn), offset)
	}
}

func (i *Instruction) multipleOperands() string {
	var regs []string
	for r := uint8(0); r < 16; r++ {
		if i.RegList&(1<<r) != 0 {
			regs = append(regs, RegName(r))
		}
	}

	var mode string
	switch {
	case i.Up && !i.PreIndex:
		mode = "ia"
	case i.Up && i.PreIndex:
		mode = "ib"
	case !i.Up && !i.PreIndex:
		mode = "da"
	default:
		mode = "db"
	}

	wb := ""
	if i.WriteBack {
		wb = "!"
	}
	return fmt.Sprintf("%s %s%s, {%s}", mode, RegName(i.Rn), wb, strings.Join(regs, ", "))
}

func (i *Instruction) systemOperands() string {
	switch i.Op {
	case OpSVC, OpBKPT, OpUDF:
		return fmt.Sprintf("#0x%x", i.Imm)
	case OpCPS:
		state := "ie"
		if i.Disable {
			state = "id"
		}
		flags := ""
		for n, name := range []string{"f", "i", "a"} {
			if i.Flags&(1<<n) != 0 {
				flags = name + flags
			}
		}
		return state + " " + flags
	case OpSETEND:
		if i.BigEndian {
			return "be"
		}
		return "le"
	case OpMRS:
		return RegName(i.Rd) + ", cpsr"
	case OpMSR:
		return fmt.Sprintf("cpsr_%x, %s", i.Mask, i.Operand.String())
	}
	return ""
}

// String formats the operand in assembler syntax.
func (o Operand) String() string {
	switch o.Kind {
	case OperandImm:
		return fmt.Sprintf("#0x%x", o.Imm)
	case OperandReg:
		switch {
		case o.Shift == ShiftRRX:
			return RegName(o.Rm) + ", rrx"
		case o.Shift == ShiftLSL && o.Amount == 0:
			return RegName(o.Rm)
		default:
			return fmt.Sprintf("%s, %s #%d", RegName(o.Rm), o.Shift, o.Amount)
		}
	case OperandRegShift:
		return fmt.Sprintf("%s, %s %s", RegName(o.Rm), o.Shift, RegName(o.Rs))
	}
	return ""
}

// DisassembleThumb decodes and disassembles a single Thumb encoding.
func DisassembleThumb(addr uint32, op uint16) string {
	return NewDecoder().DecodeThumb(addr, op).String()
}

// DisassembleARM decodes and disassembles a single ARM encoding.
func DisassembleARM(addr, w uint32) string {
	return NewDecoder().DecodeARM(addr, w).String()
}

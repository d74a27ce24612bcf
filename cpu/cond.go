// Package cpu provides the ARM/Thumb register file shared by the JIT and the
// reference interpreter.
package cpu

// Cond represents an ARM condition code.
type Cond uint8

// ARM condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Unconditional instruction space
)

var condNames = [16]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "", "nv",
}

// String returns the assembler suffix of the condition ("" for AL).
func (c Cond) String() string {
	return condNames[c&0xF]
}

// Passed evaluates the condition against the flags of p.
// CondNV is reported as passed; callers decode that space separately.
func (c Cond) Passed(p *PSR) bool {
	switch c {
	case CondEQ:
		return p.Z
	case CondNE:
		return !p.Z
	case CondCS:
		return p.C
	case CondCC:
		return !p.C
	case CondMI:
		return p.N
	case CondPL:
		return !p.N
	case CondVS:
		return p.V
	case CondVC:
		return !p.V
	case CondHI:
		return p.C && !p.Z
	case CondLS:
		return !p.C || p.Z
	case CondGE:
		return p.N == p.V
	case CondLT:
		return p.N != p.V
	case CondGT:
		return !p.Z && p.N == p.V
	case CondLE:
		return p.Z || p.N != p.V
	default:
		return true
	}
}

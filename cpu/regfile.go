// Package cpu provides the ARM/Thumb register file shared by the JIT and the
// reference interpreter.
package cpu

// Register indices with an architectural role.
const (
	SP = 13
	LR = 14
	PC = 15
)

// RegFile represents the ARM register file.
// It contains the 16 general-purpose registers (R0-R15, R15 being the
// program counter) and the current program status register.
type RegFile struct {
	// R holds R0-R15.
	R [16]uint32

	// CPSR holds the current program status register.
	CPSR PSR
}

// Regs returns a copy of the general-purpose registers.
func (r *RegFile) Regs() [16]uint32 {
	return r.R
}

// SetRegs replaces all general-purpose registers.
func (r *RegFile) SetRegs(regs [16]uint32) {
	r.R = regs
}

// Cpsr returns the packed status word.
func (r *RegFile) Cpsr() uint32 {
	return r.CPSR.Word()
}

// SetCpsr unpacks a status word into the CPSR fields.
func (r *RegFile) SetCpsr(word uint32) {
	r.CPSR.SetWord(word)
}

// Mode returns the translation mode of the current CPSR.
func (r *RegFile) Mode() Mode {
	return r.CPSR.Mode()
}

// AlignPC masks PC to the alignment required by the current instruction set:
// 2 bytes in Thumb state, 4 bytes in ARM state.
func (r *RegFile) AlignPC() {
	r.R[PC] = AlignPC(r.R[PC], r.CPSR.T)
}

// AlignPC masks an address to the instruction alignment of the given state.
func AlignPC(addr uint32, thumb bool) uint32 {
	if thumb {
		return addr &^ 1
	}
	return addr &^ 3
}

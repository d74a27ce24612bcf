package emu

import "github.com/sarchlab/armjit/cpu"

// userWritableMask covers the CPSR bits MSR may change in User mode: the
// condition flags, Q and the GE bits.
const userWritableMask uint32 = 0xF80F0000

// changeProcessorState executes CPS. It is a no-op in User mode; banked
// registers are not modeled, so only the A, I and F masks change.
func (i *Interpreter) changeProcessorState(disable, a, irq, fiq bool) {
	psr := &i.regFile.CPSR
	if !psr.Privileged() {
		return
	}
	if a {
		psr.A = disable
	}
	if irq {
		psr.I = disable
	}
	if fiq {
		psr.F = disable
	}
}

// moveToStatus executes MSR CPSR_<fields>, value. fields selects the
// control, extension, status and flags bytes as bits 0 to 3. The T bit is
// never changed.
func (i *Interpreter) moveToStatus(fields, value uint32) {
	var mask uint32
	for b := uint32(0); b < 4; b++ {
		if fields&(1<<b) != 0 {
			mask |= 0xFF << (8 * b)
		}
	}
	if i.regFile.CPSR.Privileged() {
		mask &^= 1 << cpu.BitT
	} else {
		mask &= userWritableMask
	}

	old := i.regFile.Cpsr()
	i.regFile.SetCpsr(old&^mask | value&mask)
}

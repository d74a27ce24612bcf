// Package cpu provides the ARM/Thumb register file shared by the JIT and the
// reference interpreter.
package cpu

// Processor modes held in CPSR[4:0].
const (
	ModeUser       uint8 = 0b10000
	ModeFIQ        uint8 = 0b10001
	ModeIRQ        uint8 = 0b10010
	ModeSupervisor uint8 = 0b10011
	ModeAbort      uint8 = 0b10111
	ModeUndefined  uint8 = 0b11011
	ModeSystem     uint8 = 0b11111
)

// CPSR bit positions.
const (
	BitN = 31
	BitZ = 30
	BitC = 29
	BitV = 28
	BitQ = 27
	BitE = 9
	BitA = 8
	BitI = 7
	BitF = 6
	BitT = 5
)

// namedBits covers every CPSR bit that has a dedicated PSR field.
const namedBits uint32 = 1<<BitN | 1<<BitZ | 1<<BitC | 1<<BitV | 1<<BitQ |
	1<<BitE | 1<<BitA | 1<<BitI | 1<<BitF | 1<<BitT | 0x1F

// PSR represents a program status register decomposed into named fields.
type PSR struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
	// Q is the sticky saturation flag.
	Q bool

	// E selects big-endian data accesses.
	E bool
	// A, I and F mask imprecise aborts, IRQs and FIQs.
	A, I, F bool
	// T is set in Thumb state.
	T bool

	// M holds the processor mode bits [4:0].
	M uint8

	// Other preserves the bits without a named field (GE, IT, reserved).
	Other uint32
}

// Word packs the PSR into its 32-bit form.
func (p PSR) Word() uint32 {
	w := p.Other &^ namedBits
	w |= bit(p.N, BitN) | bit(p.Z, BitZ) | bit(p.C, BitC) | bit(p.V, BitV) | bit(p.Q, BitQ)
	w |= bit(p.E, BitE) | bit(p.A, BitA) | bit(p.I, BitI) | bit(p.F, BitF) | bit(p.T, BitT)
	w |= uint32(p.M & 0x1F)
	return w
}

// SetWord unpacks a 32-bit status word.
func (p *PSR) SetWord(w uint32) {
	p.N = w&(1<<BitN) != 0
	p.Z = w&(1<<BitZ) != 0
	p.C = w&(1<<BitC) != 0
	p.V = w&(1<<BitV) != 0
	p.Q = w&(1<<BitQ) != 0
	p.E = w&(1<<BitE) != 0
	p.A = w&(1<<BitA) != 0
	p.I = w&(1<<BitI) != 0
	p.F = w&(1<<BitF) != 0
	p.T = w&(1<<BitT) != 0
	p.M = uint8(w & 0x1F)
	p.Other = w &^ namedBits
}

// Privileged reports whether the current mode is any mode other than User.
func (p PSR) Privileged() bool {
	return p.M != ModeUser
}

// SetNZ sets N and Z from a result.
func (p *PSR) SetNZ(result uint32) {
	p.N = result&0x80000000 != 0
	p.Z = result == 0
}

// Mode returns the translation mode selected by the PSR.
func (p PSR) Mode() Mode {
	return Mode{Thumb: p.T, BigEndian: p.E}
}

func bit(b bool, pos uint) uint32 {
	if b {
		return 1 << pos
	}
	return 0
}

// Mode identifies how a guest code stream must be translated: the
// instruction set (ARM or Thumb) and the data endianness.
type Mode struct {
	Thumb     bool
	BigEndian bool
}

// Key returns a compact numeric form of the mode.
func (m Mode) Key() uint8 {
	var k uint8
	if m.Thumb {
		k |= 1
	}
	if m.BigEndian {
		k |= 2
	}
	return k
}

// InstructionSize is the size in bytes of one instruction in this mode.
func (m Mode) InstructionSize() uint32 {
	if m.Thumb {
		return 2
	}
	return 4
}

// String returns a short name such as "thumb" or "arm-be".
func (m Mode) String() string {
	s := "arm"
	if m.Thumb {
		s = "thumb"
	}
	if m.BigEndian {
		s += "-be"
	}
	return s
}

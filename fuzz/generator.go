// Package fuzz provides differential testing of the JIT against the
// reference interpreter: random instruction generators, a harness running
// both engines on the same code, and parallel campaigns.
package fuzz

import (
	"fmt"
	"math/rand/v2"
)

// Generator produces random encodings matching a bit template.
type Generator struct {
	// Name describes the instruction class.
	Name string

	format string
	width  int
	bits   uint32
	mask   uint32
	valid  func(uint32) bool
}

// NewGenerator parses a template of 16 or 32 characters, most significant
// bit first. '0' and '1' are fixed bits; any other character is random.
// Encodings rejected by a valid predicate are regenerated. It panics on a
// malformed template.
func NewGenerator(name, format string, valid ...func(uint32) bool) *Generator {
	if len(format) != 16 && len(format) != 32 {
		panic(fmt.Sprintf("fuzz: template %q must have 16 or 32 characters", format))
	}

	g := &Generator{Name: name, format: format, width: len(format)}
	for i, c := range format {
		bit := uint32(1) << (len(format) - 1 - i)
		switch c {
		case '0':
			g.mask |= bit
		case '1':
			g.bits |= bit
			g.mask |= bit
		}
	}

	g.valid = func(uint32) bool { return true }
	if len(valid) > 0 {
		preds := valid
		g.valid = func(inst uint32) bool {
			for _, p := range preds {
				if !p(inst) {
					return false
				}
			}
			return true
		}
	}
	return g
}

// Format returns the template.
func (g *Generator) Format() string {
	return g.format
}

// Width returns the encoding width in bits.
func (g *Generator) Width() int {
	return g.width
}

// Matches reports whether inst fits the template, ignoring predicates.
func (g *Generator) Matches(inst uint32) bool {
	return inst&g.mask == g.bits
}

// Generate returns a random encoding accepted by every predicate.
func (g *Generator) Generate(rng *rand.Rand) uint32 {
	random := ^uint32(0)
	if g.width == 16 {
		random = 0xFFFF
	}
	for {
		inst := g.bits | rng.Uint32()&random&^g.mask
		if g.valid(inst) {
			return inst
		}
	}
}

// Set is a named group of generators sharing an instruction set.
type Set struct {
	Name       string
	Thumb      bool
	Generators []*Generator
}

// Generate picks a generator uniformly and returns one of its encodings.
func (s *Set) Generate(rng *rand.Rand) uint32 {
	return s.Generators[rng.IntN(len(s.Generators))].Generate(rng)
}

// InitialCpsr returns the CPSR every run starts with: User mode with
// A, I and F masked, and T set for Thumb sets.
func (s *Set) InitialCpsr() uint32 {
	if s.Thumb {
		return 0x000001F0
	}
	return 0x000001D0
}

// field extracts bits [hi:lo] of inst.
func field(inst uint32, lo, hi uint) uint32 {
	return (inst >> lo) & (1<<(hi-lo+1) - 1)
}

// ThumbSet1 returns the non-branching Thumb instructions.
func ThumbSet1() *Set {
	return &Set{
		Name:  "thumb1",
		Thumb: true,
		Generators: []*Generator{
			NewGenerator("LSL imm", "00000xxxxxxxxxxx"),
			NewGenerator("LSR imm", "00001xxxxxxxxxxx"),
			NewGenerator("ASR imm", "00010xxxxxxxxxxx"),
			NewGenerator("ADD/SUB reg", "000110oxxxxxxxxx"),
			NewGenerator("ADD/SUB imm3", "000111oxxxxxxxxx"),
			NewGenerator("ADD/SUB/CMP/MOV imm8", "001ooxxxxxxxxxxx"),
			NewGenerator("data processing", "010000ooooxxxxxx"),
			NewGenerator("ADD high", "010001000hxxxxxx"),
			// R15 as an operand is unpredictable.
			NewGenerator("CMP high Rm", "0100010101xxxxxx",
				func(inst uint32) bool { return field(inst, 3, 5) != 0b111 }),
			NewGenerator("CMP high Rn", "0100010110xxxxxx",
				func(inst uint32) bool { return field(inst, 0, 2) != 0b111 }),
			NewGenerator("MOV high", "010001100hxxxxxx"),
			NewGenerator("adjust SP", "10110000oxxxxxxx"),
			NewGenerator("SXT/UXT", "10110010ooxxxxxx"),
			NewGenerator("REV", "1011101000xxxxxx"),
			NewGenerator("REV16", "1011101001xxxxxx"),
			NewGenerator("REVSH", "1011101011xxxxxx"),
			NewGenerator("LDR literal", "01001xxxxxxxxxxx"),
			NewGenerator("LDR/STR reg", "0101oooxxxxxxxxx"),
			NewGenerator("LDR(B)/STR(B) imm", "011xxxxxxxxxxxxx"),
			NewGenerator("LDRH/STRH imm", "1000xxxxxxxxxxxx"),
			NewGenerator("LDR/STR SP", "1001xxxxxxxxxxxx"),
			NewGenerator("PUSH/POP", "1011x100xxxxxxxx"),
			NewGenerator("STMIA/LDMIA", "1100xxxxxxxxxxxx"),
		},
	}
}

// ThumbSet2 returns the Thumb instructions that affect PC or state.
func ThumbSet2() *Set {
	return &Set{
		Name:  "thumb2",
		Thumb: true,
		Generators: []*Generator{
			NewGenerator("BX/BLX", "01000111xmmmm000",
				func(inst uint32) bool { return field(inst, 3, 6) != 15 }),
			NewGenerator("ADD PC/SP", "1010oxxxxxxxxxxx"),
			NewGenerator("B", "11100xxxxxxxxxxx"),
			NewGenerator("ADD high", "01000100h0xxxxxx"),
			NewGenerator("MOV high", "01000110h0xxxxxx"),
			// Condition 1110 is undefined and 1111 is SVC.
			NewGenerator("B<cond>", "1101ccccxxxxxxxx",
				func(inst uint32) bool { return field(inst, 8, 11) < 0b1110 }),
			NewGenerator("CPS", "10110110011x0xxx"),
		},
	}
}

// ARMSet returns ARM data-processing, single transfer and branch
// instructions.
func ARMSet() *Set {
	conditional := func(inst uint32) bool { return field(inst, 28, 31) != 0b1111 }
	noPCDest := func(inst uint32) bool { return field(inst, 12, 15) != 15 }
	// Opcodes 10xx without S are the miscellaneous space.
	dataProc := func(inst uint32) bool {
		return field(inst, 23, 24) != 0b10 || field(inst, 20, 20) != 0
	}

	return &Set{
		Name: "arm",
		Generators: []*Generator{
			NewGenerator("data processing imm shift", "cccc000ooooSnnnnddddvvvvvtt0mmmm",
				conditional, noPCDest, dataProc),
			NewGenerator("data processing reg shift", "cccc000ooooSnnnnddddssss0tt1mmmm",
				conditional, noPCDest, dataProc),
			NewGenerator("data processing imm", "cccc001ooooSnnnnddddrrrrvvvvvvvv",
				conditional, noPCDest, dataProc),
			NewGenerator("LDR/STR imm", "cccc010PUBWLnnnnddddvvvvvvvvvvvv",
				conditional, noPCDest),
			NewGenerator("LDR/STR reg", "cccc011PUBWLnnnnddddvvvvvtt0mmmm",
				conditional, noPCDest),
		},
	}
}

// SetByName returns the named instruction set.
func SetByName(name string) (*Set, error) {
	switch name {
	case "thumb1":
		return ThumbSet1(), nil
	case "thumb2":
		return ThumbSet2(), nil
	case "arm":
		return ARMSet(), nil
	}
	return nil, fmt.Errorf("unknown instruction set %q", name)
}

package jit

import (
	"fmt"
	"strings"

	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/insts"
)

// ExitKind describes why a block ends.
type ExitKind uint8

// Block exit kinds.
const (
	// ExitFallThrough is used when the block reached its maximum length.
	ExitFallThrough ExitKind = iota
	// ExitBranch is used when the last instruction may write PC or
	// change the instruction set.
	ExitBranch
	// ExitFallback is used when the last instruction runs in the
	// interpreter.
	ExitFallback
	// ExitSVC is used when the last instruction is a supervisor call.
	ExitSVC
	// ExitHalt is used when the last instruction is a breakpoint.
	ExitHalt
)

var exitNames = [...]string{"fallthrough", "branch", "fallback", "svc", "halt"}

// String returns the name of the exit kind.
func (k ExitKind) String() string {
	if int(k) < len(exitNames) {
		return exitNames[k]
	}
	return "unknown"
}

// status is returned by every compiled instruction.
type status uint8

const (
	// statusNext: retired, continue with the next instruction of the block.
	statusNext status = iota
	// statusExit: retired, leave the block.
	statusExit
	// statusHalt: retired, stop the engine.
	statusHalt
	// statusFault: not retired, stop the engine.
	statusFault
)

// op executes one compiled guest instruction. Every op leaves PC at the
// address of the next instruction to execute.
type op func(j *Jit) status

// Block is a translated run of guest instructions covering [Start, End).
// Covers extends past End to the last folded literal the block depends on.
type Block struct {
	Start  uint32
	End    uint32
	Covers uint32
	Mode   cpu.Mode
	Exit   ExitKind

	ops   []op
	insts []*insts.Instruction
}

// Len returns the number of guest instructions in the block.
func (b *Block) Len() int {
	return len(b.ops)
}

// String returns a disassembly of the block.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block 0x%08x-0x%08x %s exit=%s\n", b.Start, b.End, b.Mode, b.Exit)
	for _, inst := range b.insts {
		fmt.Fprintf(&sb, "  %08x: %s\n", inst.Addr, inst)
	}
	return sb.String()
}

package fuzz

import (
	"math/rand/v2"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sarchlab/armjit/bridge"
	"github.com/sarchlab/armjit/cpu"
	"github.com/sarchlab/armjit/emu"
	"github.com/sarchlab/armjit/jit"
	"github.com/sarchlab/armjit/mem"
)

// DefaultCodeHalfwords is the default size of the code arena.
const DefaultCodeHalfwords = 3000

// harness is the host side of the engine: recorded arena memory, the
// interpreter fallback and an SVC handler that rejects every call.
type harness struct {
	*mem.Recorder
	fallback *bridge.Fallback
}

func (h *harness) InterpreterFallback(pc uint32, j *jit.Jit) {
	h.fallback.Execute(pc, j)
}

func (h *harness) CallSVC(uint32) bool {
	return false
}

// Runner runs generated code on the interpreter and on the JIT and compares
// the outcomes. Each runner owns its arena and both engines.
type Runner struct {
	set      *Set
	seed     uint64
	rng      *rand.Rand
	arena    *mem.Arena
	recorder *mem.Recorder
	interp   *emu.Interpreter
	engine   *jit.Jit
	log      logr.Logger

	codeHalfwords  int
	maxBlockLength int
}

// RunnerOption is a functional option for configuring the Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger passed to both engines.
func WithLogger(log logr.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// WithCodeHalfwords sets the arena size.
func WithCodeHalfwords(n int) RunnerOption {
	return func(r *Runner) {
		r.codeHalfwords = n
	}
}

// WithMaxBlockLength sets the JIT's maximum block length.
func WithMaxBlockLength(n int) RunnerOption {
	return func(r *Runner) {
		r.maxBlockLength = n
	}
}

// NewRunner creates a runner for set whose random stream starts at seed.
func NewRunner(set *Set, seed uint64, opts ...RunnerOption) *Runner {
	r := &Runner{
		set:            set,
		seed:           seed,
		rng:            rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
		log:            logr.Discard(),
		codeHalfwords:  DefaultCodeHalfwords,
		maxBlockLength: jit.DefaultMaxBlockLength,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.arena = mem.NewArena(r.codeHalfwords)
	r.recorder = mem.NewRecorder(r.arena)
	r.interp = emu.NewInterpreter(r.recorder)

	h := &harness{
		Recorder: r.recorder,
		fallback: bridge.New(r.recorder, nil, bridge.WithLogger(r.log)),
	}
	r.engine = jit.New(h,
		jit.WithLogger(r.log),
		jit.WithMaxBlockLength(r.maxBlockLength))

	return r
}

// Engine returns the runner's JIT.
func (r *Runner) Engine() *jit.Jit {
	return r.engine
}

// Arena returns the runner's code arena.
func (r *Runner) Arena() *mem.Arena {
	return r.arena
}

// Outcome is the observable result of one engine run.
type Outcome struct {
	Regs     [16]uint32
	Cpsr     uint32
	Writes   []mem.WriteRecord
	Executed uint64
	Err      string
}

// Matches reports whether two outcomes have the same registers, CPSR and
// write sequence.
func (o Outcome) Matches(other Outcome) bool {
	return o.Regs == other.Regs && o.Cpsr == other.Cpsr &&
		cmp.Equal(o.Writes, other.Writes, cmpOptions)
}

var cmpOptions = cmp.Options{cmpopts.EquateEmpty()}

// RunOnce generates count instructions at address 0, runs both engines
// for execute instructions from the same random initial state and returns
// the divergence, or nil if the outcomes match.
func (r *Runner) RunOnce(run, count, execute int) *Divergence {
	code := r.writeCode(count)

	var initial [16]uint32
	for k := 0; k < 15; k++ {
		initial[k] = r.rng.Uint32()
	}
	initial[cpu.PC] = 0
	cpsr := r.set.InitialCpsr()

	return r.Compare(run, code, initial, cpsr, uint64(execute))
}

// Compare runs both engines from the given state on the code already in
// the arena.
func (r *Runner) Compare(run int, code []uint32, initial [16]uint32, cpsr uint32, execute uint64) *Divergence {
	r.engine.ClearCache(false)
	r.interp.ClearCache()

	r.recorder.Reset()
	r.interp.SetRegs(initial)
	r.interp.SetCpsr(cpsr)
	ires := r.interp.Run(execute)
	r.interp.RegFile().AlignPC()
	interp := Outcome{
		Regs:     r.interp.Regs(),
		Cpsr:     r.interp.Cpsr(),
		Writes:   r.recorder.Take(),
		Executed: ires.Executed,
		Err:      errString(ires.Err),
	}

	r.engine.SetRegs(initial)
	r.engine.SetCpsr(cpsr)
	jres := r.engine.Run(execute)
	engine := Outcome{
		Regs:     r.engine.Regs(),
		Cpsr:     r.engine.Cpsr(),
		Writes:   r.recorder.Take(),
		Executed: jres.Executed,
		Err:      errString(jres.Err),
	}

	if interp.Matches(engine) {
		return nil
	}

	r.log.Info("divergence", "set", r.set.Name, "run", run, "seed", r.seed)
	return newDivergence(r.set, r.seed, run, code, initial, cpsr, interp, engine)
}

// writeCode fills the start of the arena with count generated instructions.
func (r *Runner) writeCode(count int) []uint32 {
	code := make([]uint32, count)
	for k := range code {
		code[k] = r.set.Generate(r.rng)
		if r.set.Thumb {
			r.arena.SetHalfword(k, uint16(code[k]))
		} else {
			r.arena.SetWord(uint32(4*k), code[k])
		}
	}
	return code
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

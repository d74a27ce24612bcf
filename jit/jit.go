// Package jit provides a dynamic recompiler for ARM and Thumb guest code.
//
// Guest instructions are translated into blocks of pre-bound Go closures,
// cached by guest address and mode, and executed under an instruction
// budget. Instructions without a compiled form run in the host's
// interpreter through the Callbacks.
//
// Usage:
//
//	j := jit.New(callbacks, jit.WithLogger(log))
//	j.SetRegs(regs)
//	j.SetCpsr(0x1F0)
//	res := j.Run(1000)
package jit

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/armjit/cache"
	"github.com/sarchlab/armjit/cpu"
)

// State is the execution state of the engine.
type State uint8

// Engine states.
const (
	// StateIdle: constructed, Run not called yet.
	StateIdle State = iota
	// StateDispatching: looking up or compiling the block at PC.
	StateDispatching
	// StateExecuting: running a block.
	StateExecuting
	// StateExhausted: the last Run consumed its whole budget.
	StateExhausted
	// StateHalted: the last Run stopped early.
	StateHalted
)

var stateNames = [...]string{"idle", "dispatching", "executing", "exhausted", "halted"}

// String returns the name of the state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// RunResult summarizes a Run call.
type RunResult struct {
	// Executed is the number of guest instructions retired.
	Executed uint64
	// State is StateExhausted or StateHalted.
	State State
	// Err is the reason for a halt. It is nil for a handled SVC.
	Err error
}

// Stats holds engine statistics.
type Stats struct {
	BlocksCompiled       uint64
	InstructionsCompiled uint64
	Fallbacks            uint64
	Executed             uint64
	Cache                cache.Statistics
}

// Jit is the execution engine. It is not safe for concurrent use.
type Jit struct {
	cb      Callbacks
	regs    cpu.RegFile
	emitter *Emitter
	cache   *cache.Cache[*Block]
	log     logr.Logger

	maxBlockLength int
	cacheConfig    cache.Config
	onCompile      func(*Block)

	state   State
	haltErr error
	faulted bool
	stats   Stats
}

// Option is a functional option for configuring the engine.
type Option func(*Jit)

// WithLogger sets the logger. Block compilation logs at V(1) and
// interpreter fallbacks at V(2).
func WithLogger(log logr.Logger) Option {
	return func(j *Jit) {
		j.log = log
	}
}

// WithMaxBlockLength sets the maximum number of guest instructions per
// block.
func WithMaxBlockLength(n int) Option {
	return func(j *Jit) {
		j.maxBlockLength = n
	}
}

// WithCacheConfig sets the translation cache configuration.
func WithCacheConfig(config cache.Config) Option {
	return func(j *Jit) {
		j.cacheConfig = config
	}
}

// WithCompileHook sets a function called with every newly compiled block
// before it runs. Hosts use it to learn which memory holds translated code.
func WithCompileHook(hook func(*Block)) Option {
	return func(j *Jit) {
		j.onCompile = hook
	}
}

// New creates an engine. It panics if cb is nil.
func New(cb Callbacks, opts ...Option) *Jit {
	if cb == nil {
		panic("jit: nil callbacks")
	}

	j := &Jit{
		cb:             cb,
		log:            logr.Discard(),
		maxBlockLength: DefaultMaxBlockLength,
		cacheConfig:    cache.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(j)
	}

	j.emitter = NewEmitter(cb, j.maxBlockLength, j.log)
	j.cache = cache.New[*Block](j.cacheConfig)

	return j
}

// Run executes at most n guest instructions. It returns early when an SVC
// or BKPT is executed, an instruction is undefined, or the host calls Halt.
// Run may be called again after it returns to continue execution.
func (j *Jit) Run(n uint64) RunResult {
	j.haltErr, j.faulted = nil, false
	var executed uint64

	for executed < n {
		j.state = StateDispatching
		block := j.dispatch()

		j.state = StateExecuting
		halted := false
		for _, o := range block.ops {
			if executed == n {
				break
			}
			st := o(j)
			if st != statusFault {
				executed++
			}
			if st >= statusHalt || j.haltErr != nil {
				halted = true
				break
			}
			if st == statusExit {
				break
			}
		}

		if halted {
			j.state = StateHalted
			j.stats.Executed += executed
			return RunResult{Executed: executed, State: StateHalted, Err: j.haltErr}
		}
	}

	j.state = StateExhausted
	j.stats.Executed += executed
	return RunResult{Executed: executed, State: StateExhausted}
}

// dispatch returns the block at the current PC, compiling it on a miss.
func (j *Jit) dispatch() *Block {
	pc := j.regs.R[cpu.PC]
	mode := j.regs.Mode()

	if entry := j.cache.Lookup(pc, mode); entry != nil {
		return entry.Payload
	}

	block := j.emitter.Compile(pc, mode)
	j.cache.Insert(pc, mode, block.Covers, block)
	if j.onCompile != nil {
		j.onCompile(block)
	}
	j.stats.BlocksCompiled++
	j.stats.InstructionsCompiled += uint64(block.Len())
	return block
}

// Halt stops the current Run after the executing instruction. A nil err
// is reported as ErrHalted. It is meant to be called from a callback.
func (j *Jit) Halt(err error) {
	if err == nil {
		err = ErrHalted
	}
	j.haltErr = err
}

// Fault stops the current Run like Halt, but the executing instruction is
// not counted as retired. A nil err is reported as ErrHalted.
func (j *Jit) Fault(err error) {
	j.Halt(err)
	j.faulted = true
}

// ClearCache drops translations. With keepWarm, translations whose whole
// range the host reports read-only are kept.
func (j *Jit) ClearCache(keepWarm bool) {
	if !keepWarm {
		j.cache.InvalidateAll()
		j.log.V(1).Info("cleared translation cache")
		return
	}
	dropped := j.cache.InvalidateWritable(j.cb.IsReadOnlyMemory)
	j.log.V(1).Info("cleared writable translations", "dropped", dropped)
}

// InvalidateCacheRange drops every translation overlapping [start, end).
func (j *Jit) InvalidateCacheRange(start, end uint32) {
	dropped := j.cache.InvalidateRange(start, end)
	j.log.V(1).Info("invalidated translations",
		"start", hex(start), "end", hex(end), "dropped", dropped)
}

// Regs returns a copy of R0-R15.
func (j *Jit) Regs() [16]uint32 {
	return j.regs.Regs()
}

// SetRegs replaces R0-R15.
func (j *Jit) SetRegs(regs [16]uint32) {
	j.regs.SetRegs(regs)
}

// Cpsr returns the status word.
func (j *Jit) Cpsr() uint32 {
	return j.regs.Cpsr()
}

// SetCpsr replaces the status word.
func (j *Jit) SetCpsr(word uint32) {
	j.regs.SetCpsr(word)
}

// State returns the execution state.
func (j *Jit) State() State {
	return j.state
}

// Stats returns engine statistics.
func (j *Jit) Stats() Stats {
	s := j.stats
	s.Cache = j.cache.Stats()
	return s
}

// CachedBlocks returns the number of translations in the cache.
func (j *Jit) CachedBlocks() int {
	return j.cache.Len()
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}

// Package host runs guest programs on top of the execution engines. It
// provides the Linux EABI system call layer and the Machine that ties guest
// memory, the engine and the interpreter fallback together.
package host

import (
	"io"
	"os"
)

// ARM EABI Linux syscall numbers.
const (
	SyscallExit      uint32 = 1   // exit(status)
	SyscallRead      uint32 = 3   // read(fd, buf, count)
	SyscallWrite     uint32 = 4   // write(fd, buf, count)
	SyscallOpen      uint32 = 5   // open(path, flags, mode)
	SyscallClose     uint32 = 6   // close(fd)
	SyscallBrk       uint32 = 45  // brk(addr)
	SyscallExitGroup uint32 = 248 // exit_group(status)

	// SyscallCacheFlush is the ARM private cacheflush(start, end, flags).
	SyscallCacheFlush uint32 = 0xF0002
)

// Linux error codes.
const (
	ENOENT = 2  // No such file or directory
	EIO    = 5  // I/O error
	EBADF  = 9  // Bad file descriptor
	ENOSYS = 38 // Function not implemented
)

// Linux open flags.
const (
	oWrOnly = 0x1
	oRdWr   = 0x2
	oCreat  = 0x40
	oTrunc  = 0x200
	oAppend = 0x400
)

// maxPathLength bounds the NUL-terminated strings read from guest memory.
const maxPathLength = 4096

// Registers is the register view a syscall handler operates on. Both the
// JIT and the interpreter provide it.
type Registers interface {
	Regs() [16]uint32
	SetRegs(regs [16]uint32)
}

// ByteMemory is the part of guest memory used by the syscall layer.
type ByteMemory interface {
	Read8(addr uint32) uint8
	Write8(addr uint32, value uint8)
}

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int32
}

// SyscallHandler is the interface for handling EABI syscalls.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register state.
	// ARM EABI Linux convention:
	//   - Syscall number in R7
	//   - Arguments in R0-R5
	//   - Return value in R0
	Handle(regs Registers) SyscallResult
}

// DefaultSyscallHandler implements the syscalls needed by freestanding
// test programs.
type DefaultSyscallHandler struct {
	memory  ByteMemory
	fdTable *FDTable
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	brk     uint32
	flush   func(start, end uint32)
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(memory ByteMemory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		memory:  memory,
		fdTable: NewFDTable(),
		stdout:  stdout,
		stderr:  stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// SetBreak sets the initial program break, normally the end of the
// highest loaded segment.
func (h *DefaultSyscallHandler) SetBreak(addr uint32) {
	h.brk = addr
}

// SetCacheFlusher sets the function cacheflush calls with the guest's
// [start, end) range. Without one, cacheflush succeeds without effect.
func (h *DefaultSyscallHandler) SetCacheFlusher(flush func(start, end uint32)) {
	h.flush = flush
}

// FDTable returns the handler's file descriptor table.
func (h *DefaultSyscallHandler) FDTable() *FDTable {
	return h.fdTable
}

// Handle executes the syscall indicated by the register state.
func (h *DefaultSyscallHandler) Handle(regs Registers) SyscallResult {
	r := regs.Regs()

	var result SyscallResult
	switch r[7] {
	case SyscallExit, SyscallExitGroup:
		result = SyscallResult{Exited: true, ExitCode: int32(r[0])}
	case SyscallRead:
		r[0] = h.read(r[0], r[1], r[2])
	case SyscallWrite:
		r[0] = h.write(r[0], r[1], r[2])
	case SyscallOpen:
		r[0] = h.open(r[0], r[1], r[2])
	case SyscallClose:
		r[0] = h.close(r[0])
	case SyscallBrk:
		if r[0] != 0 && r[0] >= h.brk {
			h.brk = r[0]
		}
		r[0] = h.brk
	case SyscallCacheFlush:
		if h.flush != nil && r[1] > r[0] {
			h.flush(r[0], r[1])
		}
		r[0] = 0
	default:
		r[0] = errno(ENOSYS)
	}

	regs.SetRegs(r)
	return result
}

func (h *DefaultSyscallHandler) read(fd, bufPtr, count uint32) uint32 {
	buf := make([]byte, count)

	var (
		n   int
		err error
	)
	switch {
	case fd == 0 && h.stdin == nil:
		return 0
	case fd == 0:
		n, err = h.stdin.Read(buf)
	default:
		if !h.fdTable.IsOpen(fd) {
			return errno(EBADF)
		}
		n, err = h.fdTable.Read(fd, buf)
	}
	if err != nil && n == 0 {
		if err == io.EOF {
			return 0
		}
		return errno(EIO)
	}

	for i := 0; i < n; i++ {
		h.memory.Write8(bufPtr+uint32(i), buf[i])
	}
	return uint32(n)
}

func (h *DefaultSyscallHandler) write(fd, bufPtr, count uint32) uint32 {
	buf := make([]byte, count)
	for i := uint32(0); i < count; i++ {
		buf[i] = h.memory.Read8(bufPtr + i)
	}

	var (
		n   int
		err error
	)
	switch fd {
	case 1:
		n, err = h.stdout.Write(buf)
	case 2:
		n, err = h.stderr.Write(buf)
	default:
		if !h.fdTable.IsOpen(fd) {
			return errno(EBADF)
		}
		n, err = h.fdTable.Write(fd, buf)
	}
	if err != nil {
		return errno(EIO)
	}
	return uint32(n)
}

func (h *DefaultSyscallHandler) open(pathPtr, flags, mode uint32) uint32 {
	path := h.readString(pathPtr)

	hostFlags := os.O_RDONLY
	switch flags & 0x3 {
	case oWrOnly:
		hostFlags = os.O_WRONLY
	case oRdWr:
		hostFlags = os.O_RDWR
	}
	if flags&oCreat != 0 {
		hostFlags |= os.O_CREATE
	}
	if flags&oTrunc != 0 {
		hostFlags |= os.O_TRUNC
	}
	if flags&oAppend != 0 {
		hostFlags |= os.O_APPEND
	}

	fd, err := h.fdTable.Open(path, hostFlags, os.FileMode(mode&0o777))
	if err != nil {
		if os.IsNotExist(err) {
			return errno(ENOENT)
		}
		return errno(EIO)
	}
	return fd
}

func (h *DefaultSyscallHandler) close(fd uint32) uint32 {
	if err := h.fdTable.Close(fd); err != nil {
		return errno(EBADF)
	}
	return 0
}

func (h *DefaultSyscallHandler) readString(addr uint32) string {
	var buf []byte
	for i := uint32(0); i < maxPathLength; i++ {
		b := h.memory.Read8(addr + i)
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// errno returns -code as the two's complement R0 value.
func errno(code int) uint32 {
	return uint32(-int32(code))
}

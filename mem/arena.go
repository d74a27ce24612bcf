// Package mem defines the guest memory capability consumed by the execution
// engines, together with host-side implementations: a fixed code arena for
// differential tests, a write recorder and a sparse paged memory.
package mem

// FillInstruction is the Thumb encoding of "B ." (branch to self). Arenas are
// filled with it so execution past a generated stream spins in place.
const FillInstruction uint16 = 0xE7FE

// Arena is a fixed code region starting at address 0, owned by one test or
// campaign worker.
//
// Reads inside the region return code bytes (little-endian). Reads outside it
// return values derived from the address, so loads are deterministic without
// backing storage. Writes are not applied; wrap the arena in a Recorder to
// observe them.
type Arena struct {
	code []uint16
}

// NewArena creates an arena holding the given number of halfwords, filled
// with FillInstruction.
func NewArena(halfwords int) *Arena {
	a := &Arena{code: make([]uint16, halfwords)}
	a.Fill(FillInstruction)
	return a
}

// Fill sets every halfword of the arena to value.
func (a *Arena) Fill(value uint16) {
	for i := range a.code {
		a.code[i] = value
	}
}

// Size returns the arena size in bytes.
func (a *Arena) Size() uint32 {
	return uint32(len(a.code)) * 2
}

// Halfwords returns the backing code slice.
func (a *Arena) Halfwords() []uint16 {
	return a.code
}

// SetHalfword stores a Thumb instruction at the given halfword index.
func (a *Arena) SetHalfword(index int, value uint16) {
	a.code[index] = value
}

// SetWord stores an ARM instruction at the given byte address, which must be
// word aligned.
func (a *Arena) SetWord(addr uint32, value uint32) {
	i := addr / 2
	a.code[i] = uint16(value)
	a.code[i+1] = uint16(value >> 16)
}

func (a *Arena) inCode(addr, size uint32) bool {
	return uint64(addr)+uint64(size) <= uint64(a.Size())
}

func (a *Arena) byteAt(addr uint32) uint8 {
	h := a.code[addr/2]
	if addr&1 != 0 {
		return uint8(h >> 8)
	}
	return uint8(h)
}

// Read8 reads a byte.
func (a *Arena) Read8(addr uint32) uint8 {
	if a.inCode(addr, 1) {
		return a.byteAt(addr)
	}
	return uint8(addr)
}

// Read16 reads a halfword.
func (a *Arena) Read16(addr uint32) uint16 {
	if a.inCode(addr, 2) {
		return uint16(a.byteAt(addr)) | uint16(a.byteAt(addr+1))<<8
	}
	return uint16(addr)
}

// Read32 reads a word.
func (a *Arena) Read32(addr uint32) uint32 {
	if a.inCode(addr, 4) {
		return uint32(a.Read16(addr)) | uint32(a.Read16(addr+2))<<16
	}
	return addr
}

// Read64 reads a doubleword.
func (a *Arena) Read64(addr uint32) uint64 {
	if a.inCode(addr, 8) {
		return uint64(a.Read32(addr)) | uint64(a.Read32(addr+4))<<32
	}
	return uint64(addr)
}

// Write8 discards the write.
func (a *Arena) Write8(uint32, uint8) {}

// Write16 discards the write.
func (a *Arena) Write16(uint32, uint16) {}

// Write32 discards the write.
func (a *Arena) Write32(uint32, uint32) {}

// Write64 discards the write.
func (a *Arena) Write64(uint32, uint64) {}

// IsReadOnlyMemory reports whether addr lies inside the code region.
func (a *Arena) IsReadOnlyMemory(addr uint32) bool {
	return addr < a.Size()
}

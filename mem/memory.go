// Package mem defines the guest memory capability consumed by the execution
// engines, together with host-side implementations: a fixed code arena for
// differential tests, a write recorder and a sparse paged memory.
package mem

// Memory is the guest address space supplied by the embedding host.
// The engines never own guest memory; every access goes through this
// interface.
type Memory interface {
	// Read8 reads a byte.
	Read8(addr uint32) uint8
	// Read16 reads a halfword.
	Read16(addr uint32) uint16
	// Read32 reads a word.
	Read32(addr uint32) uint32
	// Read64 reads a doubleword.
	Read64(addr uint32) uint64

	// Write8 writes a byte.
	Write8(addr uint32, value uint8)
	// Write16 writes a halfword.
	Write16(addr uint32, value uint16)
	// Write32 writes a word.
	Write32(addr uint32, value uint32)
	// Write64 writes a doubleword.
	Write64(addr uint32, value uint64)

	// IsReadOnlyMemory reports whether the host guarantees that addr will not
	// change without the host invalidating translations that cover it.
	IsReadOnlyMemory(addr uint32) bool
}

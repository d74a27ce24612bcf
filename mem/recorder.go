// Package mem defines the guest memory capability consumed by the execution
// engines, together with host-side implementations: a fixed code arena for
// differential tests, a write recorder and a sparse paged memory.
package mem

import "fmt"

// WriteRecord is one externally observable memory write.
type WriteRecord struct {
	// Size is the access width in bits (8, 16, 32 or 64).
	Size int
	// Addr is the guest address.
	Addr uint32
	// Value is the value written, zero-extended.
	Value uint64
}

// String formats the record as "w32 [0x00001000] = 0xdeadbeef".
func (r WriteRecord) String() string {
	return fmt.Sprintf("w%d [0x%08x] = 0x%x", r.Size, r.Addr, r.Value)
}

// Recorder wraps a Memory and records every write in order before forwarding
// it. A recorder belongs to one owner; it is not safe for concurrent use.
type Recorder struct {
	inner   Memory
	records []WriteRecord
}

// NewRecorder creates a recorder in front of inner.
func NewRecorder(inner Memory) *Recorder {
	return &Recorder{inner: inner}
}

// Records returns the writes recorded since the last Reset or Take.
func (r *Recorder) Records() []WriteRecord {
	return r.records
}

// Take returns the recorded writes and starts a new, empty log.
func (r *Recorder) Take() []WriteRecord {
	out := r.records
	r.records = nil
	return out
}

// Reset discards the recorded writes.
func (r *Recorder) Reset() {
	r.records = nil
}

// Read8 reads a byte.
func (r *Recorder) Read8(addr uint32) uint8 { return r.inner.Read8(addr) }

// Read16 reads a halfword.
func (r *Recorder) Read16(addr uint32) uint16 { return r.inner.Read16(addr) }

// Read32 reads a word.
func (r *Recorder) Read32(addr uint32) uint32 { return r.inner.Read32(addr) }

// Read64 reads a doubleword.
func (r *Recorder) Read64(addr uint32) uint64 { return r.inner.Read64(addr) }

// Write8 records and forwards a byte write.
func (r *Recorder) Write8(addr uint32, value uint8) {
	r.records = append(r.records, WriteRecord{Size: 8, Addr: addr, Value: uint64(value)})
	r.inner.Write8(addr, value)
}

// Write16 records and forwards a halfword write.
func (r *Recorder) Write16(addr uint32, value uint16) {
	r.records = append(r.records, WriteRecord{Size: 16, Addr: addr, Value: uint64(value)})
	r.inner.Write16(addr, value)
}

// Write32 records and forwards a word write.
func (r *Recorder) Write32(addr uint32, value uint32) {
	r.records = append(r.records, WriteRecord{Size: 32, Addr: addr, Value: uint64(value)})
	r.inner.Write32(addr, value)
}

// Write64 records and forwards a doubleword write.
func (r *Recorder) Write64(addr uint32, value uint64) {
	r.records = append(r.records, WriteRecord{Size: 64, Addr: addr, Value: value})
	r.inner.Write64(addr, value)
}

// IsReadOnlyMemory forwards to the wrapped memory.
func (r *Recorder) IsReadOnlyMemory(addr uint32) bool {
	return r.inner.IsReadOnlyMemory(addr)
}

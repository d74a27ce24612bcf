// Package mem defines the guest memory capability consumed by the execution
// engines, together with host-side implementations: a fixed code arena for
// differential tests, a write recorder and a sparse paged memory.
package mem

// PageSize is the granularity of Paged allocation and protection.
const PageSize = 4096

const pageMask = PageSize - 1

type page struct {
	data     [PageSize]byte
	readOnly bool
	watched  bool
}

// Paged is a sparse little-endian guest address space allocated in 4KiB
// pages on first write. Unmapped reads return zero.
//
// Pages marked read-only still accept writes; the host decides how to react
// through the OnWrite hook, which is how a host signals code-page writes to
// a translation cache.
type Paged struct {
	pages map[uint32]*page

	// OnWrite, when set, is called after every write that lands in a
	// read-only or watched page, with the written range [addr, addr+size).
	OnWrite func(addr, size uint32)
}

// NewPaged creates an empty paged memory.
func NewPaged() *Paged {
	return &Paged{pages: make(map[uint32]*page)}
}

func (m *Paged) lookup(addr uint32) *page {
	return m.pages[addr&^pageMask]
}

func (m *Paged) ensure(addr uint32) *page {
	base := addr &^ pageMask
	p := m.pages[base]
	if p == nil {
		p = &page{}
		m.pages[base] = p
	}
	return p
}

// Load copies data to addr, allocating pages as needed.
func (m *Paged) Load(addr uint32, data []byte) {
	for i, b := range data {
		a := addr + uint32(i)
		m.ensure(a).data[a&pageMask] = b
	}
}

// Zero clears size bytes starting at addr, allocating pages as needed.
func (m *Paged) Zero(addr, size uint32) {
	for i := uint32(0); i < size; i++ {
		a := addr + i
		m.ensure(a).data[a&pageMask] = 0
	}
}

// Protect marks every page overlapping [addr, addr+size) read-only or writable.
func (m *Paged) Protect(addr, size uint32, readOnly bool) {
	if size == 0 {
		return
	}
	first := addr &^ pageMask
	last := (addr + size - 1) &^ pageMask
	for base := first; ; base += PageSize {
		m.ensure(base).readOnly = readOnly
		if base == last {
			break
		}
	}
}

// Read8 reads a byte.
func (m *Paged) Read8(addr uint32) uint8 {
	p := m.lookup(addr)
	if p == nil {
		return 0
	}
	return p.data[addr&pageMask]
}

// Read16 reads a halfword.
func (m *Paged) Read16(addr uint32) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Read32 reads a word.
func (m *Paged) Read32(addr uint32) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Read64 reads a doubleword.
func (m *Paged) Read64(addr uint32) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

func (m *Paged) write(addr uint32, value uint64, size uint32) {
	notify := false
	for i := uint32(0); i < size; i++ {
		p := m.ensure(addr + i)
		p.data[(addr+i)&pageMask] = byte(value >> (8 * i))
		notify = notify || p.readOnly || p.watched
	}
	if notify && m.OnWrite != nil {
		m.OnWrite(addr, size)
	}
}

// Write8 writes a byte.
func (m *Paged) Write8(addr uint32, value uint8) { m.write(addr, uint64(value), 1) }

// Write16 writes a halfword.
func (m *Paged) Write16(addr uint32, value uint16) { m.write(addr, uint64(value), 2) }

// Write32 writes a word.
func (m *Paged) Write32(addr uint32, value uint32) { m.write(addr, uint64(value), 4) }

// Write64 writes a doubleword.
func (m *Paged) Write64(addr uint32, value uint64) { m.write(addr, value, 8) }

// Watch marks the pages overlapping [addr, addr+size) so that writes to
// them reach OnWrite. Watched pages stay writable.
func (m *Paged) Watch(addr, size uint32) {
	if size == 0 {
		return
	}
	first := addr &^ pageMask
	last := (addr + size - 1) &^ pageMask
	for base := first; ; base += PageSize {
		m.ensure(base).watched = true
		if base == last {
			break
		}
	}
}

// IsReadOnlyMemory reports whether addr lies in a read-only page.
func (m *Paged) IsReadOnlyMemory(addr uint32) bool {
	p := m.lookup(addr)
	return p != nil && p.readOnly
}

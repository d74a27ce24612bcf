// Package cache provides the translation cache of the JIT using Akita cache
// components. Translations are keyed by guest address and mode; the Akita
// directory manages the tags and LRU replacement and a parallel slot array
// holds the translated blocks.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/armjit/cpu"
)

// blockSize is the directory block size. Tags advance by blockSize per
// instruction slot, so consecutive instructions fall in consecutive sets.
const blockSize = 2

// Config holds cache configuration parameters.
type Config struct {
	// Capacity is the number of translations the cache holds.
	Capacity int
	// Associativity is the number of ways per set.
	Associativity int
}

// DefaultConfig returns the default translation cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:      4096,
		Associativity: 4,
	}
}

// Entry is a cached translation covering guest addresses [Start, End).
type Entry[T any] struct {
	Start   uint32
	End     uint32
	Mode    cpu.Mode
	Payload T
}

// Statistics holds cache statistics.
type Statistics struct {
	Lookups       uint64
	Hits          uint64
	Misses        uint64
	Inserts       uint64
	Evictions     uint64
	Invalidations uint64
}

// Cache maps (address, mode) to translations.
type Cache[T any] struct {
	config Config

	// Akita cache directory for tag/LRU management
	directory *akitacache.DirectoryImpl

	// Entries indexed by (setID * associativity + wayID)
	slots []Entry[T]

	stats Statistics
}

// New creates a translation cache. It panics if the configuration does not
// describe at least one set.
func New[T any](config Config) *Cache[T] {
	if config.Associativity <= 0 || config.Capacity < config.Associativity {
		panic("cache: capacity must hold at least one set")
	}
	numSets := config.Capacity / config.Associativity

	return &Cache[T]{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			blockSize,
			akitacache.NewLRUVictimFinder(),
		),
		slots: make([]Entry[T], numSets*config.Associativity),
	}
}

// Config returns the cache configuration.
func (c *Cache[T]) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache[T]) Stats() Statistics {
	return c.stats
}

// tag packs the mode above the instruction slot index of addr. ARM
// addresses are word aligned, so their slot is addr/4 rather than addr/2.
func tag(addr uint32, mode cpu.Mode) uint64 {
	slot := addr >> 1
	if !mode.Thumb {
		slot = addr >> 2
	}
	return uint64(mode.Key())<<32 | uint64(slot)*blockSize
}

func (c *Cache[T]) slotIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// Lookup returns the translation starting at addr in mode, or nil.
func (c *Cache[T]) Lookup(addr uint32, mode cpu.Mode) *Entry[T] {
	c.stats.Lookups++

	block := c.directory.Lookup(0, tag(addr, mode))
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return nil
	}

	c.stats.Hits++
	c.directory.Visit(block)
	return &c.slots[c.slotIndex(block)]
}

// Insert caches a translation of [addr, end) in mode, evicting the least
// recently used translation of the set if needed.
func (c *Cache[T]) Insert(addr uint32, mode cpu.Mode, end uint32, payload T) *Entry[T] {
	t := tag(addr, mode)

	block := c.directory.Lookup(0, t)
	if block == nil || !block.IsValid {
		block = c.directory.FindVictim(t)
		if block.IsValid {
			c.stats.Evictions++
		}
	}

	block.Tag = t
	block.IsValid = true
	block.IsDirty = false
	c.directory.Visit(block)
	c.stats.Inserts++

	entry := &c.slots[c.slotIndex(block)]
	*entry = Entry[T]{Start: addr, End: end, Mode: mode, Payload: payload}
	return entry
}

// InvalidateAll drops every translation.
func (c *Cache[T]) InvalidateAll() {
	c.directory.Reset()
	clear(c.slots)
	c.stats.Invalidations++
}

// InvalidateRange drops every translation overlapping [start, end).
// It returns the number of translations dropped.
func (c *Cache[T]) InvalidateRange(start, end uint32) int {
	return c.invalidateIf(func(e *Entry[T]) bool {
		return e.Start < end && start < e.End
	})
}

// InvalidateWritable drops every translation covering an address that
// isReadOnly does not report read-only. It returns the number of
// translations dropped.
func (c *Cache[T]) InvalidateWritable(isReadOnly func(addr uint32) bool) int {
	return c.invalidateIf(func(e *Entry[T]) bool {
		for addr := e.Start; addr < e.End; addr++ {
			if !isReadOnly(addr) {
				return true
			}
		}
		return false
	})
}

func (c *Cache[T]) invalidateIf(drop func(e *Entry[T]) bool) int {
	dropped := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}
			entry := &c.slots[c.slotIndex(block)]
			if drop(entry) {
				block.IsValid = false
				block.IsDirty = false
				*entry = Entry[T]{}
				dropped++
			}
		}
	}
	c.stats.Invalidations++
	return dropped
}

// Len returns the number of cached translations.
func (c *Cache[T]) Len() int {
	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}
	return n
}

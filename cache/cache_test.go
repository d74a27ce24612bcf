package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armjit/cache"
	"github.com/sarchlab/armjit/cpu"
)

var _ = Describe("Cache", func() {
	var (
		c     *cache.Cache[string]
		thumb cpu.Mode
		arm   cpu.Mode
	)

	BeforeEach(func() {
		// Small cache for testing: 8 entries, 2-way
		c = cache.New[string](cache.Config{Capacity: 8, Associativity: 2})
		thumb = cpu.Mode{Thumb: true}
		arm = cpu.Mode{}
	})

	Describe("Lookup", func() {
		It("should miss on a cold cache", func() {
			Expect(c.Lookup(0x100, thumb)).To(BeNil())

			stats := c.Stats()
			Expect(stats.Lookups).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("should hit after insert", func() {
			c.Insert(0x100, thumb, 0x108, "block")

			entry := c.Lookup(0x100, thumb)
			Expect(entry).ToNot(BeNil())
			Expect(entry.Payload).To(Equal("block"))
			Expect(entry.Start).To(Equal(uint32(0x100)))
			Expect(entry.End).To(Equal(uint32(0x108)))
			Expect(c.Stats().Hits).To(Equal(uint64(1)))
		})

		It("should key translations by mode", func() {
			c.Insert(0x100, thumb, 0x104, "thumb")
			c.Insert(0x100, arm, 0x104, "arm")

			Expect(c.Lookup(0x100, thumb).Payload).To(Equal("thumb"))
			Expect(c.Lookup(0x100, arm).Payload).To(Equal("arm"))
			Expect(c.Lookup(0x100, cpu.Mode{Thumb: true, BigEndian: true})).To(BeNil())
		})

		It("should replace an existing translation in place", func() {
			c.Insert(0x100, thumb, 0x104, "old")
			c.Insert(0x100, thumb, 0x106, "new")

			Expect(c.Len()).To(Equal(1))
			Expect(c.Lookup(0x100, thumb).Payload).To(Equal("new"))
		})
	})

	Describe("Eviction", func() {
		It("should evict the least recently used way of a set", func() {
			// 4 sets of 2-byte blocks: addresses 8 bytes apart share a set.
			c.Insert(0x000, thumb, 0x002, "a")
			c.Insert(0x008, thumb, 0x00A, "b")
			c.Lookup(0x000, thumb)
			c.Insert(0x010, thumb, 0x012, "c")

			Expect(c.Lookup(0x000, thumb)).ToNot(BeNil())
			Expect(c.Lookup(0x008, thumb)).To(BeNil())
			Expect(c.Lookup(0x010, thumb)).ToNot(BeNil())
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})

		It("should spread consecutive ARM translations over every set", func() {
			for addr := uint32(0); addr < 32; addr += 4 {
				c.Insert(addr, arm, addr+4, "arm")
			}

			Expect(c.Len()).To(Equal(8))
			Expect(c.Stats().Evictions).To(BeZero())
			Expect(c.Lookup(0x00, arm)).ToNot(BeNil())
			Expect(c.Lookup(0x1C, arm)).ToNot(BeNil())
		})
	})

	Describe("Invalidation", func() {
		BeforeEach(func() {
			// One entry per set.
			c.Insert(0x000, thumb, 0x010, "a")
			c.Insert(0x012, thumb, 0x020, "b")
			c.Insert(0x104, arm, 0x140, "c")
		})

		It("should drop everything", func() {
			c.InvalidateAll()
			Expect(c.Len()).To(Equal(0))
			Expect(c.Lookup(0x000, thumb)).To(BeNil())
		})

		It("should be idempotent", func() {
			c.InvalidateAll()
			c.InvalidateAll()
			Expect(c.Len()).To(Equal(0))
		})

		It("should drop only translations overlapping a range", func() {
			Expect(c.InvalidateRange(0x00E, 0x014)).To(Equal(2))
			Expect(c.Lookup(0x104, arm)).ToNot(BeNil())
		})

		It("should treat the range end as exclusive", func() {
			Expect(c.InvalidateRange(0x020, 0x104)).To(Equal(0))
			Expect(c.Len()).To(Equal(3))
		})

		It("should keep translations of read-only memory", func() {
			dropped := c.InvalidateWritable(func(addr uint32) bool {
				return addr < 0x100
			})
			Expect(dropped).To(Equal(1))
			Expect(c.Lookup(0x000, thumb)).ToNot(BeNil())
			Expect(c.Lookup(0x012, thumb)).ToNot(BeNil())
			Expect(c.Lookup(0x104, arm)).To(BeNil())
		})
	})

	It("should panic on an empty configuration", func() {
		Expect(func() {
			cache.New[int](cache.Config{Capacity: 0, Associativity: 4})
		}).To(Panic())
	})
})

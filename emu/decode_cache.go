package emu

// decodeCacheSets is the number of sets per instruction set.
const decodeCacheSets = 64

// decodeWay holds one cached decode.
type decodeWay struct {
	valid bool
	raw   uint32
	exec  execFunc
}

// decodeSet is a 2-way set with a most-recently-used indicator.
type decodeSet struct {
	ways          [2]decodeWay
	firstUsedLast bool
}

// decodeCache is a 2-way set-associative cache of decoded instructions,
// keyed by the raw encoding. Decoded functions receive their address when
// executed, so the same encoding at different addresses shares an entry.
type decodeCache struct {
	arm   [decodeCacheSets]decodeSet
	thumb [decodeCacheSets]decodeSet
}

func newDecodeCache() *decodeCache {
	return &decodeCache{}
}

func (c *decodeCache) set(raw uint32, thumb bool) *decodeSet {
	if thumb {
		return &c.thumb[(raw^(raw>>8))%decodeCacheSets]
	}
	return &c.arm[(raw^(raw>>27))%decodeCacheSets]
}

// lookup returns the cached function for raw, or nil.
func (c *decodeCache) lookup(raw uint32, thumb bool) execFunc {
	set := c.set(raw, thumb)
	for i := range set.ways {
		way := &set.ways[i]
		if way.valid && way.raw == raw {
			set.firstUsedLast = i == 0
			return way.exec
		}
	}
	return nil
}

// store caches exec for raw, replacing the least recently used way.
func (c *decodeCache) store(raw uint32, thumb bool, exec execFunc) {
	set := c.set(raw, thumb)
	victim := 0
	switch {
	case !set.ways[0].valid:
	case !set.ways[1].valid:
		victim = 1
	case set.firstUsedLast:
		victim = 1
	}
	set.ways[victim] = decodeWay{valid: true, raw: raw, exec: exec}
	set.firstUsedLast = victim == 0
}

func (c *decodeCache) clear() {
	*c = decodeCache{}
}

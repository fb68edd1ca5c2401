package proc

import (
	lru "github.com/hashicorp/golang-lru"
)

const pageSize = 0x1000

// pageCache caches whole pages of target memory. The inspected process is
// paused, so its memory never changes while a cache is alive.
type pageCache struct {
	mem   MemoryReader
	pages *lru.Cache
}

func newPageCache(mem MemoryReader, size int) *pageCache {
	pages, err := lru.New(size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &pageCache{mem: mem, pages: pages}
}

// page returns the page starting at base or nil if it can not be read in
// its entirety.
func (c *pageCache) page(base uint64) []byte {
	if v, ok := c.pages.Get(base); ok {
		return v.([]byte)
	}
	buf := make([]byte, pageSize)
	n, err := c.mem.ReadMemory(buf, base)
	if err != nil || n != pageSize {
		return nil
	}
	c.pages.Add(base, buf)
	return buf
}

// ReadMemory implements MemoryReader. Reads that touch a page that is not
// fully mapped are forwarded to the underlying reader.
func (c *pageCache) ReadMemory(buf []byte, addr uint64) (int, error) {
	n := 0
	for n < len(buf) {
		cur := addr + uint64(n)
		base := cur &^ (pageSize - 1)
		p := c.page(base)
		if p == nil {
			m, err := c.mem.ReadMemory(buf[n:], cur)
			return n + m, err
		}
		n += copy(buf[n:], p[cur-base:])
	}
	return n, nil
}

// Len returns the number of cached pages.
func (c *pageCache) Len() int {
	return c.pages.Len()
}

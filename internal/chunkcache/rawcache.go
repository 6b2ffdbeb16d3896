package chunkcache

import (
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
)

// RawCache is the storage a ChunkCache writes assembled bytes into. The
// control-path default is a memory-backed cache (spec.md §4.5 step 4,
// "allocate a memory-backed raw cache and attach (lazy)"); a disk-backed
// implementation can satisfy the same interface without the cache or codec
// layers knowing the difference.
type RawCache interface {
	WriteAt(p []byte, off int64) (int, error)
	ReadAt(p []byte, off int64) (int, error)
	Len() int64
}

// MemRawCache is a growable, mutex-guarded in-memory RawCache.
type MemRawCache struct {
	mu  sync.RWMutex
	buf []byte
}

// NewMemRawCache allocates a memory-backed cache, optionally pre-sized.
func NewMemRawCache(size uint32) *MemRawCache {
	return &MemRawCache{buf: make([]byte, size)}
}

func (c *MemRawCache) WriteAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(c.buf)) {
		grown := make([]byte, end)
		copy(grown, c.buf)
		c.buf = grown
	}
	copy(c.buf[off:end], p)
	return len(p), nil
}

func (c *MemRawCache) ReadAt(p []byte, off int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if off >= int64(len(c.buf)) {
		return 0, cyfserr.New(cyfserr.InvalidInput, "raw-cache: read offset past end")
	}
	n := copy(p, c.buf[off:])
	return n, nil
}

func (c *MemRawCache) Len() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.buf))
}

// Bytes returns a snapshot copy of the full backing buffer.
func (c *MemRawCache) Bytes() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

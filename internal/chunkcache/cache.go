// Package chunkcache implements the per-chunk cache that sits between a
// piece decoder and the range-limited readers the local NDN processor and
// downloader both depend on (spec.md §4.2). Grounded on the teacher's
// pkg/content/types.go ChunkStore/ContentStats shape (a storage interface
// plus a small stats struct returned by value) and errors.go's pattern of a
// mutex-guarded struct with a copy-out snapshot method, generalized here
// from "store by CID" to "assemble one chunk's pieces, then serve reads."
package chunkcache

import (
	"io"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/codec"
	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// State mirrors the decoder's Pending/Ready/Err lifecycle, named for the
// cache's own two live states plus terminal failure (spec.md §4.2:
// "Decoding{pushed_count, max_index_seen, lost_ranges, scratch_buf} |
// Ready{bytes}").
type State int

const (
	StateDecoding State = iota
	StateReady
	StateErr
)

func (s State) String() string {
	switch s {
	case StateDecoding:
		return "decoding"
	case StateReady:
		return "ready"
	case StateErr:
		return "err"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of cache progress, copied out under
// lock so callers never observe a struct mid-mutation.
type Stats struct {
	State     State
	Pushed    int
	MaxIndex  uint64
	HasMax    bool
	LostCount int
}

// ChunkCache holds one chunk's decode-in-progress or completed state. The
// `stream` decoder is shared with the downloader (it is the same object a
// session pushes pieces into); the cache's job is to own the backing store
// those pieces assemble into and to serve readers once Ready.
type ChunkCache struct {
	chunkID ids.ChunkId
	payload uint32

	mu     sync.RWMutex
	state  State
	err    error
	stream *codec.StreamDecoder
	raw    RawCache
	loaded bool
	waiters []chan struct{}
}

// New builds a cache for chunkID; it is not attached to storage until Load
// is called.
func New(chunkID ids.ChunkId, payload uint32) *ChunkCache {
	c := &ChunkCache{
		chunkID: chunkID,
		payload: payload,
		stream:  codec.NewStreamDecoder(chunkID, chunkID.Len, payload),
	}
	if c.stream.State() == codec.StateReady {
		c.state = StateReady
	}
	return c
}

// Load attaches a RawCache. When raw is nil and lazy is true, a
// memory-backed cache is allocated (spec.md §4.5 step 4).
func (c *ChunkCache) Load(lazy bool, raw RawCache) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return cyfserr.New(cyfserr.AlreadyExists, "chunk cache already loaded")
	}
	if raw == nil {
		if !lazy {
			return cyfserr.New(cyfserr.InvalidInput, "chunk cache: no raw cache given and lazy=false")
		}
		raw = NewMemRawCache(c.chunkID.Len)
	}
	c.raw = raw
	c.loaded = true
	return nil
}

// Loaded reports whether storage has been attached.
func (c *ChunkCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Stream exposes the shared decoder so a downloader/session can push pieces
// directly into it.
func (c *ChunkCache) Stream() *codec.StreamDecoder {
	return c.stream
}

// PushPiece feeds one piece into the shared decoder, writes its bytes into
// the backing store immediately (so partial reads can serve already-decoded
// ranges before the chunk is fully Ready), and transitions the cache to
// Ready once the decoder completes.
func (c *ChunkCache) PushPiece(index uint64, payload []byte) (ready bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateErr {
		return false, c.err
	}
	if !c.loaded {
		return false, cyfserr.New(cyfserr.ErrorState, "chunk cache: push before load")
	}

	accepted, streamReady, err := c.stream.PushPiece(index, payload)
	if err != nil {
		c.fail(err)
		return false, err
	}
	if accepted {
		offset := index * uint64(c.payload)
		if _, werr := c.raw.WriteAt(payload, int64(offset)); werr != nil {
			wrapped := cyfserr.Wrap(cyfserr.IoError, werr, "chunk cache: write piece to raw store")
			c.fail(wrapped)
			return false, wrapped
		}
	}
	if streamReady {
		c.state = StateReady
		c.wakeLocked()
	}
	return streamReady, nil
}

// fail transitions the cache to Err and wakes pending readers with the same
// error (spec.md §4.2 writer contract: "err poisons the writer; readers
// pending on it must receive the same error").
func (c *ChunkCache) fail(err error) {
	c.state = StateErr
	c.err = err
	c.wakeLocked()
}

func (c *ChunkCache) wakeLocked() {
	for _, w := range c.waiters {
		close(w)
	}
	c.waiters = nil
}

// State reports the cache's current lifecycle state.
func (c *ChunkCache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// StatsSnapshot copies out progress counters under lock.
func (c *ChunkCache) StatsSnapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{State: c.state, Pushed: c.stream.Pushed(), LostCount: len(c.stream.LostRanges())}
	if idx, ok := c.stream.MaxIndex(); ok {
		s.MaxIndex, s.HasMax = idx, true
	}
	return s
}

// Reader returns an AsyncRead+Seek view (io.ReadSeeker) over the complete
// chunk. The cache checks the chunk's byte count before Ready, not its
// content hash. It blocks until the cache reaches Ready or Err; it takes
// no context and has no timeout of its own.
func (c *ChunkCache) Reader() (io.ReadSeeker, error) {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		raw, length := c.raw, int64(c.chunkID.Len)
		c.mu.Unlock()
		return newRawCacheReader(raw, length), nil
	case StateErr:
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	wait := make(chan struct{})
	c.waiters = append(c.waiters, wait)
	c.mu.Unlock()

	<-wait

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateErr {
		return nil, c.err
	}
	return newRawCacheReader(c.raw, int64(c.chunkID.Len)), nil
}

// Write appends whole buffers directly (the put path, bypassing the piece
// decoder entirely — spec.md §4.2 writer contract). It is append-only:
// bytes accumulate at the current write offset.
type Writer struct {
	cache  *ChunkCache
	offset int64
	err    error
}

// NewWriter opens an append-only writer over cache. cache must already be
// loaded.
func (c *ChunkCache) NewWriter() (*Writer, error) {
	if !c.Loaded() {
		return nil, cyfserr.New(cyfserr.ErrorState, "chunk cache: writer before load")
	}
	return &Writer{cache: c}, nil
}

// Write appends p at the writer's current offset.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.cache.raw.WriteAt(p, w.offset)
	w.offset += int64(n)
	if err != nil {
		wrapped := cyfserr.Wrap(cyfserr.IoError, err, "chunk cache writer: write")
		w.err = wrapped
		return n, wrapped
	}
	return n, nil
}

// Finish validates that the total bytes written equal chunk_id.len and
// transitions the cache to Ready (spec.md §4.2: "appending must preserve
// chunk_id.len equals total bytes; on mismatch at finish, surface
// InvalidData").
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	if uint32(w.offset) != w.cache.chunkID.Len {
		err := cyfserr.Newf(cyfserr.InvalidData, "chunk cache writer: wrote %d bytes, chunk_id declares %d", w.offset, w.cache.chunkID.Len)
		w.cache.mu.Lock()
		w.cache.fail(err)
		w.cache.mu.Unlock()
		return err
	}
	w.cache.mu.Lock()
	w.cache.state = StateReady
	w.cache.wakeLocked()
	w.cache.mu.Unlock()
	return nil
}

// Err poisons the writer and the cache with err; pending readers observe
// the same failure (spec.md §4.2).
func (w *Writer) Err(err error) {
	w.err = err
	w.cache.mu.Lock()
	w.cache.fail(err)
	w.cache.mu.Unlock()
}

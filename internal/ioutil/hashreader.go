package ioutil

import (
	"io"

	"lukechampine.com/blake3"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// ChunkReaderWithHash incrementally hashes every byte read from inner and
// checks the result against chunkID.Hash at EOF (spec.md §4.3). Unlike the
// teacher's integrity helpers, which hash a file in one pass and so never
// have to think about seeking, this wrapper is re-seekable: any Seek call
// resets the running hash and byte count rather than silently producing a
// hash that no longer reflects the bytes actually delivered to the caller.
// A prior cut of this type let Seek pass through untouched, which meant a
// reader that sought partway through a read would report a spuriously
// matching hash over a truncated byte sequence; the reset is the fix.
type ChunkReaderWithHash struct {
	inner   io.ReadSeeker
	chunkID ids.ChunkId

	hasher  *blake3.Hasher
	read    uint64
	checked bool
	err     error
}

// NewChunkReaderWithHash wraps inner, verifying its bytes against chunkID on
// EOF.
func NewChunkReaderWithHash(inner io.ReadSeeker, chunkID ids.ChunkId) *ChunkReaderWithHash {
	return &ChunkReaderWithHash{
		inner:   inner,
		chunkID: chunkID,
		hasher:  blake3.New(32, nil),
	}
}

func (r *ChunkReaderWithHash) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.inner.Read(p)
	if n > 0 {
		r.hasher.Write(p[:n])
		r.read += uint64(n)
	}
	if err == io.EOF {
		if verr := r.verify(); verr != nil {
			r.err = verr
			return n, verr
		}
	}
	return n, err
}

func (r *ChunkReaderWithHash) verify() error {
	if r.checked {
		return nil
	}
	r.checked = true
	if r.read != uint64(r.chunkID.Len) {
		return cyfserr.Newf(cyfserr.InvalidData, "chunk-reader-with-hash: read %d bytes, expected %d", r.read, r.chunkID.Len)
	}
	var sum [32]byte
	copy(sum[:], r.hasher.Sum(nil))
	if sum != r.chunkID.Hash {
		return cyfserr.New(cyfserr.InvalidData, "chunk-reader-with-hash: hash mismatch at EOF")
	}
	return nil
}

// Seek resets the running hash: any bytes hashed so far no longer
// correspond to a contiguous prefix of what the caller will read next, so
// the only correct response is to start hashing over from wherever the seek
// lands.
func (r *ChunkReaderWithHash) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.inner.Seek(offset, whence)
	if err != nil {
		return pos, cyfserr.Wrap(cyfserr.IoError, err, "chunk-reader-with-hash: seek")
	}
	r.hasher = blake3.New(32, nil)
	r.read = 0
	r.checked = false
	r.err = nil
	return pos, nil
}

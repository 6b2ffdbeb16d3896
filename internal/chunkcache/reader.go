package chunkcache

import (
	"io"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
)

// rawCacheReader adapts a RawCache of known total length to io.ReadSeeker,
// the view range-limited readers (spec.md §4.3) compose over.
type rawCacheReader struct {
	raw    RawCache
	length int64
	pos    int64
}

func newRawCacheReader(raw RawCache, length int64) *rawCacheReader {
	return &rawCacheReader{raw: raw, length: length}
}

func (r *rawCacheReader) Read(p []byte) (int, error) {
	if r.pos >= r.length {
		return 0, io.EOF
	}
	remaining := r.length - r.pos
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.raw.ReadAt(p, r.pos)
	r.pos += int64(n)
	if err != nil {
		return n, err
	}
	if r.pos >= r.length {
		return n, nil
	}
	return n, nil
}

func (r *rawCacheReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.length + offset
	default:
		return 0, cyfserr.Newf(cyfserr.InvalidInput, "raw-cache-reader: unknown whence %d", whence)
	}
	if target < 0 {
		return 0, cyfserr.New(cyfserr.InvalidInput, "raw-cache-reader: seek before start")
	}
	if target > r.length {
		target = r.length
	}
	r.pos = target
	return target, nil
}

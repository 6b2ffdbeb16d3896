// Package ioutil implements the range-limited and hash-verifying reader
// wrappers that compose over a chunk's raw backing store (spec.md §4.3).
// Generalized from the teacher's incremental-hashing helpers in
// pkg/content/integrity.go, which buffer-and-hash whole files; here the same
// idea is reshaped into an io.ReadSeeker decorator so it composes with
// partial-range gets.
package ioutil

import (
	"io"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
)

// ReaderWithLimit fixes a start offset and length over an inner
// io.ReadSeeker, presenting a [0, limit) window (spec.md §4.3).
type ReaderWithLimit struct {
	inner    io.ReadSeeker
	start    int64
	limit    int64
	consumed int64
}

// NewReaderWithLimit wraps inner, exposing only [start, start+limit).
func NewReaderWithLimit(inner io.ReadSeeker, start, limit int64) (*ReaderWithLimit, error) {
	if _, err := inner.Seek(start, io.SeekStart); err != nil {
		return nil, cyfserr.Wrap(cyfserr.IoError, err, "reader-with-limit: seek to start")
	}
	return &ReaderWithLimit{inner: inner, start: start, limit: limit}, nil
}

// Read returns at most limit-consumed bytes, then io.EOF.
func (r *ReaderWithLimit) Read(p []byte) (int, error) {
	remaining := r.limit - r.consumed
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.inner.Read(p)
	r.consumed += int64(n)
	return n, err
}

// Seek implements clamped seeking per spec.md §4.3: Start(p) maps to
// inner.Seek(start+p); End(off) maps to inner.Seek((start+limit)+off);
// Current(off) passes through. Seeking before start fails InvalidInput;
// seeking past end clamps to end.
func (r *ReaderWithLimit) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = r.start + offset
		if target < r.start {
			return 0, cyfserr.New(cyfserr.InvalidInput, "reader-with-limit: seek before start")
		}
	case io.SeekEnd:
		target = r.start + r.limit + offset
		if target < r.start {
			return 0, cyfserr.New(cyfserr.InvalidInput, "reader-with-limit: seek before start")
		}
	case io.SeekCurrent:
		cur, err := r.inner.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, cyfserr.Wrap(cyfserr.IoError, err, "reader-with-limit: query current offset")
		}
		target = cur + offset
		if target < r.start {
			return 0, cyfserr.New(cyfserr.InvalidInput, "reader-with-limit: seek before start")
		}
	default:
		return 0, cyfserr.Newf(cyfserr.InvalidInput, "reader-with-limit: unknown whence %d", whence)
	}

	end := r.start + r.limit
	if target > end {
		target = end
	}

	if _, err := r.inner.Seek(target, io.SeekStart); err != nil {
		return 0, cyfserr.Wrap(cyfserr.IoError, err, "reader-with-limit: seek")
	}
	r.consumed = target - r.start
	return target - r.start, nil
}

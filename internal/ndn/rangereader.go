package ndn

import "io"

// rangeConcatReader serves a sequence of byte ranges from a single
// io.ReadSeeker back to back as one stream, seeking to each range's start
// lazily — right before its bytes are first needed — so multiple
// non-overlapping ranges can be composed over one shared underlying reader
// without their construction order racing each other's Seek calls (spec.md
// §4.9.3 "Ranges (single or multiple, byte-addressed) are served via
// composed ReaderWithLimits").
type rangeConcatReader struct {
	inner     io.ReadSeeker
	ranges    []ByteRange
	idx       int
	remaining int64
}

func newRangeConcatReader(inner io.ReadSeeker, ranges []ByteRange) *rangeConcatReader {
	return &rangeConcatReader{inner: inner, ranges: ranges}
}

func (r *rangeConcatReader) Read(p []byte) (int, error) {
	for r.remaining == 0 {
		if r.idx >= len(r.ranges) {
			return 0, io.EOF
		}
		rng := r.ranges[r.idx]
		r.idx++
		if rng.Len() == 0 {
			continue
		}
		if _, err := r.inner.Seek(rng.Start, io.SeekStart); err != nil {
			return 0, err
		}
		r.remaining = rng.Len()
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.inner.Read(p)
	r.remaining -= int64(n)
	return n, err
}

// totalRangeLen sums the declared lengths of ranges, or returns fallback
// when ranges is empty (spec.md §4.9.4 "compute total_size (sum of ranges
// or file.len); if zero, return an empty reader").
func totalRangeLen(ranges []ByteRange, fallback int64) int64 {
	if len(ranges) == 0 {
		return fallback
	}
	var total int64
	for _, r := range ranges {
		total += r.Len()
	}
	return total
}

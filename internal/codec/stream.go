package codec

import (
	"sort"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// StreamEncoder produces literal byte-slice pieces of a chunk, one per
// fixed-size window (spec.md §4.1.1). It is a thin, stateless view over the
// chunk bytes — generalized from the teacher's ChunkData/ChunkReader
// splitting loop (pkg/content/chunker.go) into an index-addressable form so
// a session can request an arbitrary piece, not just "the next one."
type StreamEncoder struct {
	chunkID ids.ChunkId
	data    []byte
	payload uint32
}

// NewStreamEncoder builds an encoder over data for the given ChunkId and
// maximum payload size.
func NewStreamEncoder(chunkID ids.ChunkId, data []byte, payload uint32) *StreamEncoder {
	if payload == 0 {
		payload = DefaultPayload
	}
	return &StreamEncoder{chunkID: chunkID, data: data, payload: payload}
}

// EndIndex is the last valid piece index for this chunk.
func (e *StreamEncoder) EndIndex() uint32 {
	return EndIndex(uint32(len(e.data)), e.payload)
}

// PieceCount is the number of pieces this chunk splits into (zero for an
// empty chunk, per spec.md §8 boundary behaviors).
func (e *StreamEncoder) PieceCount() int {
	if len(e.data) == 0 {
		return 0
	}
	return int(e.EndIndex()) + 1
}

// Encode produces the payload for piece index i: min(payload, len-i*payload).
func (e *StreamEncoder) Encode(index uint64) (Piece, error) {
	if len(e.data) == 0 {
		return Piece{}, cyfserr.New(cyfserr.InvalidInput, "encoding piece of empty chunk")
	}
	end := uint64(e.EndIndex())
	if index > end {
		return Piece{}, cyfserr.Newf(cyfserr.InvalidInput, "piece index %d exceeds end index %d", index, end)
	}
	start := index * uint64(e.payload)
	stop := start + uint64(e.payload)
	if stop > uint64(len(e.data)) {
		stop = uint64(len(e.data))
	}
	buf := make([]byte, stop-start)
	copy(buf, e.data[start:stop])

	endIdx := uint32(end)
	return Piece{
		ChunkID: e.chunkID,
		Index:   index,
		Desc:    Desc{Kind: KindStream, Payload: e.payload, EndIdx: &endIdx},
		Payload: buf,
	}, nil
}

// lostRange is a half-open [Start, End) range of not-yet-seen indices.
type lostRange struct {
	Start, End uint64
}

// StreamDecoder accepts stream pieces in arbitrary order and tracks
// completeness via a max-index watermark plus a sorted, non-overlapping
// list of lost ranges (spec.md §4.1.1). This is the spec's core testable
// state machine (§8 invariants 1-2, end-to-end scenario 1).
type StreamDecoder struct {
	chunkID  ids.ChunkId
	payload  uint32
	endIndex uint64

	pushed    int
	maxIndex  *uint64
	lost      []lostRange
	pieces    map[uint64][]byte
	ready     bool
	assembled []byte
}

// NewStreamDecoder builds a decoder for a chunk of the given length and
// payload size. A zero-length chunk is immediately Ready (spec.md §8).
func NewStreamDecoder(chunkID ids.ChunkId, chunkLen, payload uint32) *StreamDecoder {
	if payload == 0 {
		payload = DefaultPayload
	}
	d := &StreamDecoder{
		chunkID:  chunkID,
		payload:  payload,
		endIndex: uint64(EndIndex(chunkLen, payload)),
		pieces:   make(map[uint64][]byte),
	}
	if chunkLen == 0 {
		d.ready = true
		d.assembled = []byte{}
	}
	return d
}

// PushPiece ingests one piece. It returns whether the piece was newly
// accepted (not a duplicate/out-of-range) and whether the decoder is now
// Ready. Pieces with index > end_index are silently ignored (spec.md §4.1.1,
// §8 boundary behaviors).
func (d *StreamDecoder) PushPiece(index uint64, payload []byte) (accepted bool, ready bool, err error) {
	if d.ready {
		// Ready: pushing further pieces is a no-op (spec.md §8 invariant 1).
		return false, true, nil
	}
	if index > d.endIndex {
		return false, false, nil
	}
	if _, dup := d.pieces[index]; dup {
		d.updateLostRanges(index) // idempotent re-observation; no-op by construction below
		return false, false, nil
	}

	d.pieces[index] = payload
	d.pushed++
	d.updateLostRanges(index)

	if index == d.endIndex && len(payload) > int(d.payload) {
		return true, false, cyfserr.New(cyfserr.InvalidData, "tail piece larger than payload max")
	}

	if d.maxIndex != nil && *d.maxIndex == d.endIndex && len(d.lost) == 0 {
		d.assemble()
		return true, true, nil
	}
	return true, false, nil
}

// updateLostRanges implements the lost-range maintenance algorithm of
// spec.md §4.1.1 verbatim.
func (d *StreamDecoder) updateLostRanges(i uint64) {
	if d.maxIndex == nil {
		m := i
		d.maxIndex = &m
		if i > 0 {
			d.lost = append(d.lost, lostRange{0, i})
		}
		return
	}
	max := *d.maxIndex
	switch {
	case i > max:
		if i > max+1 {
			d.lost = append(d.lost, lostRange{max + 1, i})
		}
		*d.maxIndex = i
	case i == max:
		// ignore
	default:
		d.removeFromLost(i)
	}
}

func (d *StreamDecoder) removeFromLost(i uint64) {
	for idx, r := range d.lost {
		if i < r.Start || i >= r.End {
			continue
		}
		switch {
		case r.Start == i && r.End == i+1:
			d.lost = append(d.lost[:idx], d.lost[idx+1:]...)
		case r.Start == i:
			d.lost[idx].Start = i + 1
		case r.End == i+1:
			d.lost[idx].End = i
		default:
			newRanges := []lostRange{{r.Start, i}, {i + 1, r.End}}
			d.lost = append(d.lost[:idx], append(newRanges, d.lost[idx+1:]...)...)
		}
		return
	}
	// Not found in any lost range: duplicate index, ignore.
}

func (d *StreamDecoder) assemble() {
	total := 0
	for _, p := range d.pieces {
		total += len(p)
	}
	buf := make([]byte, total)
	offset := uint64(0)
	for idx := uint64(0); idx <= d.endIndex; idx++ {
		p := d.pieces[idx]
		copy(buf[offset:], p)
		offset += uint64(len(p))
	}
	d.ready = true
	d.assembled = buf
	d.pieces = nil // release piece buffers once assembled
}

// State reports Pending/Ready; a stream decoder never enters Err on its own
// and does not check the chunk's content hash (ioutil.ChunkReaderWithHash is
// the reader that does).
func (d *StreamDecoder) State() State {
	if d.ready {
		return StateReady
	}
	return StatePending
}

// ChunkContent returns the assembled bytes once Ready.
func (d *StreamDecoder) ChunkContent() ([]byte, bool) {
	if !d.ready {
		return nil, false
	}
	return d.assembled, true
}

// Pushed is the count of distinct pieces accepted so far.
func (d *StreamDecoder) Pushed() int { return d.pushed }

// MaxIndex is the highest piece index observed, if any.
func (d *StreamDecoder) MaxIndex() (uint64, bool) {
	if d.maxIndex == nil {
		return 0, false
	}
	return *d.maxIndex, true
}

// LostRanges returns a defensive copy of the sorted lost-range list, for
// tests and diagnostics (spec.md §8 invariant 2).
func (d *StreamDecoder) LostRanges() [][2]uint64 {
	out := make([][2]uint64, len(d.lost))
	for i, r := range d.lost {
		out[i] = [2]uint64{r.Start, r.End}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

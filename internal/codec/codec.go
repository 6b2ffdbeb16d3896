// Package codec implements the stream and Raptor (fountain) piece codecs
// that translate chunk bytes into indexed pieces and back (spec.md §4.1).
// Generalized from the teacher's pkg/content/chunker.go (splitting a byte
// sequence into fixed-size, offset-addressed pieces) into a pair of
// arbitrary-order decoders with gap tracking and loss tolerance.
package codec

import (
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// State is the lifecycle of a decoder (spec.md §4.1.2).
type State int

const (
	StatePending State = iota
	StateReady
	StateErr
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateErr:
		return "err"
	default:
		return "unknown"
	}
}

// Desc identifies a codec and its parameters, carried in the piece envelope
// (spec.md §6.1). Kind selects Stream or Raptor; EndIdx/K are filled lazily
// by FillValues once the chunk's length is known (downloader §4.5 step 5).
type Desc struct {
	Kind    Kind
	Payload uint32 // max payload bytes per piece, 0 == unset/unknown
	EndIdx  *uint32
	K       *uint32 // Raptor: number of source symbols
}

type Kind int

const (
	KindUnknown Kind = iota
	KindStream
	KindRaptor
)

// FillValues normalizes an Unknown/partial Desc against a concrete chunk
// length, matching the downloader's normalization step (spec.md §4.5 step
// 5): "Unknown -> Stream(None,None,None).fill_values(chunk)".
func (d Desc) FillValues(chunkLen uint32) Desc {
	out := d
	if out.Kind == KindUnknown {
		out.Kind = KindStream
	}
	if out.Payload == 0 {
		out.Payload = DefaultPayload
	}
	switch out.Kind {
	case KindStream:
		end := EndIndex(chunkLen, out.Payload)
		out.EndIdx = &end
	case KindRaptor:
		k := uint32(NumSourceSymbols(chunkLen, out.Payload))
		out.K = &k
	}
	return out
}

// DefaultPayload is the protocol-agreed maximum piece payload.
const DefaultPayload = 16 * 1024

// EndIndex computes the stream codec's end_index: ceil(chunkLen/payload)-1.
// A zero-length chunk has EndIndex 0 by convention but yields zero pieces
// (callers must special-case length 0 — see StreamEncoder.PieceCount).
func EndIndex(chunkLen, payload uint32) uint32 {
	if chunkLen == 0 {
		return 0
	}
	n := (chunkLen + payload - 1) / payload
	return n - 1
}

// NumSourceSymbols computes ceil(chunkLen/payload), the Raptor k parameter.
func NumSourceSymbols(chunkLen, payload uint32) int {
	if chunkLen == 0 {
		return 0
	}
	return int((chunkLen + payload - 1) / payload)
}

// Piece is a single codec-slice of a chunk (spec.md §3).
type Piece struct {
	ChunkID ids.ChunkId
	Index   uint64
	Desc    Desc
	Payload []byte
}

// Decoder is the small capability set every codec decoder exposes (spec.md
// §9 design note: "tagged variants Codec{Stream, Raptor}"). Both concrete
// decoders below satisfy it; callers that don't need dynamic dispatch use
// the concrete type directly to stay off the vtable on the hot piece-ingest
// path, per the same design note.
type Decoder interface {
	// PushPiece ingests one piece, reporting whether it was newly accepted
	// (not a duplicate or out-of-range) and whether the chunk is now Ready.
	PushPiece(index uint64, payload []byte) (accepted bool, ready bool, err error)
	State() State
	ChunkContent() ([]byte, bool)
}

package codec

import (
	"sync"

	"github.com/vivint/infectious"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// raptorRedundancy controls how many extra shares the encoder precomputes
// beyond the k required to reconstruct. vivint/infectious implements
// systematic Reed-Solomon erasure coding rather than a true rateless
// fountain code, so "unbounded index" (spec.md §3) is approximated here by
// a generous, fixed redundancy factor; see DESIGN.md for the grounding
// rationale. A real deployment tuning for a specific loss profile would
// raise this.
const raptorRedundancy = 2

// RaptorEncoder precomputes fountain-code shares for a chunk asynchronously
// and answers piece requests once precompute completes (spec.md §4.1.2).
type RaptorEncoder struct {
	chunkID ids.ChunkId
	k       int
	payload uint32

	mu     sync.Mutex
	state  State
	err    error
	shares map[uint64][]byte
	ready  chan struct{}
}

// NewRaptorEncoder starts asynchronous precompute for data and returns
// immediately; callers must WaitReady (or poll State) before requesting
// pieces.
func NewRaptorEncoder(chunkID ids.ChunkId, data []byte, payload uint32) *RaptorEncoder {
	if payload == 0 {
		payload = DefaultPayload
	}
	e := &RaptorEncoder{
		chunkID: chunkID,
		k:       NumSourceSymbols(uint32(len(data)), payload),
		payload: payload,
		state:   StatePending,
		ready:   make(chan struct{}),
	}
	go e.precompute(data)
	return e
}

func (e *RaptorEncoder) precompute(data []byte) {
	defer close(e.ready)

	if e.k == 0 {
		e.mu.Lock()
		e.state = StateReady
		e.shares = map[uint64][]byte{}
		e.mu.Unlock()
		return
	}

	padded := make([]byte, e.k*int(e.payload))
	copy(padded, data)

	n := e.k + raptorRedundancy*e.k
	if n > 255 {
		n = 255
	}
	fec, err := infectious.NewFEC(e.k, n)
	if err != nil {
		e.fail(cyfserr.Wrap(cyfserr.InvalidData, err, "raptor: failed to build FEC"))
		return
	}

	shares := make(map[uint64][]byte, n)
	err = fec.Encode(padded, func(s infectious.Share) {
		buf := make([]byte, len(s.Data))
		copy(buf, s.Data)
		shares[uint64(s.Number)] = buf
	})
	if err != nil {
		e.fail(cyfserr.Wrap(cyfserr.InvalidData, err, "raptor: encode failed"))
		return
	}

	e.mu.Lock()
	e.shares = shares
	e.state = StateReady
	e.mu.Unlock()
}

func (e *RaptorEncoder) fail(err error) {
	e.mu.Lock()
	e.state = StateErr
	e.err = err
	e.mu.Unlock()
}

// WaitReady blocks until the encoder is Ready or Err.
func (e *RaptorEncoder) WaitReady() {
	<-e.ready
}

// State reports Pending/Ready/Err (spec.md §4.1.2).
func (e *RaptorEncoder) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Piece returns the precomputed share at index, or an error if the encoder
// isn't Ready yet or failed.
func (e *RaptorEncoder) Piece(index uint64) (Piece, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePending:
		return Piece{}, cyfserr.New(cyfserr.Pending, "raptor encoder not ready")
	case StateErr:
		return Piece{}, e.err
	}

	data, ok := e.shares[index]
	if !ok {
		return Piece{}, cyfserr.Newf(cyfserr.InvalidInput, "raptor: no share at index %d", index)
	}
	k := uint32(e.k)
	return Piece{
		ChunkID: e.chunkID,
		Index:   index,
		Desc:    Desc{Kind: KindRaptor, Payload: e.payload, K: &k},
		Payload: data,
	}, nil
}

// DecodeResult classifies the outcome of ingesting one Raptor share,
// mirroring the underlying library's {Keep, Step, Done} contract (spec.md
// §4.1.2).
type DecodeResult int

const (
	DecodeKeep DecodeResult = iota // duplicate / redundant, no progress
	DecodeStep                     // useful, not yet enough to reconstruct
	DecodeDone                     // reconstruction complete
)

// RaptorDecoder accumulates shares until it has k distinct ones, then
// reconstructs and truncates to the declared chunk length.
type RaptorDecoder struct {
	chunkID  ids.ChunkId
	chunkLen uint32
	k        int
	payload  uint32

	mu        sync.Mutex
	state     State
	err       error
	shares    map[uint64][]byte
	assembled []byte
}

// NewRaptorDecoder builds a decoder for a chunk of the given length and
// payload size. A zero-length chunk is immediately Ready.
func NewRaptorDecoder(chunkID ids.ChunkId, chunkLen, payload uint32) *RaptorDecoder {
	if payload == 0 {
		payload = DefaultPayload
	}
	k := NumSourceSymbols(chunkLen, payload)
	d := &RaptorDecoder{
		chunkID:  chunkID,
		chunkLen: chunkLen,
		k:        k,
		payload:  payload,
		shares:   make(map[uint64][]byte),
	}
	if k == 0 {
		d.state = StateReady
		d.assembled = []byte{}
	}
	return d
}

// DecodeRaw ingests one share, returning Keep/Step/Done per spec.md §4.1.2.
func (d *RaptorDecoder) DecodeRaw(index uint64, payload []byte) (DecodeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateReady {
		return DecodeKeep, nil
	}
	if _, dup := d.shares[index]; dup {
		return DecodeKeep, nil
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	d.shares[index] = buf

	if len(d.shares) < d.k {
		return DecodeStep, nil
	}

	n := d.k + raptorRedundancy*d.k
	if n > 255 {
		n = 255
	}
	fec, err := infectious.NewFEC(d.k, n)
	if err != nil {
		d.state = StateErr
		d.err = cyfserr.Wrap(cyfserr.InvalidData, err, "raptor: failed to build FEC for decode")
		return DecodeDone, d.err
	}

	shares := make([]infectious.Share, 0, len(d.shares))
	for idx, data := range d.shares {
		shares = append(shares, infectious.Share{Number: int(idx), Data: data})
	}

	result, err := fec.Decode(nil, shares)
	if err != nil {
		d.state = StateErr
		d.err = cyfserr.Wrap(cyfserr.InvalidData, err, "raptor: reconstruction failed")
		return DecodeDone, d.err
	}

	if uint32(len(result)) < d.chunkLen {
		d.state = StateErr
		d.err = cyfserr.New(cyfserr.InvalidData, "raptor: reconstructed data shorter than declared chunk length")
		return DecodeDone, d.err
	}

	d.assembled = result[:d.chunkLen]
	d.state = StateReady
	d.shares = nil
	return DecodeDone, nil
}

// PushPiece adapts DecodeRaw to the Decoder interface shared with the
// stream codec.
func (d *RaptorDecoder) PushPiece(index uint64, payload []byte) (accepted bool, ready bool, err error) {
	result, err := d.DecodeRaw(index, payload)
	if err != nil {
		return false, false, err
	}
	switch result {
	case DecodeKeep:
		return false, false, nil
	case DecodeStep:
		return true, false, nil
	default:
		return true, true, nil
	}
}

// State reports Pending/Ready/Err.
func (d *RaptorDecoder) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ChunkContent returns the assembled bytes once Ready.
func (d *RaptorDecoder) ChunkContent() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady {
		return nil, false
	}
	return d.assembled, true
}

package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

func TestRaptorEncodeDecodeRoundTrip(t *testing.T) {
	data := make([]byte, 5000)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	cid := ids.NewChunkId(data)
	payload := uint32(512)

	enc := NewRaptorEncoder(cid, data, payload)
	enc.WaitReady()
	if enc.State() != StateReady {
		t.Fatalf("encoder state = %v, want Ready", enc.State())
	}

	dec := NewRaptorDecoder(cid, uint32(len(data)), payload)

	var idx uint64
	for dec.State() != StateReady {
		piece, err := enc.Piece(idx)
		if err != nil {
			t.Fatalf("encoder.Piece(%d): %v", idx, err)
		}
		result, err := dec.DecodeRaw(piece.Index, piece.Payload)
		if err != nil {
			t.Fatalf("DecodeRaw(%d): %v", idx, err)
		}
		if result == DecodeDone {
			break
		}
		idx++
	}

	out, ok := dec.ChunkContent()
	if !ok {
		t.Fatal("decoder should have ChunkContent once Ready")
	}
	if !bytes.Equal(out, data) {
		t.Fatal("reconstructed bytes do not match original")
	}
	if !cid.VerifyChunk(out) {
		t.Fatal("reconstructed bytes fail chunk-id hash verification")
	}
}

func TestRaptorDecodeKeepOnDuplicate(t *testing.T) {
	data := make([]byte, 2000)
	cid := ids.NewChunkId(data)
	payload := uint32(256)

	enc := NewRaptorEncoder(cid, data, payload)
	enc.WaitReady()
	dec := NewRaptorDecoder(cid, uint32(len(data)), payload)

	piece, err := enc.Piece(0)
	if err != nil {
		t.Fatal(err)
	}
	r1, err := dec.DecodeRaw(piece.Index, piece.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != DecodeStep && r1 != DecodeDone {
		t.Fatalf("first share result = %v, want Step or Done", r1)
	}

	r2, err := dec.DecodeRaw(piece.Index, piece.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if r2 != DecodeKeep {
		t.Fatalf("duplicate share result = %v, want Keep", r2)
	}
}

func TestRaptorDecoderKeepAfterReady(t *testing.T) {
	data := make([]byte, 1000)
	cid := ids.NewChunkId(data)
	payload := uint32(256)

	enc := NewRaptorEncoder(cid, data, payload)
	enc.WaitReady()
	dec := NewRaptorDecoder(cid, uint32(len(data)), payload)

	var idx uint64
	for dec.State() != StateReady {
		piece, err := enc.Piece(idx)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := dec.DecodeRaw(piece.Index, piece.Payload); err != nil {
			t.Fatal(err)
		}
		idx++
	}

	extra, err := enc.Piece(idx)
	if err != nil {
		t.Fatal(err)
	}
	result, err := dec.DecodeRaw(extra.Index, extra.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if result != DecodeKeep {
		t.Fatalf("share pushed after Ready = %v, want Keep", result)
	}
}

func TestRaptorZeroLengthChunkReadyImmediately(t *testing.T) {
	cid := ids.NewChunkId(nil)
	dec := NewRaptorDecoder(cid, 0, 256)
	if dec.State() != StateReady {
		t.Fatal("zero-length chunk decoder should be Ready immediately")
	}
	out, ok := dec.ChunkContent()
	if !ok || len(out) != 0 {
		t.Fatal("zero-length chunk content should be an empty, present slice")
	}
}

func TestRaptorPushPieceAdapter(t *testing.T) {
	data := make([]byte, 3000)
	cid := ids.NewChunkId(data)
	payload := uint32(300)

	enc := NewRaptorEncoder(cid, data, payload)
	enc.WaitReady()
	dec := NewRaptorDecoder(cid, uint32(len(data)), payload)

	var idx uint64
	for {
		piece, err := enc.Piece(idx)
		if err != nil {
			t.Fatal(err)
		}
		accepted, ready, err := dec.PushPiece(piece.Index, piece.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if !accepted {
			t.Fatalf("share %d should have been newly accepted", idx)
		}
		if ready {
			break
		}
		idx++
	}
	if dec.State() != StateReady {
		t.Fatal("decoder should be Ready after PushPiece loop completes")
	}
}

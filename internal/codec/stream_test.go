package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

func TestStreamEncodeDecodeRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 200) // 3200 bytes
	cid := ids.NewChunkId(data)
	payload := uint32(1024)

	enc := NewStreamEncoder(cid, data, payload)
	dec := NewStreamDecoder(cid, uint32(len(data)), payload)

	for i := 0; i < enc.PieceCount(); i++ {
		piece, err := enc.Encode(uint64(i))
		if err != nil {
			t.Fatalf("encode piece %d: %v", i, err)
		}
		if _, _, err := dec.PushPiece(piece.Index, piece.Payload); err != nil {
			t.Fatalf("push piece %d: %v", i, err)
		}
	}

	if dec.State() != StateReady {
		t.Fatalf("decoder not ready after all pieces pushed")
	}
	out, ok := dec.ChunkContent()
	if !ok {
		t.Fatal("ChunkContent should be available when Ready")
	}
	if !bytes.Equal(out, data) {
		t.Fatal("decoded bytes do not match original data")
	}
	if !cid.VerifyChunk(out) {
		t.Fatal("decoded bytes fail chunk-id hash verification")
	}
}

func TestStreamDecodeReverseOrder(t *testing.T) {
	data := make([]byte, 3000)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	cid := ids.NewChunkId(data)
	payload := uint32(1024)
	enc := NewStreamEncoder(cid, data, payload)
	dec := NewStreamDecoder(cid, uint32(len(data)), payload)

	if enc.EndIndex() != 2 {
		t.Fatalf("EndIndex = %d, want 2", enc.EndIndex())
	}

	p2, _ := enc.Encode(2)
	if _, ready, _ := dec.PushPiece(2, p2.Payload); ready {
		t.Fatal("should not be ready after piece 2 alone")
	}
	if lost := dec.LostRanges(); len(lost) != 1 || lost[0] != [2]uint64{0, 2} {
		t.Fatalf("lost ranges after [2] = %v, want [[0 2]]", lost)
	}

	p1, _ := enc.Encode(1)
	if _, ready, _ := dec.PushPiece(1, p1.Payload); ready {
		t.Fatal("should not be ready after pieces [2,1]")
	}
	if lost := dec.LostRanges(); len(lost) != 1 || lost[0] != [2]uint64{0, 1} {
		t.Fatalf("lost ranges after [2,1] = %v, want [[0 1]]", lost)
	}

	p0, _ := enc.Encode(0)
	_, ready, err := dec.PushPiece(0, p0.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !ready {
		t.Fatal("should be ready after all three pieces")
	}
	out, _ := dec.ChunkContent()
	if !bytes.Equal(out, data) {
		t.Fatal("reassembled bytes mismatch")
	}
}

func TestStreamDecodeAllPermutations(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog 0123456789")
	cid := ids.NewChunkId(data)
	payload := uint32(10)
	enc := NewStreamEncoder(cid, data, payload)
	n := enc.PieceCount()

	perms := [][]int{
		seqPerm(n),
		reversePerm(n),
		interleavePerm(n),
	}

	for _, order := range perms {
		dec := NewStreamDecoder(cid, uint32(len(data)), payload)
		for _, idx := range order {
			piece, err := enc.Encode(uint64(idx))
			if err != nil {
				t.Fatal(err)
			}
			if _, _, err := dec.PushPiece(piece.Index, piece.Payload); err != nil {
				t.Fatal(err)
			}
		}
		if dec.State() != StateReady {
			t.Fatalf("order %v: decoder not ready", order)
		}
		out, _ := dec.ChunkContent()
		if !bytes.Equal(out, data) {
			t.Fatalf("order %v: mismatch", order)
		}
	}
}

func seqPerm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func reversePerm(n int) []int {
	out := seqPerm(n)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func interleavePerm(n int) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i += 2 {
		out = append(out, i)
	}
	for i := 1; i < n; i += 2 {
		out = append(out, i)
	}
	return out
}

func TestStreamDuplicatePieceIgnored(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)
	cid := ids.NewChunkId(data)
	enc := NewStreamEncoder(cid, data, 32)
	dec := NewStreamDecoder(cid, uint32(len(data)), 32)

	p0, _ := enc.Encode(0)
	accepted1, _, _ := dec.PushPiece(0, p0.Payload)
	accepted2, _, _ := dec.PushPiece(0, p0.Payload)
	if !accepted1 {
		t.Fatal("first push of piece 0 should be accepted")
	}
	if accepted2 {
		t.Fatal("duplicate push of piece 0 should not be accepted")
	}
	if dec.Pushed() != 1 {
		t.Fatalf("Pushed() = %d, want 1", dec.Pushed())
	}
}

func TestStreamPieceIndexBeyondEndIgnored(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 50)
	cid := ids.NewChunkId(data)
	dec := NewStreamDecoder(cid, uint32(len(data)), 32) // end index 1

	accepted, ready, err := dec.PushPiece(5, []byte("garbage"))
	if err != nil {
		t.Fatal(err)
	}
	if accepted || ready {
		t.Fatal("out-of-range piece index must be silently ignored")
	}
}

func TestStreamZeroLengthChunkReadyImmediately(t *testing.T) {
	cid := ids.NewChunkId(nil)
	dec := NewStreamDecoder(cid, 0, 32)
	if dec.State() != StateReady {
		t.Fatal("zero-length chunk decoder should be Ready immediately")
	}
	out, ok := dec.ChunkContent()
	if !ok || len(out) != 0 {
		t.Fatal("zero-length chunk content should be an empty, present slice")
	}

	enc := NewStreamEncoder(cid, nil, 32)
	if enc.PieceCount() != 0 {
		t.Fatalf("PieceCount() = %d, want 0 for empty chunk", enc.PieceCount())
	}
}

func TestStreamSinglePieceChunk(t *testing.T) {
	data := []byte("short")
	cid := ids.NewChunkId(data)
	enc := NewStreamEncoder(cid, data, 1024)
	if enc.EndIndex() != 0 {
		t.Fatalf("EndIndex = %d, want 0", enc.EndIndex())
	}
	if enc.PieceCount() != 1 {
		t.Fatalf("PieceCount = %d, want 1", enc.PieceCount())
	}
}

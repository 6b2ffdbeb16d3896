package chunkcache

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cyfs-core/bdt-ndn/internal/codec"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

func TestChunkCachePushPiecesThenRead(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 300) // 2400 bytes
	cid := ids.NewChunkId(data)
	payload := uint32(256)

	cache := New(cid, payload)
	if err := cache.Load(true, nil); err != nil {
		t.Fatal(err)
	}

	enc := codec.NewStreamEncoder(cid, data, payload)
	for i := enc.PieceCount() - 1; i >= 0; i-- { // reverse order
		piece, err := enc.Encode(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := cache.PushPiece(piece.Index, piece.Payload); err != nil {
			t.Fatal(err)
		}
	}

	if cache.State() != StateReady {
		t.Fatal("cache should be Ready after all pieces pushed")
	}

	r, err := cache.Reader()
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("reassembled bytes mismatch")
	}
}

func TestChunkCacheReaderBlocksUntilReady(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 1000)
	cid := ids.NewChunkId(data)
	payload := uint32(128)

	cache := New(cid, payload)
	if err := cache.Load(true, nil); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error
	go func() {
		defer wg.Done()
		r, err := cache.Reader()
		if err != nil {
			readErr = err
			return
		}
		out, err := io.ReadAll(r)
		if err != nil {
			readErr = err
			return
		}
		if !bytes.Equal(out, data) {
			readErr = io.ErrUnexpectedEOF
		}
	}()

	time.Sleep(10 * time.Millisecond) // reader should now be parked on the cache

	enc := codec.NewStreamEncoder(cid, data, payload)
	for i := 0; i < enc.PieceCount(); i++ {
		piece, err := enc.Encode(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := cache.PushPiece(piece.Index, piece.Payload); err != nil {
			t.Fatal(err)
		}
	}

	wg.Wait()
	if readErr != nil {
		t.Fatal(readErr)
	}
}

func TestChunkCacheWriterRejectsLengthMismatch(t *testing.T) {
	cid := ids.NewChunkId(bytes.Repeat([]byte("q"), 100))
	cache := New(cid, 32)
	if err := cache.Load(true, nil); err != nil {
		t.Fatal(err)
	}
	w, err := cache.NewWriter()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(bytes.Repeat([]byte("q"), 90)); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err == nil {
		t.Fatal("Finish should fail when written bytes don't match chunk_id.len")
	}
	if cache.State() != StateErr {
		t.Fatal("cache should transition to Err on length mismatch at finish")
	}
}

func TestChunkCacheWriterFullBuffer(t *testing.T) {
	data := bytes.Repeat([]byte("m"), 200)
	cid := ids.NewChunkId(data)
	cache := New(cid, 64)
	if err := cache.Load(true, nil); err != nil {
		t.Fatal(err)
	}
	w, err := cache.NewWriter()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}
	if cache.State() != StateReady {
		t.Fatal("cache should be Ready after a length-matching Finish")
	}

	r, err := cache.Reader()
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("written bytes round trip through the reader")
	}
}

func TestChunkCacheZeroLengthReadyImmediately(t *testing.T) {
	cid := ids.NewChunkId(nil)
	cache := New(cid, 64)
	if cache.State() != StateReady {
		t.Fatal("zero-length chunk cache should be Ready without loading")
	}
}

func TestChunkCachePushBeforeLoadFails(t *testing.T) {
	data := bytes.Repeat([]byte("n"), 50)
	cid := ids.NewChunkId(data)
	cache := New(cid, 32)
	if _, err := cache.PushPiece(0, data[:32]); err == nil {
		t.Fatal("pushing before Load should fail")
	}
}

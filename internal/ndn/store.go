package ndn

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// MemChunkStore is the default in-process LocalStore backing the NDC tier
// (spec.md §4.9.3): a mutex-guarded map of verified chunk bytes. Grounded
// on chunkcache.MemRawCache's own growable-buffer idiom, promoted here to a
// keyed store since the NDC tier needs one backing slot per chunk id
// rather than one in-flight assembly buffer.
type MemChunkStore struct {
	mu     sync.RWMutex
	chunks map[ids.ChunkId][]byte
}

// NewMemChunkStore returns an empty store.
func NewMemChunkStore() *MemChunkStore {
	return &MemChunkStore{chunks: make(map[ids.ChunkId][]byte)}
}

func (s *MemChunkStore) Get(ctx context.Context, chunkID ids.ChunkId) (io.ReadSeeker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.chunks[chunkID]
	if !ok {
		return nil, cyfserr.Newf(cyfserr.NotFound, "ndn: chunk %s not present locally", chunkID)
	}
	return bytes.NewReader(data), nil
}

// Put verifies data hashes to chunkID before storing it (spec.md §4.9.3
// "put_data ... verifies the payload content-addresses to chunk_id").
func (s *MemChunkStore) Put(ctx context.Context, chunkID ids.ChunkId, data []byte) (created bool, err error) {
	if !chunkID.VerifyChunk(data) {
		return false, cyfserr.New(cyfserr.InvalidData, "ndn: put payload does not match chunk id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunks[chunkID]; exists {
		return false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.chunks[chunkID] = cp
	return true, nil
}

func (s *MemChunkStore) Delete(ctx context.Context, chunkID ids.ChunkId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[chunkID]; !ok {
		return cyfserr.Newf(cyfserr.NotFound, "ndn: chunk %s not present locally", chunkID)
	}
	delete(s.chunks, chunkID)
	return nil
}

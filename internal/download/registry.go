package download

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// Registry deduplicates concurrent requests for the same chunk: two callers
// racing to fetch the same ChunkId get the same Downloader instead of each
// spawning its own loader task and session. This generalizes the teacher's
// activeFetches map (pkg/content/fetcher.go), which only prevented
// duplicate bookkeeping entries, into an actual single-flight join.
type Registry struct {
	mu      sync.Mutex
	entries map[ids.ChunkId]*Downloader

	group   singleflight.Group
	loader  LocalLoader
	channel Channel
	payload uint32
}

// NewRegistry builds a registry that creates downloaders with the given
// loader, channel, and default payload size.
func NewRegistry(loader LocalLoader, channel Channel, payload uint32) *Registry {
	return &Registry{
		entries: make(map[ids.ChunkId]*Downloader),
		loader:  loader,
		channel: channel,
		payload: payload,
	}
}

// Get returns the Downloader for chunkID, creating it on first request. If
// a create is already in flight for this chunk, the caller joins it instead
// of starting a second loader task.
func (r *Registry) Get(ctx context.Context, chunkID ids.ChunkId) *Downloader {
	r.mu.Lock()
	if d, ok := r.entries[chunkID]; ok {
		r.mu.Unlock()
		return d
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(chunkID.String(), func() (interface{}, error) {
		r.mu.Lock()
		if d, ok := r.entries[chunkID]; ok {
			r.mu.Unlock()
			return d, nil
		}
		r.mu.Unlock()

		d := New(ctx, chunkID, r.payload, r.loader, r.channel)

		r.mu.Lock()
		r.entries[chunkID] = d
		r.mu.Unlock()
		return d, nil
	})
	return v.(*Downloader)
}

// Forget drops chunkID from the registry once its downloader is no longer
// needed (e.g. the chunk has been evicted from the cache it served).
func (r *Registry) Forget(chunkID ids.ChunkId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, chunkID)
}

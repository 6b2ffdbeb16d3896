// Package download implements the per-chunk downloader orchestration
// (spec.md §4.5): a loader task that tries local storage first, then an
// on_drain step-function that maintains at most one active session against
// a changing set of candidate sources. Grounded on the teacher's
// pkg/content/fetcher.go FetchContent/fetchChunk (provider iteration with
// a single winner per chunk) restructured around one long-lived session per
// chunk instead of one goroutine per attempt, and on internal/dht/dht.go's
// iterativeGet for "pick a candidate and go" source selection.
package download

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/chunkcache"
	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/session"
)

// State is the downloader lifecycle (spec.md §4.5: "Loading →
// {Downloading{cache, session?} | Finished}").
type State int

const (
	StateLoading State = iota
	StateDownloading
	StateFinished
)

// LocalLoader attempts to fill a chunk from storage already on this node.
type LocalLoader interface {
	LoadLocal(ctx context.Context, chunkID ids.ChunkId) ([]byte, error)
}

// Channel opens a transfer to source's device for chunkID, wiring received
// pieces into stream as they arrive, and returns the session tracking that
// transfer.
type Channel interface {
	Download(ctx context.Context, chunkID ids.ChunkId, source Source, cache *chunkcache.ChunkCache) (*session.Session, error)
}

// Downloader drives one chunk's transfer to completion (spec.md §4.5).
type Downloader struct {
	chunkID ids.ChunkId
	payload uint32
	cache   *chunkcache.ChunkCache
	channel Channel

	mu           sync.Mutex
	state        State
	active       *session.Session
	activeSource ids.DeviceId
	hasActive    bool
}

// New constructs a downloader and immediately spawns its loader task: it
// tries loader.LoadLocal, and on success fills the cache and transitions
// straight to Finished without ever touching the network (spec.md §4.5).
func New(ctx context.Context, chunkID ids.ChunkId, payload uint32, loader LocalLoader, channel Channel) *Downloader {
	d := &Downloader{
		chunkID: chunkID,
		payload: payload,
		cache:   chunkcache.New(chunkID, payload),
		channel: channel,
		state:   StateLoading,
	}
	go d.load(ctx, loader)
	return d
}

func (d *Downloader) load(ctx context.Context, loader LocalLoader) {
	data, err := loader.LoadLocal(ctx, d.chunkID)
	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		d.state = StateDownloading
		return
	}

	if loadErr := d.cache.Load(true, nil); loadErr != nil {
		d.state = StateDownloading
		return
	}
	w, werr := d.cache.NewWriter()
	if werr != nil {
		d.state = StateDownloading
		return
	}
	if _, werr := w.Write(data); werr != nil {
		d.state = StateDownloading
		return
	}
	if werr := w.Finish(); werr != nil {
		d.state = StateDownloading
		return
	}
	d.state = StateFinished
}

// State reports the downloader's current lifecycle state.
func (d *Downloader) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Cache exposes the backing chunk cache for readers.
func (d *Downloader) Cache() *chunkcache.ChunkCache {
	return d.cache
}

// OnDrain implements the per-tick downloader step (spec.md §4.5). It
// returns the current transfer speed estimate in bytes/second; the caller
// (a scheduler pumping many downloaders) uses this to prioritize which
// chunks to keep feeding bandwidth.
func (d *Downloader) OnDrain(ctx context.Context, sources *SourceSet) (float64, error) {
	d.mu.Lock()

	if d.state == StateFinished {
		d.mu.Unlock()
		return 0, nil
	}

	// Step 1-2: reconcile the active session against the current source set.
	if d.hasActive {
		if sources.Contains(d.activeSource) {
			speed := d.active.CurSpeed()
			d.mu.Unlock()
			return speed, nil
		}
		d.active.Cancel(cyfserr.UserCanceled)
		d.active = nil
		d.hasActive = false
	}

	// Step 3: pick a candidate not already excluded (none to exclude once
	// the prior session, if any, has just been cleared).
	candidate, ok := sources.Pick(ids.ObjectId{})
	if !ok {
		d.mu.Unlock()
		return 0, nil
	}

	// Step 4: lazily attach a memory-backed cache.
	if !d.cache.Loaded() {
		if err := d.cache.Load(true, nil); err != nil {
			d.mu.Unlock()
			return 0, err
		}
	}
	d.state = StateDownloading
	d.mu.Unlock()

	// Step 5: normalize the candidate's encode_desc against the known
	// chunk length.
	candidate.EncodeDesc = candidate.EncodeDesc.FillValues(d.chunkID.Len)

	// Step 6: open the channel and attempt the transfer.
	sess, err := d.channel.Download(ctx, d.chunkID, candidate, d.cache)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		// Step 7 (Err branch): surface the existing session's speed, if any.
		if d.hasActive {
			return d.active.CurSpeed(), nil
		}
		return 0, nil
	}

	// Step 7 (Ok branch): publish the new session. Only one session is
	// ever published; callers observe a consistent view under this lock
	// (spec.md §4.5 invariant).
	d.active = sess
	d.activeSource = candidate.Device
	d.hasActive = true
	return sess.CurSpeed(), nil
}

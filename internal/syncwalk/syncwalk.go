// Package syncwalk implements the ObjectMap remote-diff walker (spec.md
// §4.14): given a local store and a target root, it enumerates the
// children a consumer still needs to fetch from a remote peer. Grounded on
// the teacher's internal/dht/dht.go iterativeGet (an iterative walk that
// gives up on a node after one retry and records it as a permanent miss)
// and internal/objectmap's own tree-visitor shape, re-expressed here as a
// queue-driven walk over Store.Get misses instead of Kademlia routing.
package syncwalk

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/objectmap"
)

// Kind discriminates the three message shapes the walker emits (spec.md
// §4.14).
type Kind int

const (
	KindContinue Kind = iota
	KindBreak
	KindWait
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindBreak:
		return "break"
	case KindWait:
		return "wait"
	default:
		return "unknown"
	}
}

// Message is one unit of walker output (spec.md §4.14).
type Message struct {
	Kind Kind
	ID   ids.ObjectId
}

// ChunkCollector receives every chunk id encountered anywhere in the
// subtree, regardless of local presence (spec.md §4.14 "If type is Chunk:
// hand to the chunks-collector").
type ChunkCollector interface {
	CollectChunk(id ids.ObjectId)
}

// SyncedCollector receives non-chunk ids that turn out to already be
// present locally (spec.md §4.14 "If already present locally: hand to
// collector, don't recurse" — content-addressing guarantees the subtree
// under an already-present node is itself already synced).
type SyncedCollector interface {
	CollectSynced(id ids.ObjectId)
}

// queueEntry is one node still to be (fully) visited. offset resumes a
// node whose children were only partially drained by a prior Next call
// that hit its count budget mid-node.
type queueEntry struct {
	id     ids.ObjectId
	offset int
}

// Walker drives one remote-diff walk (spec.md §4.14).
type Walker struct {
	store  objectmap.Store
	chunks ChunkCollector
	synced SyncedCollector

	mu      sync.Mutex
	queue   []queueEntry
	retried map[ids.ObjectId]bool
	missing map[ids.ObjectId]bool
}

// New builds a Walker rooted eventually at whatever id Start is called
// with, backed by store for local presence checks.
func New(store objectmap.Store, chunks ChunkCollector, synced SyncedCollector) *Walker {
	return &Walker{
		store:   store,
		chunks:  chunks,
		synced:  synced,
		retried: make(map[ids.ObjectId]bool),
		missing: make(map[ids.ObjectId]bool),
	}
}

// Start enqueues root as the first node to visit.
func (w *Walker) Start(root ids.ObjectId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, queueEntry{id: root})
}

// Missing returns the set of node ids that failed to become local after
// their one permitted retry (spec.md §4.14 "record permanent misses in a
// missing set").
func (w *Walker) Missing() []ids.ObjectId {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ids.ObjectId, 0, len(w.missing))
	for id := range w.missing {
		out = append(out, id)
	}
	return out
}

// Done reports whether the queue is exhausted (no more nodes to visit,
// modulo ones permanently recorded as missing).
func (w *Walker) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) == 0
}

// Next drains up to count Continue-items, visiting queued nodes in order
// (spec.md §4.14 "Consumer API: next(count) drains up to count
// continue-items from a channel"). Break/Wait messages for a node not yet
// local are always emitted inline regardless of count, since the consumer
// must react to them (go fetch the missing object) before further
// progress is possible on that branch.
func (w *Walker) Next(ctx context.Context, count int) ([]Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Message
	continues := 0
	// Only nodes queued before this call are visited; children found here
	// have just been emitted as Continue and are visited on a later call,
	// after the consumer has had the chance to fetch them.
	pending := len(w.queue)
	for continues < count && pending > 0 && len(w.queue) > 0 {
		pending--
		qe := w.queue[0]
		w.queue = w.queue[1:]

		node, err := w.store.Get(ctx, qe.id)
		if err != nil {
			if !cyfserr.Is(err, cyfserr.NotFound) {
				return out, err
			}
			if w.retried[qe.id] {
				w.missing[qe.id] = true
				continue
			}
			w.retried[qe.id] = true
			out = append(out,
				Message{Kind: KindBreak, ID: qe.id},
				Message{Kind: KindWait, ID: qe.id},
				Message{Kind: KindWait, ID: qe.id},
			)
			// Enqueue at the front for the one permitted retry, and return so
			// the consumer can fetch the object before that retry.
			w.queue = append([]queueEntry{{id: qe.id}}, w.queue...)
			return out, nil
		}

		items := objectmap.NewIterator(node).Next(1 << 30)
		i := qe.offset
		for ; i < len(items); i++ {
			item := items[i]
			if item.DiffMapEntry != nil || item.DiffSetEntry != nil {
				// Diff variants describe structural deltas, not child ids
				// to fetch; applying a diff is outside this walker's scope
				// (spec.md §4.6 "out of deep scope; must round-trip").
				continue
			}
			// Map entry (HasKey) or Set member (!HasKey): both carry the
			// child id to visit in item.Value.
			if w.visitChild(ctx, item.Value, &out) {
				continues++
				if continues >= count {
					i++
					break
				}
			}
		}
		if i < len(items) {
			// Resume this node's remaining children on the next call.
			w.queue = append([]queueEntry{{id: qe.id, offset: i}}, w.queue...)
		}
	}
	return out, nil
}

// visitChild classifies one child id and reports whether it produced a
// Continue message (i.e. consumed one unit of the count budget).
func (w *Walker) visitChild(ctx context.Context, id ids.ObjectId, out *[]Message) bool {
	if id.Type == ids.ObjectTypeChunk {
		w.chunks.CollectChunk(id)
		return false
	}
	if _, err := w.store.Get(ctx, id); err == nil {
		w.synced.CollectSynced(id)
		return false
	}
	*out = append(*out, Message{Kind: KindContinue, ID: id})
	w.queue = append(w.queue, queueEntry{id: id})
	return true
}

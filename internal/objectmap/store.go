package objectmap

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/proto"
)

// Store is the backing persistence for ObjectMap nodes, keyed by content
// id. Put is responsible for the hub-vs-list split (spec.md §9); Get is
// responsible for transparently re-flattening a hub back into the
// in-memory, fully-materialized ObjectMap callers operate on.
type Store interface {
	Get(ctx context.Context, id ids.ObjectId) (*ObjectMap, error)
	Put(ctx context.Context, m *ObjectMap) error
}

// storedNode is the on-disk shape: either a flat leaf (Hub is empty) or a
// hub of child node ids whose concatenated content equals this node's.
type storedNode struct {
	Content Content
	Owner   *ids.ObjectId `cbor:",omitempty"`
	Dec     *ids.ObjectId `cbor:",omitempty"`
	Class   string        `cbor:",omitempty"`

	MapItems     []MapEntry     `cbor:",omitempty"`
	SetItems     []ids.ObjectId `cbor:",omitempty"`
	DiffMapItems []DiffMapEntry `cbor:",omitempty"`
	DiffSetItems []DiffSetEntry `cbor:",omitempty"`

	Hub []ids.ObjectId `cbor:",omitempty"`
}

// MemStore is an in-memory, mutex-guarded Store, used as the default
// backing for tests, the NDC local tier, and as the building block
// globalstate layers its persisted revision index on top of.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[ids.ObjectId]storedNode
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[ids.ObjectId]storedNode)}
}

// Put splits m into a hub layout once its size exceeds the configured
// threshold, persisting each child independently, then stores m's own
// node (hub pointers or flat items) under m.ID() — which is always the
// hash of m's full flattened content, never of the hub pointers
// themselves (spec.md invariant 3).
func (s *MemStore) Put(ctx context.Context, m *ObjectMap) error {
	if !m.IsHub() {
		return s.putLeaf(m)
	}
	children, err := splitChildren(m)
	if err != nil {
		return err
	}
	hub := make([]ids.ObjectId, len(children))
	for i, c := range children {
		if err := s.putLeaf(c); err != nil {
			return err
		}
		hub[i] = c.ID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[m.ID()] = storedNode{Content: m.content, Owner: m.owner, Dec: m.dec, Class: m.class, Hub: hub}
	return nil
}

func (s *MemStore) putLeaf(m *ObjectMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[m.ID()] = storedNode{
		Content:      m.content,
		Owner:        m.owner,
		Dec:          m.dec,
		Class:        m.class,
		MapItems:     m.mapItems,
		SetItems:     m.setItems,
		DiffMapItems: m.diffMapItems,
		DiffSetItems: m.diffSetItems,
	}
	return nil
}

// Get reconstructs the fully-flattened ObjectMap for id, recursing through
// hub children as needed.
func (s *MemStore) Get(ctx context.Context, id ids.ObjectId) (*ObjectMap, error) {
	s.mu.RLock()
	n, ok := s.nodes[id]
	s.mu.RUnlock()
	if !ok {
		return nil, cyfserr.Newf(cyfserr.NotFound, "objectmap: node %s not found", id)
	}
	if len(n.Hub) == 0 {
		return materialize(n), nil
	}
	switch n.Content {
	case ContentMap:
		var items []MapEntry
		for _, childID := range n.Hub {
			child, err := s.Get(ctx, childID)
			if err != nil {
				return nil, err
			}
			items = append(items, child.mapItems...)
		}
		return newMap(n.Owner, n.Dec, n.Class, items), nil
	case ContentSet:
		var items []ids.ObjectId
		for _, childID := range n.Hub {
			child, err := s.Get(ctx, childID)
			if err != nil {
				return nil, err
			}
			items = append(items, child.setItems...)
		}
		return newSet(n.Owner, n.Dec, n.Class, items), nil
	default:
		return nil, cyfserr.Newf(cyfserr.InvalidData, "objectmap: hub layout not supported for content %s", n.Content)
	}
}

func materialize(n storedNode) *ObjectMap {
	return &ObjectMap{
		content:      n.Content,
		owner:        n.Owner,
		dec:          n.Dec,
		class:        n.Class,
		mapItems:     n.MapItems,
		setItems:     n.SetItems,
		diffMapItems: n.DiffMapItems,
		diffSetItems: n.DiffSetItems,
		id:           idFromStored(n),
	}
}

// idFromStored recomputes the content hash of a leaf read back from
// storage rather than trusting the map key. Get does not compare the two,
// so a corrupted entry comes back carrying an id that differs from the one
// requested.
func idFromStored(n storedNode) ids.ObjectId {
	tmp := &ObjectMap{content: n.Content, owner: n.Owner, dec: n.Dec, class: n.Class,
		mapItems: n.MapItems, setItems: n.SetItems, diffMapItems: n.DiffMapItems, diffSetItems: n.DiffSetItems}
	tmp.rehash()
	return tmp.id
}

// splitChildren partitions m's items into proto.ObjectMapSplitThreshold-
// sized buckets. Only Map and Set content ever grows large enough to
// reach the threshold in practice (DiffMap/DiffSet nodes are scoped to one
// sync transaction and kept flat, per spec.md §4.6's "out of deep scope"
// note on the diff variants).
func splitChildren(m *ObjectMap) ([]*ObjectMap, error) {
	threshold := proto.ObjectMapSplitThreshold
	switch m.content {
	case ContentMap:
		items := m.mapItems
		var out []*ObjectMap
		for i := 0; i < len(items); i += threshold {
			end := i + threshold
			if end > len(items) {
				end = len(items)
			}
			bucket := make([]MapEntry, end-i)
			copy(bucket, items[i:end])
			out = append(out, newMap(m.owner, m.dec, m.class, bucket))
		}
		return out, nil
	case ContentSet:
		items := m.setItems
		var out []*ObjectMap
		for i := 0; i < len(items); i += threshold {
			end := i + threshold
			if end > len(items) {
				end = len(items)
			}
			bucket := make([]ids.ObjectId, end-i)
			copy(bucket, items[i:end])
			out = append(out, newSet(m.owner, m.dec, m.class, bucket))
		}
		return out, nil
	default:
		return nil, cyfserr.Newf(cyfserr.InvalidData, "objectmap: hub split not supported for content %s", m.content)
	}
}

// Package objectmap implements the content-addressed, persistent map/set
// tree that backs every per-DEC state root in the stack (spec.md §4.6,
// §3 "ObjectMap"), plus the PathEnv/SingleEnv transactional views over it.
//
// Grounded on the teacher's pkg/honeytag/crdt.go merge/diff semantics (the
// DiffMap/DiffSet content variant) and pkg/content/cid.go's "hash the
// canonical payload" content-addressing idiom, generalized from a flat
// content blob to a tree whose nodes are themselves content-addressed.
// Hub-vs-list layout (spec.md §9 design note) is implemented as a pure
// storage-layer compaction applied at Store.Put/Get time: the in-memory
// ObjectMap always holds the fully flattened semantic content, so its
// content hash never depends on how (or whether) the backing store chose
// to split it into a hub of sub-nodes (spec.md invariant 3).
package objectmap

import (
	"sort"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/proto"
	"github.com/cyfs-core/bdt-ndn/internal/wireenc"
)

// Content discriminates the four ObjectMap content variants (spec.md §3).
type Content int

const (
	ContentMap Content = iota
	ContentSet
	ContentDiffMap
	ContentDiffSet
)

func (c Content) String() string {
	switch c {
	case ContentMap:
		return "map"
	case ContentSet:
		return "set"
	case ContentDiffMap:
		return "diff-map"
	case ContentDiffSet:
		return "diff-set"
	default:
		return "unknown"
	}
}

// MapEntry is one (key, ObjectId) pair of a Map-content node.
type MapEntry struct {
	Key   string
	Value ids.ObjectId
}

// DiffMapEntry records a single key's before/after value in a DiffMap. A
// nil Old means the key was added; a nil New means it was removed.
type DiffMapEntry struct {
	Key string
	Old *ids.ObjectId
	New *ids.ObjectId
}

// DiffSetEntry records a single id's membership change in a DiffSet.
// Added=true means the id was inserted by the diff, false means removed.
type DiffSetEntry struct {
	Value ids.ObjectId
	Added bool
}

// hashPayload is the canonical, order-independent encoding hashed to derive
// an ObjectMap's content id. Every slice is kept sorted so semantically
// identical content always serializes identically.
type hashPayload struct {
	Content      Content
	Owner        *ids.ObjectId  `cbor:",omitempty"`
	Dec          *ids.ObjectId  `cbor:",omitempty"`
	Class        string         `cbor:",omitempty"`
	MapItems     []MapEntry     `cbor:",omitempty"`
	SetItems     []ids.ObjectId `cbor:",omitempty"`
	DiffMapItems []DiffMapEntry `cbor:",omitempty"`
	DiffSetItems []DiffSetEntry `cbor:",omitempty"`
}

// ObjectMap is an immutable, content-addressed map or set node (spec.md
// §3). Every mutation method returns a new *ObjectMap; the receiver is
// never modified in place.
type ObjectMap struct {
	content Content
	owner   *ids.ObjectId
	dec     *ids.ObjectId
	class   string

	mapItems     []MapEntry
	setItems     []ids.ObjectId
	diffMapItems []DiffMapEntry
	diffSetItems []DiffSetEntry

	id ids.ObjectId
}

// NewEmptyMap builds an empty Map-content ObjectMap owned by owner under
// dec (either may be nil).
func NewEmptyMap(owner, dec *ids.ObjectId) *ObjectMap {
	return newMap(owner, dec, "", nil)
}

// NewEmptySet builds an empty Set-content ObjectMap.
func NewEmptySet(owner, dec *ids.ObjectId) *ObjectMap {
	return newSet(owner, dec, "", nil)
}

func newMap(owner, dec *ids.ObjectId, class string, items []MapEntry) *ObjectMap {
	m := &ObjectMap{content: ContentMap, owner: owner, dec: dec, class: class, mapItems: items}
	m.rehash()
	return m
}

func newSet(owner, dec *ids.ObjectId, class string, items []ids.ObjectId) *ObjectMap {
	m := &ObjectMap{content: ContentSet, owner: owner, dec: dec, class: class, setItems: items}
	m.rehash()
	return m
}

func newDiffMap(owner, dec *ids.ObjectId, class string, items []DiffMapEntry) *ObjectMap {
	m := &ObjectMap{content: ContentDiffMap, owner: owner, dec: dec, class: class, diffMapItems: items}
	m.rehash()
	return m
}

func newDiffSet(owner, dec *ids.ObjectId, class string, items []DiffSetEntry) *ObjectMap {
	m := &ObjectMap{content: ContentDiffSet, owner: owner, dec: dec, class: class, diffSetItems: items}
	m.rehash()
	return m
}

func (m *ObjectMap) rehash() {
	payload := hashPayload{
		Content: m.content,
		Owner:   m.owner,
		Dec:     m.dec,
		Class:   m.class,
	}
	switch m.content {
	case ContentMap:
		payload.MapItems = m.mapItems
	case ContentSet:
		payload.SetItems = m.setItems
	case ContentDiffMap:
		payload.DiffMapItems = m.diffMapItems
	case ContentDiffSet:
		payload.DiffSetItems = m.diffSetItems
	}
	m.id = ids.NewObjectId(ids.ObjectTypeObjectMap, wireenc.MustMarshal(payload))
}

// ID returns the content-addressed id of this node.
func (m *ObjectMap) ID() ids.ObjectId { return m.id }

// Content reports the content variant.
func (m *ObjectMap) Content() Content { return m.content }

// Owner returns the owner id, if any.
func (m *ObjectMap) Owner() *ids.ObjectId { return m.owner }

// Dec returns the owning DEC id, if any.
func (m *ObjectMap) Dec() *ids.ObjectId { return m.dec }

// Size is the metadata size counter visible to callers in place of the
// hub-vs-list layout decision (spec.md §3: "invisible to callers beyond
// metadata size counters").
func (m *ObjectMap) Size() int {
	switch m.content {
	case ContentMap:
		return len(m.mapItems)
	case ContentSet:
		return len(m.setItems)
	case ContentDiffMap:
		return len(m.diffMapItems)
	default:
		return len(m.diffSetItems)
	}
}

// IsHub reports whether a Put of this node would split it into a hub
// layout in the backing store (spec.md §9: threshold-based split).
func (m *ObjectMap) IsHub() bool { return m.Size() > proto.ObjectMapSplitThreshold }

// --- Map operations ---

// GetMapEntry looks up key in a Map-content node.
func (m *ObjectMap) GetMapEntry(key string) (ids.ObjectId, bool) {
	i := sort.Search(len(m.mapItems), func(i int) bool { return m.mapItems[i].Key >= key })
	if i < len(m.mapItems) && m.mapItems[i].Key == key {
		return m.mapItems[i].Value, true
	}
	return ids.ObjectId{}, false
}

// WithMapEntry returns a new ObjectMap with key set to value.
func (m *ObjectMap) WithMapEntry(key string, value ids.ObjectId) *ObjectMap {
	items := make([]MapEntry, len(m.mapItems))
	copy(items, m.mapItems)
	i := sort.Search(len(items), func(i int) bool { return items[i].Key >= key })
	if i < len(items) && items[i].Key == key {
		items[i].Value = value
	} else {
		items = append(items, MapEntry{})
		copy(items[i+1:], items[i:])
		items[i] = MapEntry{Key: key, Value: value}
	}
	return newMap(m.owner, m.dec, m.class, items)
}

// WithMapEntryRemoved returns a new ObjectMap with key removed, and whether
// it was present.
func (m *ObjectMap) WithMapEntryRemoved(key string) (*ObjectMap, bool) {
	i := sort.Search(len(m.mapItems), func(i int) bool { return m.mapItems[i].Key >= key })
	if i >= len(m.mapItems) || m.mapItems[i].Key != key {
		return m, false
	}
	items := make([]MapEntry, 0, len(m.mapItems)-1)
	items = append(items, m.mapItems[:i]...)
	items = append(items, m.mapItems[i+1:]...)
	return newMap(m.owner, m.dec, m.class, items), true
}

// MapEntries returns a copy of the sorted map entries.
func (m *ObjectMap) MapEntries() []MapEntry {
	out := make([]MapEntry, len(m.mapItems))
	copy(out, m.mapItems)
	return out
}

// --- Set operations ---

// ContainsSetItem reports whether id is a member of a Set-content node.
func (m *ObjectMap) ContainsSetItem(id ids.ObjectId) bool {
	_, ok := m.findSetItem(id)
	return ok
}

func (m *ObjectMap) findSetItem(id ids.ObjectId) (int, bool) {
	i := sort.Search(len(m.setItems), func(i int) bool { return !idLess(m.setItems[i], id) })
	if i < len(m.setItems) && m.setItems[i].Equals(id) {
		return i, true
	}
	return i, false
}

// WithSetItem returns a new ObjectMap with id inserted.
func (m *ObjectMap) WithSetItem(id ids.ObjectId) *ObjectMap {
	i, ok := m.findSetItem(id)
	if ok {
		return m
	}
	items := make([]ids.ObjectId, len(m.setItems)+1)
	copy(items, m.setItems[:i])
	items[i] = id
	copy(items[i+1:], m.setItems[i:])
	return newSet(m.owner, m.dec, m.class, items)
}

// WithSetItemRemoved returns a new ObjectMap with id removed, and whether
// it was present.
func (m *ObjectMap) WithSetItemRemoved(id ids.ObjectId) (*ObjectMap, bool) {
	i, ok := m.findSetItem(id)
	if !ok {
		return m, false
	}
	items := make([]ids.ObjectId, 0, len(m.setItems)-1)
	items = append(items, m.setItems[:i]...)
	items = append(items, m.setItems[i+1:]...)
	return newSet(m.owner, m.dec, m.class, items), true
}

// SetItems returns a copy of the sorted set members.
func (m *ObjectMap) SetItems() []ids.ObjectId {
	out := make([]ids.ObjectId, len(m.setItems))
	copy(out, m.setItems)
	return out
}

func idLess(a, b ids.ObjectId) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	for i := range a.Hash {
		if a.Hash[i] != b.Hash[i] {
			return a.Hash[i] < b.Hash[i]
		}
	}
	return false
}

// DiffMapEntries returns a copy of the DiffMap entries.
func (m *ObjectMap) DiffMapEntries() []DiffMapEntry {
	out := make([]DiffMapEntry, len(m.diffMapItems))
	copy(out, m.diffMapItems)
	return out
}

// DiffSetEntries returns a copy of the DiffSet entries.
func (m *ObjectMap) DiffSetEntries() []DiffSetEntry {
	out := make([]DiffSetEntry, len(m.diffSetItems))
	copy(out, m.diffSetItems)
	return out
}

// NewDiffMap builds a DiffMap-content node from a set of per-key changes.
func NewDiffMap(owner, dec *ids.ObjectId, entries []DiffMapEntry) *ObjectMap {
	sorted := append([]DiffMapEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return newDiffMap(owner, dec, "", sorted)
}

// NewDiffSet builds a DiffSet-content node from a set of membership changes.
func NewDiffSet(owner, dec *ids.ObjectId, entries []DiffSetEntry) *ObjectMap {
	sorted := append([]DiffSetEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return idLess(sorted[i].Value, sorted[j].Value) })
	return newDiffSet(owner, dec, "", sorted)
}

// Visitor abstracts over an ObjectMap's layout the way the spec requires
// (spec.md §4.6: "visit_map_item/visit_set_item/visit_hub_item/
// visit_diff_*_item"). Since hub layout never surfaces in the in-memory
// type, VisitHubItem is never called by Visit below; it exists so a
// storage-layer walker (Store implementations) can report hub boundaries
// it encounters on disk without changing this interface.
type Visitor interface {
	VisitMapItem(key string, value ids.ObjectId) error
	VisitSetItem(value ids.ObjectId) error
	VisitHubItem(child ids.ObjectId) error
	VisitDiffMapItem(entry DiffMapEntry) error
	VisitDiffSetItem(entry DiffSetEntry) error
}

// Visit walks m's flattened content, dispatching to the matching Visitor
// method for each item, in sorted order.
func (m *ObjectMap) Visit(v Visitor) error {
	switch m.content {
	case ContentMap:
		for _, e := range m.mapItems {
			if err := v.VisitMapItem(e.Key, e.Value); err != nil {
				return err
			}
		}
	case ContentSet:
		for _, e := range m.setItems {
			if err := v.VisitSetItem(e); err != nil {
				return err
			}
		}
	case ContentDiffMap:
		for _, e := range m.diffMapItems {
			if err := v.VisitDiffMapItem(e); err != nil {
				return err
			}
		}
	case ContentDiffSet:
		for _, e := range m.diffSetItems {
			if err := v.VisitDiffSetItem(e); err != nil {
				return err
			}
		}
	}
	return nil
}

package objectmap

import "github.com/cyfs-core/bdt-ndn/internal/ids"

// Item is one entry yielded by an Iterator: exactly one of Key/Value
// (Map), Value alone (Set), or the diff variants is populated depending on
// the source node's Content.
type Item struct {
	Key          string
	Value        ids.ObjectId
	HasKey       bool
	DiffMapEntry *DiffMapEntry
	DiffSetEntry *DiffSetEntry
}

// Iterator walks a loaded node's children lazily and restartably
// (spec.md §4.6 "next(n) and reset()"). It is built once per node and
// holds no reference to the backing store — the node is already fully
// materialized in memory.
type Iterator struct {
	node *ObjectMap
	pos  int
}

// NewIterator returns an Iterator over node's children.
func NewIterator(node *ObjectMap) *Iterator {
	return &Iterator{node: node}
}

// Next returns up to n further items, advancing the cursor. An empty
// (non-nil) slice means exhausted.
func (it *Iterator) Next(n int) []Item {
	out := []Item{}
	switch it.node.content {
	case ContentMap:
		for len(out) < n && it.pos < len(it.node.mapItems) {
			e := it.node.mapItems[it.pos]
			out = append(out, Item{Key: e.Key, Value: e.Value, HasKey: true})
			it.pos++
		}
	case ContentSet:
		for len(out) < n && it.pos < len(it.node.setItems) {
			out = append(out, Item{Value: it.node.setItems[it.pos]})
			it.pos++
		}
	case ContentDiffMap:
		for len(out) < n && it.pos < len(it.node.diffMapItems) {
			e := it.node.diffMapItems[it.pos]
			out = append(out, Item{DiffMapEntry: &e})
			it.pos++
		}
	case ContentDiffSet:
		for len(out) < n && it.pos < len(it.node.diffSetItems) {
			e := it.node.diffSetItems[it.pos]
			out = append(out, Item{DiffSetEntry: &e})
			it.pos++
		}
	}
	return out
}

// Reset rewinds the cursor to the start.
func (it *Iterator) Reset() { it.pos = 0 }

package objectmap

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// SingleEnv is bound to exactly one ObjectMap node and exposes map/set
// operations without path traversal (spec.md §4.6).
type SingleEnv struct {
	mu    sync.Mutex
	store Store
	node  *ObjectMap
	done  bool
}

// NewSingleEnv returns a SingleEnv with nothing loaded yet.
func NewSingleEnv(store Store) *SingleEnv {
	return &SingleEnv{store: store}
}

// Load binds the env to the node identified by id.
func (e *SingleEnv) Load(ctx context.Context, id ids.ObjectId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	e.node = n
	return nil
}

// LoadByPath binds the env to the node reachable from root by path.
func (e *SingleEnv) LoadByPath(ctx context.Context, root ids.ObjectId, path string) error {
	tmp := NewPathEnv(e.store, root, nil, nil)
	n, err := tmp.loadNode(ctx, path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.node = n
	e.mu.Unlock()
	return nil
}

func (e *SingleEnv) requireLoaded() error {
	if e.node == nil {
		return cyfserr.New(cyfserr.ErrorState, "objectmap: single-env has no node loaded")
	}
	return nil
}

// Get looks up key on a Map-content node.
func (e *SingleEnv) Get(key string) (ids.ObjectId, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return ids.ObjectId{}, false, err
	}
	v, ok := e.node.GetMapEntry(key)
	return v, ok, nil
}

// Insert sets key to value on a Map-content node.
func (e *SingleEnv) Insert(key string, value ids.ObjectId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return err
	}
	e.node = e.node.WithMapEntry(key, value)
	return nil
}

// Remove removes key from a Map-content node.
func (e *SingleEnv) Remove(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return false, err
	}
	newNode, ok := e.node.WithMapEntryRemoved(key)
	e.node = newNode
	return ok, nil
}

// Contains reports membership on a Set-content node.
func (e *SingleEnv) Contains(id ids.ObjectId) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return false, err
	}
	return e.node.ContainsSetItem(id), nil
}

// InsertSet adds id to a Set-content node.
func (e *SingleEnv) InsertSet(id ids.ObjectId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return err
	}
	e.node = e.node.WithSetItem(id)
	return nil
}

// RemoveSet removes id from a Set-content node.
func (e *SingleEnv) RemoveSet(id ids.ObjectId) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return false, err
	}
	newNode, ok := e.node.WithSetItemRemoved(id)
	e.node = newNode
	return ok, nil
}

// Node returns the currently bound node, for iteration.
func (e *SingleEnv) Node() (*ObjectMap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireLoaded(); err != nil {
		return nil, err
	}
	return e.node, nil
}

// Commit persists the current node and returns its id. The caller is
// responsible for placing that id wherever appropriate (spec.md §4.6).
func (e *SingleEnv) Commit(ctx context.Context) (ids.ObjectId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return ids.ObjectId{}, cyfserr.New(cyfserr.ErrorState, "objectmap: single-env already committed")
	}
	if err := e.requireLoaded(); err != nil {
		return ids.ObjectId{}, err
	}
	if err := e.store.Put(ctx, e.node); err != nil {
		return ids.ObjectId{}, err
	}
	e.done = true
	return e.node.ID(), nil
}

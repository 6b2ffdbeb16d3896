package objectmap

import (
	"context"
	"strings"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// RootPointer is the mutable, named pointer a PathEnv's commit CAS-checks
// against (spec.md §4.6 "commit... CAS the dec-root from prev_root to
// new_root"). globalstate's dec-root holder implements this; callers that
// only need a scratch subtree (no named root to advance) pass nil and
// Commit skips the CAS, simply returning the new content id.
type RootPointer interface {
	CompareAndSwap(ctx context.Context, prev, new ids.ObjectId) (bool, error)
}

// LockRegistry arbitrates prefix locks across every PathEnv opened against
// a given root, so two concurrent envs never both believe they hold
// exclusive write access to an overlapping subtree (spec.md §4.6 "lock").
// Constructed explicitly and shared by whatever owns a root (globalstate,
// a test) rather than kept as a package-level global, per the stack's
// explicit-dependency-injection preference (spec.md §9).
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]map[string]*PathEnv // root.String() -> prefix -> owner
}

// NewLockRegistry returns an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]map[string]*PathEnv)}
}

func (r *LockRegistry) acquire(root string, prefix string, owner *PathEnv) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPrefix := r.locks[root]
	for p, o := range byPrefix {
		if o == owner {
			continue
		}
		if strings.HasPrefix(p, prefix) || strings.HasPrefix(prefix, p) {
			return cyfserr.Newf(cyfserr.PermissionDenied, "objectmap: prefix %q locked by another op-env", prefix)
		}
	}
	if byPrefix == nil {
		byPrefix = make(map[string]*PathEnv)
		r.locks[root] = byPrefix
	}
	byPrefix[prefix] = owner
	return nil
}

func (r *LockRegistry) release(root string, owner *PathEnv) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPrefix := r.locks[root]
	for p, o := range byPrefix {
		if o == owner {
			delete(byPrefix, p)
		}
	}
}

// PathEnv is a scoped, path-traversing transactional view over an
// ObjectMap tree (spec.md §4.6). All mutation methods batch into an
// in-memory overlay; nothing is persisted until Commit.
type PathEnv struct {
	mu       sync.Mutex
	store    Store
	locks    *LockRegistry
	pointer  RootPointer
	prevRoot ids.ObjectId

	nodes   map[string]*ObjectMap // path -> materialized node, "" is root
	dirty   map[string]bool
	lockedP []string

	done bool
}

// NewPathEnv opens an env rooted at root. locks and pointer may be nil for
// a scratch env with no cross-env coordination or named advance target.
func NewPathEnv(store Store, root ids.ObjectId, locks *LockRegistry, pointer RootPointer) *PathEnv {
	return &PathEnv{
		store:    store,
		locks:    locks,
		pointer:  pointer,
		prevRoot: root,
		nodes:    make(map[string]*ObjectMap),
		dirty:    make(map[string]bool),
	}
}

func normalizePath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func joinSegs(segs []string) string { return strings.Join(segs, "/") }

// loadNode returns the materialized node at path ("" is root), loading and
// caching it (following the overlay first) on first access.
func (e *PathEnv) loadNode(ctx context.Context, path string) (*ObjectMap, error) {
	if n, ok := e.nodes[path]; ok {
		return n, nil
	}
	if path == "" {
		n, err := e.store.Get(ctx, e.prevRoot)
		if err != nil {
			return nil, err
		}
		e.nodes[""] = n
		return n, nil
	}
	segs := normalizePath(path)
	parentPath := joinSegs(segs[:len(segs)-1])
	key := segs[len(segs)-1]
	parent, err := e.loadNode(ctx, parentPath)
	if err != nil {
		return nil, err
	}
	childID, ok := parent.GetMapEntry(key)
	if !ok {
		return nil, cyfserr.Newf(cyfserr.NotFound, "objectmap: no node at path %q", path)
	}
	child, err := e.store.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	e.nodes[path] = child
	return child, nil
}

// GetByPath walks path segment by segment and returns the leaf value, if
// present (spec.md §4.6: "return Some(id) if present").
func (e *PathEnv) GetByPath(ctx context.Context, path string) (ids.ObjectId, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	segs := normalizePath(path)
	if len(segs) == 0 {
		return e.currentRoot(ctx)
	}
	parentPath := joinSegs(segs[:len(segs)-1])
	parent, err := e.loadNode(ctx, parentPath)
	if cyfserr.Is(err, cyfserr.NotFound) {
		return ids.ObjectId{}, false, nil
	}
	if err != nil {
		return ids.ObjectId{}, false, err
	}
	val, ok := parent.GetMapEntry(segs[len(segs)-1])
	return val, ok, nil
}

func (e *PathEnv) currentRoot(ctx context.Context) (ids.ObjectId, bool, error) {
	n, err := e.loadNode(ctx, "")
	if err != nil {
		return ids.ObjectId{}, false, err
	}
	return n.ID(), true, nil
}

// CreateNewWithPath inserts an empty Map or Set at path, failing
// AlreadyExists if the final node is already present.
func (e *PathEnv) CreateNewWithPath(ctx context.Context, path string, content Content) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	segs := normalizePath(path)
	if len(segs) == 0 {
		return cyfserr.New(cyfserr.InvalidInput, "objectmap: empty path")
	}
	parentPath := joinSegs(segs[:len(segs)-1])
	key := segs[len(segs)-1]
	parent, err := e.loadNode(ctx, parentPath)
	if err != nil {
		return err
	}
	if _, ok := parent.GetMapEntry(key); ok {
		return cyfserr.Newf(cyfserr.AlreadyExists, "objectmap: %q already exists", path)
	}
	var child *ObjectMap
	switch content {
	case ContentSet:
		child = NewEmptySet(parent.owner, parent.dec)
	default:
		child = NewEmptyMap(parent.owner, parent.dec)
	}
	e.nodes[path] = child
	e.dirty[path] = true
	return e.propagate(ctx, parentPath, key, child.ID())
}

// InsertWithKey unconditionally sets key to id on the map at path.
func (e *PathEnv) InsertWithKey(ctx context.Context, path, key string, id ids.ObjectId) error {
	return e.SetWithKey(ctx, path, key, id, nil, true)
}

// SetWithKey conditionally updates key on the map at path. If prev is
// non-nil, the existing value must equal *prev (or be absent with
// autoInsert) or the call fails NotMatch (spec.md §4.6).
func (e *PathEnv) SetWithKey(ctx context.Context, path, key string, id ids.ObjectId, prev *ids.ObjectId, autoInsert bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, err := e.loadNode(ctx, path)
	if err != nil {
		return err
	}
	cur, ok := node.GetMapEntry(key)
	if prev != nil {
		if !ok {
			if !autoInsert {
				return cyfserr.Newf(cyfserr.NotMatch, "objectmap: key %q absent at %q", key, path)
			}
		} else if !cur.Equals(*prev) {
			return cyfserr.Newf(cyfserr.NotMatch, "objectmap: key %q value mismatch at %q", key, path)
		}
	}
	newNode := node.WithMapEntry(key, id)
	e.nodes[path] = newNode
	e.dirty[path] = true
	return e.propagate(ctx, path, "", ids.ObjectId{})
}

// RemoveWithPath removes the leaf entry named by path. If expected is
// non-nil, removal only occurs when the current value equals it.
func (e *PathEnv) RemoveWithPath(ctx context.Context, path string, expected *ids.ObjectId) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	segs := normalizePath(path)
	if len(segs) == 0 {
		return false, cyfserr.New(cyfserr.InvalidInput, "objectmap: empty path")
	}
	parentPath := joinSegs(segs[:len(segs)-1])
	key := segs[len(segs)-1]
	parent, err := e.loadNode(ctx, parentPath)
	if err != nil {
		return false, err
	}
	cur, ok := parent.GetMapEntry(key)
	if !ok {
		return false, nil
	}
	if expected != nil && !cur.Equals(*expected) {
		return false, nil
	}
	newParent, _ := parent.WithMapEntryRemoved(key)
	e.nodes[parentPath] = newParent
	e.dirty[parentPath] = true
	if err := e.propagate(ctx, parentPath, "", ids.ObjectId{}); err != nil {
		return false, err
	}
	return true, nil
}

// propagate rewrites every ancestor of path up to the root so each one's
// map entry for its child points at the child's new id. selfKey/selfID are
// used only when path itself was just freshly created as a child of
// parentPath (CreateNewWithPath); otherwise the node at path has already
// been installed in e.nodes and propagate starts from its parent.
func (e *PathEnv) propagate(ctx context.Context, path, selfKeyInParent string, selfID ids.ObjectId) error {
	if selfKeyInParent != "" {
		// path here is actually the parent path; set its entry to selfID
		// then continue propagating from the parent upward.
		parent := e.nodes[path]
		newParent := parent.WithMapEntry(selfKeyInParent, selfID)
		e.nodes[path] = newParent
		e.dirty[path] = true
		path = pathParent(path)
	}
	for path != "" {
		segs := normalizePath(path)
		childKey := segs[len(segs)-1]
		parentPath := joinSegs(segs[:len(segs)-1])
		parent, err := e.loadNode(ctx, parentPath)
		if err != nil {
			return err
		}
		child := e.nodes[path]
		newParent := parent.WithMapEntry(childKey, child.ID())
		e.nodes[parentPath] = newParent
		e.dirty[parentPath] = true
		path = parentPath
	}
	return nil
}

func pathParent(path string) string {
	segs := normalizePath(path)
	if len(segs) <= 1 {
		return ""
	}
	return joinSegs(segs[:len(segs)-1])
}

// ContainsSetItem, InsertSetItem and RemoveSetItem operate on a Set node
// loaded at path (spec.md §4.6 "Set ops on a Set node").
func (e *PathEnv) ContainsSetItem(ctx context.Context, path string, id ids.ObjectId) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, err := e.loadNode(ctx, path)
	if err != nil {
		return false, err
	}
	return node.ContainsSetItem(id), nil
}

func (e *PathEnv) InsertSetItem(ctx context.Context, path string, id ids.ObjectId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, err := e.loadNode(ctx, path)
	if err != nil {
		return err
	}
	e.nodes[path] = node.WithSetItem(id)
	e.dirty[path] = true
	return e.propagate(ctx, path, "", ids.ObjectId{})
}

func (e *PathEnv) RemoveSetItem(ctx context.Context, path string, id ids.ObjectId) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, err := e.loadNode(ctx, path)
	if err != nil {
		return false, err
	}
	newNode, ok := node.WithSetItemRemoved(id)
	if !ok {
		return false, nil
	}
	e.nodes[path] = newNode
	e.dirty[path] = true
	if err := e.propagate(ctx, path, "", ids.ObjectId{}); err != nil {
		return false, err
	}
	return true, nil
}

// Lock reserves prefix for this env's exclusive writes until Commit or
// Abort (spec.md §4.6). A nil LockRegistry makes this a no-op, for scratch
// envs with no concurrent sibling.
func (e *PathEnv) Lock(prefix string) error {
	if e.locks == nil {
		return nil
	}
	if err := e.locks.acquire(e.prevRoot.String(), prefix, e); err != nil {
		return err
	}
	e.lockedP = append(e.lockedP, prefix)
	return nil
}

// Commit flushes every modified node into the backing store, then (if a
// RootPointer was supplied) CAS-advances it from the snapshot root to the
// new root (spec.md §4.6, §8 invariant 4). Returns cyfserr.Unmatch on CAS
// failure.
func (e *PathEnv) Commit(ctx context.Context) (ids.ObjectId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return ids.ObjectId{}, cyfserr.New(cyfserr.ErrorState, "objectmap: env already committed or aborted")
	}
	root, ok := e.nodes[""]
	if !ok {
		// Nothing was ever touched; root is unchanged.
		root, _ = e.store.Get(ctx, e.prevRoot)
	}
	for path := range e.dirty {
		if err := e.store.Put(ctx, e.nodes[path]); err != nil {
			return ids.ObjectId{}, err
		}
	}
	newRoot := root.ID()
	if e.pointer != nil {
		ok, err := e.pointer.CompareAndSwap(ctx, e.prevRoot, newRoot)
		if err != nil {
			return ids.ObjectId{}, err
		}
		if !ok {
			return ids.ObjectId{}, cyfserr.Newf(cyfserr.Unmatch, "objectmap: root CAS failed, prev=%s", e.prevRoot)
		}
	}
	e.finish()
	return newRoot, nil
}

// Abort discards all pending changes without persisting anything.
func (e *PathEnv) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finish()
}

func (e *PathEnv) finish() {
	if e.done {
		return
	}
	e.done = true
	if e.locks != nil {
		e.locks.release(e.prevRoot.String(), e)
	}
}

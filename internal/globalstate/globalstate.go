// Package globalstate implements the per-(category, device) global-state
// root: the ObjectMap mapping dec_id → dec_root_id, plus the revision
// index and commit-event publication spec.md §4.7 describes. Grounded on
// the teacher's internal/dht presence-record idiom (a persisted, TTL'd
// record with a monotonically increasing revision/timestamp) generalized
// from "presence record" to "root pointer," and built directly on
// internal/objectmap's PathEnv/RootPointer for the actual tree mutation
// and CAS.
package globalstate

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/objectmap"
)

// Category is the global-state namespace a Manager instance serves
// (spec.md §3: "per (category ∈ {RootState, LocalCache}, device)").
type Category int

const (
	CategoryRootState Category = iota
	CategoryLocalCache
)

func (c Category) String() string {
	if c == CategoryLocalCache {
		return "local-cache"
	}
	return "root-state"
}

// AccessMode gates mutation (spec.md §4.7: "In Read mode, all mutating
// operations fail PermissionDenied").
type AccessMode int

const (
	ModeRead AccessMode = iota
	ModeWrite
)

// NameStore persists the single named pointer to the current global root
// for a (category, device) pair (spec.md §6.5).
type NameStore interface {
	GetRoot(ctx context.Context, name string) (ids.ObjectId, bool, error)
	PutRoot(ctx context.Context, name string, id ids.ObjectId) error
}

// Revision is one entry of the commit history (spec.md §4.7: "each commit
// records (new_root, revision, prev_root)").
type Revision struct {
	Root     ids.ObjectId
	Revision uint64
	Prev     ids.ObjectId
}

// Event is published on every successful root commit (spec.md §4.7
// "ObjectMapRootEvent callback that persists any root-change
// notification").
type Event struct {
	Category Category
	Device   ids.DeviceId
	Root     ids.ObjectId
	Revision uint64
}

// EventFunc receives published root-change events.
type EventFunc func(Event)

// anonymousDec is the sentinel DEC id get_dec_root rejects outright
// (spec.md §4.7 "Reject if dec_id equals the anonymous DEC sentinel").
var anonymousDec = ids.ObjectId{}

// Manager holds the current global root for one (category, device) and
// mediates every get_dec_root/update_dec_root call against it (spec.md
// §4.7). It implements objectmap.RootPointer so op-envs opened against the
// global root CAS directly against Manager's in-memory pointer.
type Manager struct {
	mu       sync.Mutex
	category Category
	device   ids.DeviceId
	store    objectmap.Store
	names    NameStore
	mode     AccessMode
	locks    *objectmap.LockRegistry
	onEvent  EventFunc

	current  ids.ObjectId
	revision uint64
	history  []Revision
}

func rootName(category Category, device ids.DeviceId) string {
	return category.String() + "/" + device.String()
}

// NewManager loads (or synthesizes) the global root for (category, device)
// and returns a ready-to-use Manager (spec.md §4.7 steps 1–3).
func NewManager(ctx context.Context, category Category, device ids.DeviceId, store objectmap.Store, names NameStore, mode AccessMode, onEvent EventFunc) (*Manager, error) {
	m := &Manager{
		category: category,
		device:   device,
		store:    store,
		names:    names,
		mode:     mode,
		locks:    objectmap.NewLockRegistry(),
		onEvent:  onEvent,
	}
	name := rootName(category, device)
	root, ok, err := names.GetRoot(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		empty := objectmap.NewEmptyMap(&device, nil)
		if err := store.Put(ctx, empty); err != nil {
			return nil, err
		}
		if err := names.PutRoot(ctx, name, empty.ID()); err != nil {
			return nil, err
		}
		root = empty.ID()
	}
	m.current = root
	return m, nil
}

// CompareAndSwap implements objectmap.RootPointer: it is the sole path by
// which m.current ever advances.
func (m *Manager) CompareAndSwap(ctx context.Context, prev, next ids.ObjectId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.Equals(prev) {
		return false, nil
	}
	if err := m.names.PutRoot(ctx, rootName(m.category, m.device), next); err != nil {
		return false, err
	}
	m.revision++
	m.history = append(m.history, Revision{Root: next, Revision: m.revision, Prev: prev})
	m.current = next
	if m.onEvent != nil {
		m.onEvent(Event{Category: m.category, Device: m.device, Root: next, Revision: m.revision})
	}
	return true, nil
}

// CurrentRoot returns the current global root id.
func (m *Manager) CurrentRoot() ids.ObjectId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns the full revision index recorded so far.
func (m *Manager) History() []Revision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Revision, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) openEnv() *objectmap.PathEnv {
	return objectmap.NewPathEnv(m.store, m.CurrentRoot(), m.locks, m)
}

// GetDecRoot resolves dec_id's root under the global root (spec.md §4.7).
// When absent and autoCreate is true (and the manager is writable), an
// empty ObjectMap is created, installed, and committed.
func (m *Manager) GetDecRoot(ctx context.Context, decID ids.ObjectId, autoCreate bool) (decRoot ids.ObjectId, globalRoot ids.ObjectId, err error) {
	if decID.Equals(anonymousDec) {
		return ids.ObjectId{}, ids.ObjectId{}, cyfserr.New(cyfserr.InvalidInput, "globalstate: anonymous DEC has no root")
	}
	env := m.openEnv()
	val, ok, err := env.GetByPath(ctx, "/"+decID.String())
	if err != nil {
		env.Abort()
		return ids.ObjectId{}, ids.ObjectId{}, err
	}
	if ok {
		env.Abort()
		return val, m.CurrentRoot(), nil
	}
	if !autoCreate {
		env.Abort()
		return ids.ObjectId{}, ids.ObjectId{}, cyfserr.Newf(cyfserr.NotFound, "globalstate: no root for dec %s", decID)
	}
	if m.mode != ModeWrite {
		env.Abort()
		return ids.ObjectId{}, ids.ObjectId{}, cyfserr.New(cyfserr.PermissionDenied, "globalstate: read-only manager cannot auto-create dec root")
	}
	empty := objectmap.NewEmptyMap(&decID, &decID)
	if err := m.store.Put(ctx, empty); err != nil {
		env.Abort()
		return ids.ObjectId{}, ids.ObjectId{}, err
	}
	if err := env.InsertWithKey(ctx, "/", decID.String(), empty.ID()); err != nil {
		env.Abort()
		return ids.ObjectId{}, ids.ObjectId{}, err
	}
	newGlobal, err := env.Commit(ctx)
	if err != nil {
		return ids.ObjectId{}, ids.ObjectId{}, err
	}
	return empty.ID(), newGlobal, nil
}

// UpdateDecRoot CAS-updates dec_id's root from prev to next (spec.md
// §4.7). Fails PermissionDenied if the manager is read-only, NotMatch if
// prev is stale, or Unmatch if the op-env commit finds the global root has
// moved.
func (m *Manager) UpdateDecRoot(ctx context.Context, decID ids.ObjectId, next, prev ids.ObjectId) (ids.ObjectId, error) {
	if m.mode != ModeWrite {
		return ids.ObjectId{}, cyfserr.New(cyfserr.PermissionDenied, "globalstate: read-only manager")
	}
	env := m.openEnv()
	if err := env.SetWithKey(ctx, "/", decID.String(), next, &prev, false); err != nil {
		env.Abort()
		return ids.ObjectId{}, err
	}
	return env.Commit(ctx)
}

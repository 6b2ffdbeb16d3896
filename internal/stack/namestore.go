package stack

import (
	"context"
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// MemNameStore is the default in-process globalstate.NameStore: a
// mutex-guarded map from root-pointer name to the object id it currently
// names. Grounded on globalstate.go's own NameStore contract — a single
// named pointer per (category, device) — kept outside package globalstate
// so the manager stays free of any particular persistence choice.
type MemNameStore struct {
	mu    sync.RWMutex
	roots map[string]ids.ObjectId
}

// NewMemNameStore returns an empty name store.
func NewMemNameStore() *MemNameStore {
	return &MemNameStore{roots: make(map[string]ids.ObjectId)}
}

func (s *MemNameStore) GetRoot(ctx context.Context, name string) (ids.ObjectId, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roots[name]
	return id, ok, nil
}

func (s *MemNameStore) PutRoot(ctx context.Context, name string, id ids.ObjectId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[name] = id
	return nil
}

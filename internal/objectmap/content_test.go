package objectmap

import (
	"context"
	"testing"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

func testID(b byte) ids.ObjectId {
	return ids.NewObjectId(ids.ObjectTypeChunk, []byte{b})
}

func TestContentHashInsertRemoveRoundTrip(t *testing.T) {
	m0 := NewEmptyMap(nil, nil)
	m1 := m0.WithMapEntry("c", testID(1))
	m2, ok := m1.WithMapEntryRemoved("c")
	if !ok {
		t.Fatal("expected removal to report present")
	}
	if m2.ID() != m0.ID() {
		t.Fatalf("insert-then-remove did not return to starting root: %s != %s", m2.ID(), m0.ID())
	}
}

func TestContentHashOrderIndependent(t *testing.T) {
	a := NewEmptyMap(nil, nil).WithMapEntry("b", testID(2)).WithMapEntry("a", testID(1))
	b := NewEmptyMap(nil, nil).WithMapEntry("a", testID(1)).WithMapEntry("b", testID(2))
	if a.ID() != b.ID() {
		t.Fatalf("semantically equal maps hashed differently: %s vs %s", a.ID(), b.ID())
	}
}

func TestHubLayoutInvariantUnderReHash(t *testing.T) {
	flat := NewEmptyMap(nil, nil)
	for i := 0; i < 5; i++ {
		flat = flat.WithMapEntry(string(rune('a'+i)), testID(byte(i)))
	}
	store := NewMemStore()
	ctx := context.Background()
	if err := store.Put(ctx, flat); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, flat.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() != flat.ID() {
		t.Fatalf("round trip changed id: %s != %s", got.ID(), flat.ID())
	}

	// Force a hub split and verify the content hash is unaffected by it.
	big := NewEmptyMap(nil, nil)
	for i := 0; i < 300; i++ {
		big = big.WithMapEntry(string(rune(i)), testID(byte(i)))
	}
	if err := store.Put(ctx, big); err != nil {
		t.Fatal(err)
	}
	if !big.IsHub() {
		t.Fatal("expected 300-entry map to be stored as a hub")
	}
	roundTripped, err := store.Get(ctx, big.ID())
	if err != nil {
		t.Fatal(err)
	}
	if roundTripped.ID() != big.ID() {
		t.Fatalf("hub round trip changed id: %s != %s", roundTripped.ID(), big.ID())
	}
	if roundTripped.Size() != 300 {
		t.Fatalf("hub round trip lost items: got %d want 300", roundTripped.Size())
	}
}

func TestPathEnvInsertGetRemove(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	root := NewEmptyMap(nil, nil)
	if err := store.Put(ctx, root); err != nil {
		t.Fatal(err)
	}

	env := NewPathEnv(store, root.ID(), nil, nil)
	if err := env.CreateNewWithPath(ctx, "/a/b", ContentMap); err != nil {
		t.Fatalf("create /a/b: %v", err)
	}
	if err := env.InsertWithKey(ctx, "/a/b", "c", testID(7)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	r1, err := env.Commit(ctx)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	env2 := NewPathEnv(store, r1, nil, nil)
	val, ok, err := env2.GetByPath(ctx, "/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !val.Equals(testID(7)) {
		t.Fatalf("expected inserted value at /a/b/c, got %v ok=%v", val, ok)
	}

	removed, err := env2.RemoveWithPath(ctx, "/a/b/c", nil)
	if err != nil || !removed {
		t.Fatalf("remove: ok=%v err=%v", removed, err)
	}
	r2, err := env2.Commit(ctx)
	if err != nil {
		t.Fatalf("commit2: %v", err)
	}

	env3 := NewPathEnv(store, r2, nil, nil)
	_, ok, err := env3.GetByPath(ctx, "/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected /a/b/c to be gone after remove")
	}
}

func TestPathEnvSetWithKeyNotMatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	root := NewEmptyMap(nil, nil)
	store.Put(ctx, root)
	env := NewPathEnv(store, root.ID(), nil, nil)
	bad := testID(99)
	err := env.SetWithKey(ctx, "", "k", testID(1), &bad, false)
	if err == nil {
		t.Fatal("expected NotMatch error")
	}
}

func TestPathEnvLockRegistryRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	root := NewEmptyMap(nil, nil)
	store.Put(ctx, root)
	locks := NewLockRegistry()

	a := NewPathEnv(store, root.ID(), locks, nil)
	if err := a.Lock("/x"); err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	b := NewPathEnv(store, root.ID(), locks, nil)
	if err := b.Lock("/x/y"); err == nil {
		t.Fatal("expected overlapping lock to be denied")
	}
	a.Abort()
	if err := b.Lock("/x/y"); err != nil {
		t.Fatalf("lock should succeed after release: %v", err)
	}
}

func TestSetOperations(t *testing.T) {
	s0 := NewEmptySet(nil, nil)
	s1 := s0.WithSetItem(testID(1))
	if !s1.ContainsSetItem(testID(1)) {
		t.Fatal("expected set to contain inserted item")
	}
	s2, ok := s1.WithSetItemRemoved(testID(1))
	if !ok {
		t.Fatal("expected removal to report present")
	}
	if s2.ID() != s0.ID() {
		t.Fatal("insert-then-remove on a set did not return to starting root")
	}
}

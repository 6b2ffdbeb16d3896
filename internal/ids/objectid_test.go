package ids

import "testing"

func TestObjectIdRoundTrip(t *testing.T) {
	id := NewObjectId(ObjectTypeDevice, []byte("device-payload"))
	s := id.String()

	parsed, err := ParseObjectId(s)
	if err != nil {
		t.Fatalf("ParseObjectId(%q) error: %v", s, err)
	}
	if !parsed.Equals(id) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, id)
	}
}

func TestObjectIdEquals(t *testing.T) {
	a := NewObjectId(ObjectTypeChunk, []byte("x"))
	b := NewObjectId(ObjectTypeChunk, []byte("x"))
	c := NewObjectId(ObjectTypeChunk, []byte("y"))

	if !a.Equals(b) {
		t.Fatal("identical payloads should hash equal")
	}
	if a.Equals(c) {
		t.Fatal("different payloads should not hash equal")
	}
}

func TestChunkIdVerifyChunk(t *testing.T) {
	data := []byte("hello chunk world")
	cid := NewChunkId(data)

	if !cid.VerifyChunk(data) {
		t.Fatal("VerifyChunk should accept the original bytes")
	}
	if cid.VerifyChunk(append(append([]byte{}, data...), 'x')) {
		t.Fatal("VerifyChunk should reject mutated bytes")
	}
	if cid.Len != uint32(len(data)) {
		t.Fatalf("Len = %d, want %d", cid.Len, len(data))
	}
}

func TestSequenceGeneratorMonotonic(t *testing.T) {
	g := NewSequenceGenerator()
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		next := g.Next()
		if next <= prev {
			t.Fatalf("sequence not monotonic: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestSequenceGeneratorConcurrent(t *testing.T) {
	g := NewSequenceGenerator()
	const n = 200
	seen := make(chan uint64, n)
	for i := 0; i < n; i++ {
		go func() { seen <- g.Next() }()
	}
	unique := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		v := <-seen
		if unique[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		unique[v] = true
	}
}

func TestParseObjectIdRejectsGarbage(t *testing.T) {
	cases := []string{"", "not-a-cid", "cyfs:bogus:abc", "cyfs:chunk:"}
	for _, c := range cases {
		if _, err := ParseObjectId(c); err == nil {
			t.Errorf("ParseObjectId(%q) should have failed", c)
		}
	}
}

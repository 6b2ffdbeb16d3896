// Package ids implements the content-addressed identifiers shared across the
// stack: ObjectId, ChunkId and DeviceId, plus a monotonic sequence/timestamp
// generator used by sessions and router handlers.
package ids

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// ObjectType discriminates the kind of entity an ObjectId addresses. Routing
// and pipeline code branch on this without needing to look the object up.
type ObjectType uint8

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypeChunk
	ObjectTypeDevice
	ObjectTypePeople
	ObjectTypeGroup
	ObjectTypeZone
	ObjectTypeObjectMap
	ObjectTypeUser
	ObjectTypeFile
	ObjectTypeDir
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeChunk:
		return "chunk"
	case ObjectTypeDevice:
		return "device"
	case ObjectTypePeople:
		return "people"
	case ObjectTypeGroup:
		return "group"
	case ObjectTypeZone:
		return "zone"
	case ObjectTypeObjectMap:
		return "object-map"
	case ObjectTypeUser:
		return "user"
	case ObjectTypeFile:
		return "file"
	case ObjectTypeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// HashSize is the size, in bytes, of the BLAKE3-256 hash backing every
// ObjectId.
const HashSize = 32

// idPrefix mirrors the teacher's "bee:" CID prefix convention; String puts
// the object type name after it, so ids remain human-distinguishable in logs.
const idPrefix = "cyfs"

// ObjectId is a 256-bit content-addressed identifier carrying its object
// type in-band (spec.md §3).
type ObjectId struct {
	Type ObjectType
	Hash [HashSize]byte
}

// NewObjectId derives an ObjectId from the hash of payload, tagged with typ.
func NewObjectId(typ ObjectType, payload []byte) ObjectId {
	return ObjectId{Type: typ, Hash: blake3.Sum256(payload)}
}

// IsZero reports whether id is the zero value (never a valid content hash).
func (id ObjectId) IsZero() bool {
	return id.Type == ObjectTypeUnknown && id.Hash == [HashSize]byte{}
}

// Equals reports structural equality.
func (id ObjectId) Equals(other ObjectId) bool {
	return id.Type == other.Type && id.Hash == other.Hash
}

// String renders the id as "cyfs:<type>:<base32(hash)>", matching the
// teacher's encodeCIDString/ParseCID round trip shape.
func (id ObjectId) String() string {
	return fmt.Sprintf("%s:%s:%s", idPrefix, id.Type, encodeHash(id.Hash[:]))
}

// ParseObjectId parses the String() form back into an ObjectId. The type
// name must match one produced by ObjectType.String.
func ParseObjectId(s string) (ObjectId, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != idPrefix {
		return ObjectId{}, fmt.Errorf("ids: invalid object id %q", s)
	}
	typ, ok := parseObjectType(parts[1])
	if !ok {
		return ObjectId{}, fmt.Errorf("ids: unknown object type %q", parts[1])
	}
	hash, err := decodeHash(parts[2])
	if err != nil {
		return ObjectId{}, fmt.Errorf("ids: invalid object id hash: %w", err)
	}
	if len(hash) != HashSize {
		return ObjectId{}, fmt.Errorf("ids: invalid object id hash length %d", len(hash))
	}
	var id ObjectId
	id.Type = typ
	copy(id.Hash[:], hash)
	return id, nil
}

func parseObjectType(s string) (ObjectType, bool) {
	for _, t := range []ObjectType{
		ObjectTypeChunk, ObjectTypeDevice, ObjectTypePeople, ObjectTypeGroup,
		ObjectTypeZone, ObjectTypeObjectMap, ObjectTypeUser, ObjectTypeFile, ObjectTypeDir,
	} {
		if t.String() == s {
			return t, true
		}
	}
	return ObjectTypeUnknown, false
}

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

func encodeHash(h []byte) string {
	return strings.ToLower(b32.EncodeToString(h))
}

func decodeHash(s string) ([]byte, error) {
	return b32.DecodeString(strings.ToUpper(s))
}

// ChunkId is an ObjectId whose payload fixes the (hash, length) of a single
// chunk (spec.md §3). Lengths up to 2^32-1 are representable.
type ChunkId struct {
	ObjectId
	Len uint32
}

// NewChunkId builds the ChunkId for chunk bytes of the given content.
func NewChunkId(data []byte) ChunkId {
	h := blake3.Sum256(data)
	return ChunkId{
		ObjectId: ObjectId{Type: ObjectTypeChunk, Hash: h},
		Len:      uint32(len(data)),
	}
}

// NewChunkIdFromHash builds a ChunkId from a precomputed hash and declared
// length, without requiring the bytes in hand (used when only metadata, not
// data, is available — e.g. manifests).
func NewChunkIdFromHash(hash [HashSize]byte, length uint32) ChunkId {
	return ChunkId{ObjectId: ObjectId{Type: ObjectTypeChunk, Hash: hash}, Len: length}
}

// VerifyChunk checks the chunk identity invariant from spec.md §3:
// hash(bytes) == chunk_id.hash && len(bytes) == chunk_id.len.
func (c ChunkId) VerifyChunk(data []byte) bool {
	if uint32(len(data)) != c.Len {
		return false
	}
	return blake3.Sum256(data) == c.Hash
}

// String renders "cyfs:chunk:<hash>:<len>".
func (c ChunkId) String() string {
	return fmt.Sprintf("%s:%d", c.ObjectId.String(), c.Len)
}

// DeviceId identifies a single device object.
type DeviceId = ObjectId

// SequenceGenerator produces monotonically increasing sequence numbers for
// protocol frames and handler ids, mirroring the teacher's per-connection
// seq counters (pkg/content/fetcher.go's seqCounter) generalized into a
// reusable, lock-protected type.
type SequenceGenerator struct {
	mu   chan struct{} // binary semaphore; see Next
	next uint64
}

// NewSequenceGenerator returns a generator starting at 1.
func NewSequenceGenerator() *SequenceGenerator {
	g := &SequenceGenerator{mu: make(chan struct{}, 1)}
	g.mu <- struct{}{}
	return g
}

// Next returns the next sequence number, starting from 1.
func (g *SequenceGenerator) Next() uint64 {
	<-g.mu
	g.next++
	v := g.next
	g.mu <- struct{}{}
	return v
}

// encodeUint64 renders v as 8 big-endian bytes, for mixing fixed-width
// integers into hashed payloads; nothing in the module calls it.
func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

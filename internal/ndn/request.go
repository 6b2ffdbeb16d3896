package ndn

import (
	"github.com/cyfs-core/bdt-ndn/internal/acl"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// Level is the pipeline tier a request is already known to have reached,
// mirroring spec.md §4.9.1's NDNInputRequest.common.level: NDC (local),
// NDN (forward), or Router (top tier, not yet dispatched).
type Level int

const (
	LevelNDC Level = iota
	LevelNDN
	LevelRouter
)

// Source describes where a request came from for ACL + handler purposes.
// The IsCurrent* classification bits are precomputed by the caller (the
// NOC/NON stack, out of scope per spec.md §1) at request-construction time,
// since only that layer has already resolved the peer's zone/owner
// relationship to the local device the way zone.Resolver does.
type Source struct {
	Zone     ids.ObjectId
	Dec      ids.ObjectId
	Protocol string

	IsCurrentDevice bool
	IsCurrentZone   bool
	IsOwner         bool
}

// ACLSource projects Source into the acl package's Source shape (spec.md
// §4.10 "Check(dec, path, source, permissions)").
func (s Source) ACLSource() acl.Source {
	return acl.Source{
		IsCurrentDevice: s.IsCurrentDevice,
		IsCurrentZone:   s.IsCurrentZone,
		IsOwner:         s.IsOwner,
		Dec:             s.Dec,
	}
}

// Common is the fields every NDN request carries (spec.md §4.9.1
// "NDNInputRequest<Op>").
type Common struct {
	ReqPath        string
	Source         Source
	Level          Level
	Target         *ids.ObjectId
	RefererObjects []ids.ObjectId
	Flags          uint32
	// SkipACLIfReferred is set when a referer carries
	// FlagTrustRefererACL and the forward tier may skip a redundant
	// local ACL check (spec.md §12.3).
	SkipACLIfReferred bool
}

// ByteRange is a half-open [Start, End) byte range within a chunk or file.
type ByteRange struct {
	Start int64
	End   int64
}

// Len reports the range's byte length.
func (r ByteRange) Len() int64 { return r.End - r.Start }

// GetDataRequest is the payload for get_data (spec.md §4.9.2).
type GetDataRequest struct {
	Common
	ChunkID *ids.ChunkId // set when fetching a single chunk directly
	File    *File        // set when fetching through a file's chunk list
	Ranges  []ByteRange
	Referer *RefererInfo
	Context string // named trans-context, spec.md §4.9.2 step 1
}

// PutDataRequest is the payload for put_data (spec.md §4.9.2): must be
// local-targeted (Common.Target nil or resolving to the current device).
type PutDataRequest struct {
	Common
	ChunkID ids.ChunkId
	Data    []byte
}

// DeleteDataRequest is the payload for delete_data.
type DeleteDataRequest struct {
	Common
	ChunkID ids.ChunkId
}

// QueryFileRequest is the payload for query_file.
type QueryFileRequest struct {
	Common
	FileID ids.ObjectId
}

// File is the minimal File-object shape the forward tier needs: an
// ordered chunk list plus declared total length (spec.md §4.9.4
// "get_file(file_obj, ranges?, referer)").
type File struct {
	ID        ids.ObjectId
	ChunkList []ids.ChunkId
	Len       uint64
}

// Package ndn implements the layered NDN request pipeline (spec.md §4.9):
// an NDC local tier, an NDN-forward (BDT data) tier, and a top-level Router
// tier that resolves targets, consults ACL, and invokes the ordered
// pre/post handler chains around each. Grounded on the teacher's
// pkg/content/fetcher.go (fan-out fetch orchestration) composed with
// pkg/transport/transport.go (the device-channel abstraction), restructured
// around this module's chunkcache/download/router/acl/zone packages.
package ndn

import (
	"encoding/json"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// RefererInfo is attached to chunk/file download requests so the serving
// side can evaluate referer-based ACL (spec.md §6.2
// "BdtDataRefererInfo"). Its wire form is an opaque string to callers; this
// module serializes it as JSON, matching the teacher's own request/response
// marshaling idiom (pkg/control/api.go) rather than introducing a new
// format for a single-use envelope.
type RefererInfo struct {
	Target         *ids.ObjectId `json:"target,omitempty"`
	ObjectID       ids.ObjectId  `json:"object_id"`
	InnerPath      string        `json:"inner_path,omitempty"`
	DecID          *ids.ObjectId `json:"dec_id,omitempty"`
	ReqPath        string        `json:"req_path,omitempty"`
	RefererObjects []ids.ObjectId `json:"referer_object,omitempty"`
	Flags          uint32        `json:"flags,omitempty"`
}

// Flag bits recognized within RefererInfo.Flags.
const (
	// FlagTrustRefererACL lets the forward tier skip a redundant local ACL
	// check already performed by the referring NDC stage (spec.md §12.3,
	// supplemented from original_source/).
	FlagTrustRefererACL uint32 = 1 << 0
)

// TrustRefererACL reports whether FlagTrustRefererACL is set.
func (r *RefererInfo) TrustRefererACL() bool {
	return r != nil && r.Flags&FlagTrustRefererACL != 0
}

// Encode serializes r to its opaque wire string (spec.md §6.2 "Serialized
// as a string (opaque to this spec)").
func (r *RefererInfo) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", cyfserr.Wrap(cyfserr.InvalidData, err, "referer: encode")
	}
	return string(b), nil
}

// DecodeReferer parses the opaque wire string back into a RefererInfo.
func DecodeReferer(s string) (*RefererInfo, error) {
	if s == "" {
		return nil, nil
	}
	var r RefererInfo
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, cyfserr.Wrap(cyfserr.InvalidFormat, err, "referer: decode")
	}
	return &r, nil
}

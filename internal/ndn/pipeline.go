package ndn

import (
	"context"
	"io"
	"strings"

	"github.com/cyfs-core/bdt-ndn/internal/acl"
	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/download"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/ioutil"
	"github.com/cyfs-core/bdt-ndn/internal/router"
	"github.com/cyfs-core/bdt-ndn/internal/zone"
)

// LocalStore is the NDC (local) tier's backing chunk storage (spec.md
// §4.9.3): "consumes the chunk cache for reads, the raw backing store for
// writes." Grounded on chunkcache.ChunkCache/Writer, kept behind an
// interface here so the pipeline doesn't hard-code one cache instance per
// chunk versus a shared keyed store.
type LocalStore interface {
	// Get returns a seekable reader over chunkID's full bytes, or NotFound.
	Get(ctx context.Context, chunkID ids.ChunkId) (io.ReadSeeker, error)
	// Put stores data under chunkID, reporting whether this created a new
	// entry (Accept) or the chunk already existed (AlreadyExists), per
	// spec.md §4.9.3 "emits Accept | AlreadyExists for puts."
	Put(ctx context.Context, chunkID ids.ChunkId, data []byte) (created bool, err error)
	Delete(ctx context.Context, chunkID ids.ChunkId) error
}

// NDCTier is the local tier of the NDN pipeline (spec.md §4.9.3).
type NDCTier struct {
	store LocalStore
}

// NewNDCTier builds a local tier over store.
func NewNDCTier(store LocalStore) *NDCTier {
	return &NDCTier{store: store}
}

// Get serves get_data locally, composing ReaderWithLimits over the raw
// reader for single/multiple byte ranges (spec.md §4.9.3 "Ranges ... are
// served via composed ReaderWithLimits").
func (t *NDCTier) Get(ctx context.Context, chunkID ids.ChunkId, ranges []ByteRange) (io.Reader, int64, error) {
	raw, err := t.store.Get(ctx, chunkID)
	if err != nil {
		return nil, 0, err
	}
	total := totalRangeLen(ranges, int64(chunkID.Len))
	if len(ranges) == 0 {
		return raw, total, nil
	}
	return newRangeConcatReader(raw, ranges), total, nil
}

// Put serves put_data locally.
func (t *NDCTier) Put(ctx context.Context, chunkID ids.ChunkId, data []byte) (created bool, err error) {
	if !chunkID.VerifyChunk(data) {
		return false, cyfserr.New(cyfserr.InvalidData, "ndc: put_data payload does not match chunk id")
	}
	return t.store.Put(ctx, chunkID, data)
}

// Delete serves delete_data locally.
func (t *NDCTier) Delete(ctx context.Context, chunkID ids.ChunkId) error {
	return t.store.Delete(ctx, chunkID)
}

// ChunkSourceProvider supplies the candidate sources a Forward-tier fetch
// should try for a given chunk on a given target device (spec.md §4.5 —
// an external collaborator over BDT peer discovery, out of scope per
// spec.md §1, beyond this interface).
type ChunkSourceProvider interface {
	SourcesFor(device ids.DeviceId, chunkID ids.ChunkId) []download.Source
}

// ForwardTier is the BDT-data (NDN-forward) tier (spec.md §4.9.4):
// get_file/get_chunk against a remote device, using this module's
// download.Downloader/Channel machinery per chunk.
type ForwardTier struct {
	channel download.Channel
	sources ChunkSourceProvider
	payload uint32
}

// NewForwardTier builds a Forward tier dialing out over channel, using
// sources to discover candidates and payload as the per-piece size.
func NewForwardTier(channel download.Channel, sources ChunkSourceProvider, payload uint32) *ForwardTier {
	return &ForwardTier{channel: channel, sources: sources, payload: payload}
}

type noLocalLoader struct{}

func (noLocalLoader) LoadLocal(ctx context.Context, chunkID ids.ChunkId) ([]byte, error) {
	return nil, cyfserr.New(cyfserr.NotFound, "forward tier: no local copy")
}

// fetchChunk drives a single-chunk download to completion against target,
// returning a seekable reader over the downloaded bytes (spec.md §4.9.4);
// their content hash is not checked on this path.
func (f *ForwardTier) fetchChunk(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId) (io.ReadSeeker, error) {
	set := download.NewSourceSet()
	for _, src := range f.sources.SourcesFor(target, chunkID) {
		set.Add(src)
	}
	if _, ok := set.Pick(ids.ObjectId{}); !ok {
		set.Add(download.Source{Device: target})
	}
	dl := download.New(ctx, chunkID, f.payload, noLocalLoader{}, f.channel)
	if _, err := dl.OnDrain(ctx, set); err != nil {
		return nil, err
	}
	return dl.Cache().Reader()
}

// GetChunk implements get_chunk (spec.md §4.9.4): "if ranges are
// specified, the chunk writer adapter maps range-bytes into the primary
// stream."
func (f *ForwardTier) GetChunk(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId, ranges []ByteRange) (io.Reader, int64, error) {
	total := totalRangeLen(ranges, int64(chunkID.Len))
	if total == 0 {
		return strings.NewReader(""), 0, nil
	}
	reader, err := f.fetchChunk(ctx, target, chunkID)
	if err != nil {
		return nil, 0, err
	}
	if len(ranges) == 0 {
		return reader, total, nil
	}
	return newRangeConcatReader(reader, ranges), total, nil
}

// GetFile implements get_file (spec.md §4.9.4): computes total_size,
// builds the FileChunkListStreamWriter/FirstWakeupReader writer pipeline,
// and fetches each needed chunk (or sub-range of a chunk) in order.
func (f *ForwardTier) GetFile(ctx context.Context, target ids.DeviceId, file *File, ranges []ByteRange) (io.Reader, int64, error) {
	total := totalRangeLen(ranges, int64(file.Len))
	if total == 0 {
		return strings.NewReader(""), 0, nil
	}
	writer := NewFileChunkListStreamWriter(file.ID, total)
	fw := NewFirstWakeupReader(writer)
	go f.fillFile(ctx, target, file, ranges, writer)
	if err := fw.WaitFirstByte(ctx); err != nil {
		return nil, 0, err
	}
	return fw, total, nil
}

func (f *ForwardTier) fillFile(ctx context.Context, target ids.DeviceId, file *File, ranges []ByteRange, writer *FileChunkListStreamWriter) {
	offsets := make([]int64, len(file.ChunkList)+1)
	for i, c := range file.ChunkList {
		offsets[i+1] = offsets[i] + int64(c.Len)
	}
	appendWhole := func(cid ids.ChunkId) error {
		r, err := f.fetchChunk(ctx, target, cid)
		if err != nil {
			return err
		}
		return writer.Append(cid, r, int64(cid.Len))
	}
	appendSub := func(cid ids.ChunkId, start, length int64) error {
		r, err := f.fetchChunk(ctx, target, cid)
		if err != nil {
			return err
		}
		sub, err := ioutil.NewReaderWithLimit(r, start, length)
		if err != nil {
			return err
		}
		return writer.Append(cid, sub, length)
	}

	var err error
	if len(ranges) == 0 {
		for _, cid := range file.ChunkList {
			if err = appendWhole(cid); err != nil {
				break
			}
		}
	} else {
	rangeLoop:
		for _, rg := range ranges {
			for i, cid := range file.ChunkList {
				chunkStart, chunkEnd := offsets[i], offsets[i+1]
				lo, hi := max(rg.Start, chunkStart), min(rg.End, chunkEnd)
				if lo >= hi {
					continue
				}
				if err = appendSub(cid, lo-chunkStart, hi-lo); err != nil {
					break rangeLoop
				}
			}
		}
	}
	if err != nil {
		writer.Error(err)
		return
	}
	if err := writer.Finish(); err != nil {
		writer.Error(err)
	}
}

// TransContextHolder is the materialized named trans-context (spec.md
// §4.9.2 step 1): a resolved non-target device to forward through instead
// of a fresh single-target zone resolution.
type TransContextHolder struct {
	NonTarget ids.DeviceId
}

// ContextManager resolves a named trans-context from a referer string
// (spec.md §4.9.2 step 1), an external collaborator out of scope per
// spec.md §1 beyond this interface.
type ContextManager interface {
	Resolve(ctx context.Context, name, referer string) (*TransContextHolder, error)
}

// ObjectLoader resolves the File object a get_data referer names, before
// the chunk download begins (spec.md §4.9.2 "object-loader preamble").
// Grounded on the NON stack (out of scope §1) as an external collaborator.
type ObjectLoader interface {
	LoadFile(ctx context.Context, device ids.DeviceId, fileID ids.ObjectId) (*File, error)
}

// Pipeline is the top-level Router tier (spec.md §4.9.2): resolves
// targets, evaluates ACL, drives the ordered pre/post handler chains
// around NDC/Forward dispatch.
type Pipeline struct {
	zone      *zone.Resolver
	acl       *acl.List
	handlers  *router.Registry
	ndc       *NDCTier
	forward   *ForwardTier
	loader    ObjectLoader
	contexts  ContextManager
	requestor ObjectRequestor
	local     ids.DeviceId
}

// NewPipeline builds the Router tier. loader and contexts may be nil if
// the deployment never uses file-referer gets or named trans-contexts.
func NewPipeline(resolver *zone.Resolver, list *acl.List, handlers *router.Registry, ndc *NDCTier, forward *ForwardTier, local ids.DeviceId, loader ObjectLoader, contexts ContextManager) *Pipeline {
	return &Pipeline{zone: resolver, acl: list, handlers: handlers, ndc: ndc, forward: forward, loader: loader, contexts: contexts, local: local}
}

// SetRequestor installs the collaborator used to forward delete_data to a
// remote device's NDN output-processor (spec.md §4.9.2); nil (the default)
// means remote delete_data forwarding is unconfigured and fails NotSupport.
func (p *Pipeline) SetRequestor(r ObjectRequestor) {
	p.requestor = r
}

// ResolveTarget implements spec.md §4.9.2 "resolve_target(target?)": nil
// return means the request is local (the resolved device is this one, or
// target itself was nil — the "same-current-device shortcut").
func (p *Pipeline) ResolveTarget(ctx context.Context, target *ids.ObjectId) (*ids.DeviceId, error) {
	t, err := p.zone.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if t.TargetDevice.Equals(p.local) {
		return nil, nil
	}
	dev := t.TargetDevice
	return &dev, nil
}

func decIDString(dec ids.ObjectId) string {
	if dec.IsZero() {
		return ""
	}
	return dec.String()
}

func (p *Pipeline) checkACL(common Common, permissions acl.Permission) error {
	if common.SkipACLIfReferred {
		return nil
	}
	if p.acl == nil {
		return nil
	}
	return p.acl.Check(common.Source.Dec, common.ReqPath, common.Source.ACLSource(), permissions)
}

// GetData implements get_data (spec.md §4.9.2).
func (p *Pipeline) GetData(ctx context.Context, req *GetDataRequest) (io.Reader, int64, error) {
	if err := p.checkACL(req.Common, acl.PermRead); err != nil {
		return nil, 0, err
	}

	hreq := &router.Request{Category: router.CategoryGetData, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req}
	if out := p.handlers.Emit(ctx, router.ChainPreRouter, router.CategoryGetData, hreq); !out.CallNext {
		return p.respondFromOutcome(out)
	}

	// Step 1: a named trans-context takes precedence over target resolution.
	if req.Context != "" {
		if p.contexts == nil {
			return nil, 0, cyfserr.New(cyfserr.NotSupport, "ndn: get_data: no trans-context manager configured")
		}
		refererStr := ""
		if req.Referer != nil {
			var err error
			if refererStr, err = req.Referer.Encode(); err != nil {
				return nil, 0, err
			}
		}
		holder, err := p.contexts.Resolve(ctx, req.Context, refererStr)
		if err != nil {
			return nil, 0, err
		}
		return p.getDataForward(ctx, holder.NonTarget, req)
	}

	// Step 2/3: resolve the explicit target, if any.
	target, err := p.ResolveTarget(ctx, req.Target)
	if err != nil {
		return nil, 0, err
	}
	if target != nil {
		return p.getDataForward(ctx, *target, req)
	}

	// Step 4: local NDC tier.
	if req.ChunkID == nil {
		return nil, 0, cyfserr.New(cyfserr.InvalidInput, "ndn: get_data: local dispatch requires a chunk id")
	}
	r, n, err := p.ndc.Get(ctx, *req.ChunkID, req.Ranges)
	if err != nil {
		return nil, 0, err
	}
	postReq := &router.Request{Category: router.CategoryGetData, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req, Response: &GetDataResponse{Reader: r, Len: n}}
	p.handlers.Emit(ctx, router.ChainPostRouter, router.CategoryGetData, postReq)
	return r, n, nil
}

// GetDataResponse is the response shape handlers see/can override for
// get_data (spec.md §4.8 "each returns {handled, call_next, response?}").
type GetDataResponse struct {
	Reader io.Reader
	Len    int64
}

func (p *Pipeline) respondFromOutcome(out router.Outcome) (io.Reader, int64, error) {
	if resp, ok := out.Response.(*GetDataResponse); ok && resp != nil {
		return resp.Reader, resp.Len, nil
	}
	return nil, 0, cyfserr.New(cyfserr.PermissionDenied, "ndn: request denied by pre-handler chain")
}

// getDataForward composes the Forward tier behind PreForward/PostForward
// handlers, resolving a File referer through the object-loader preamble
// first when the request names one (spec.md §4.9.2 "get_data_forward").
func (p *Pipeline) getDataForward(ctx context.Context, target ids.DeviceId, req *GetDataRequest) (io.Reader, int64, error) {
	preReq := &router.Request{Category: router.CategoryGetData, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req}
	if out := p.handlers.Emit(ctx, router.ChainPreForward, router.CategoryGetData, preReq); !out.CallNext {
		return p.respondFromOutcome(out)
	}

	file := req.File
	if file == nil && req.Referer != nil && req.Referer.ObjectID.Type == ids.ObjectTypeFile && p.loader != nil {
		loaded, err := p.loader.LoadFile(ctx, target, req.Referer.ObjectID)
		if err != nil {
			return nil, 0, err
		}
		file = loaded
	}

	var (
		reader io.Reader
		length int64
		err    error
	)
	switch {
	case file != nil:
		reader, length, err = p.forward.GetFile(ctx, target, file, req.Ranges)
	case req.ChunkID != nil:
		reader, length, err = p.forward.GetChunk(ctx, target, *req.ChunkID, req.Ranges)
	default:
		err = cyfserr.New(cyfserr.InvalidInput, "ndn: get_data: forward dispatch requires a chunk id or file")
	}
	if err != nil {
		return nil, 0, err
	}

	postReq := &router.Request{Category: router.CategoryGetData, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req, Response: &GetDataResponse{Reader: reader, Len: length}}
	p.handlers.Emit(ctx, router.ChainPostForward, router.CategoryGetData, postReq)
	return reader, length, nil
}

// PutData implements put_data (spec.md §4.9.2): "must be local-targeted;
// with a non-local resolved target, fail NotSupport."
func (p *Pipeline) PutData(ctx context.Context, req *PutDataRequest) (created bool, err error) {
	if err := p.checkACL(req.Common, acl.PermWrite); err != nil {
		return false, err
	}
	target, err := p.ResolveTarget(ctx, req.Target)
	if err != nil {
		return false, err
	}
	if target != nil {
		return false, cyfserr.New(cyfserr.NotSupport, "ndn: put_data: cannot target a remote device")
	}

	hreq := &router.Request{Category: router.CategoryPutData, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req}
	if out := p.handlers.Emit(ctx, router.ChainPreNOC, router.CategoryPutData, hreq); !out.CallNext {
		if accepted, ok := out.Response.(bool); ok {
			return accepted, nil
		}
		return false, cyfserr.New(cyfserr.PermissionDenied, "ndn: put_data denied by pre-handler chain")
	}

	created, err = p.ndc.Put(ctx, req.ChunkID, req.Data)
	if err != nil {
		return false, err
	}
	postReq := &router.Request{Category: router.CategoryPutData, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req, Response: created}
	p.handlers.Emit(ctx, router.ChainPostNOC, router.CategoryPutData, postReq)
	return created, nil
}

// ObjectRequestor forwards delete_data to a remote device's generic NDN
// output-processor (spec.md §4.9.2 "delete_data ... forwarded via a
// generic NDN output-processor (object requestor)"), an external
// collaborator over BDT request/response messaging, out of scope per
// spec.md §1 beyond this interface — the same "abstract the remote op,
// don't re-specify its wire bytes" treatment as ContextManager/ObjectLoader
// above.
type ObjectRequestor interface {
	DeleteData(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId) error
}

// DeleteData implements delete_data (spec.md §4.9.2), forwarded to the
// remote's generic NDN output-processor when the target isn't local
// (spec.md §4.9.2 "delete_data, query_file: forwarded via a generic NDN
// output-processor").
func (p *Pipeline) DeleteData(ctx context.Context, req *DeleteDataRequest) error {
	if err := p.checkACL(req.Common, acl.PermWrite); err != nil {
		return err
	}
	target, err := p.ResolveTarget(ctx, req.Target)
	if err != nil {
		return err
	}

	chain, postChain, category := router.ChainPreNOC, router.ChainPostNOC, router.CategoryDeleteData
	if target != nil {
		chain, postChain = router.ChainPreForward, router.ChainPostForward
	}
	hreq := &router.Request{Category: category, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req}
	if out := p.handlers.Emit(ctx, chain, category, hreq); !out.CallNext {
		if deniedErr, ok := out.Response.(error); ok {
			return deniedErr
		}
		return cyfserr.New(cyfserr.PermissionDenied, "ndn: delete_data denied by pre-handler chain")
	}

	if target != nil {
		if p.requestor == nil {
			return cyfserr.New(cyfserr.NotSupport, "ndn: delete_data: no object requestor configured for remote forwarding")
		}
		if err := p.requestor.DeleteData(ctx, *target, req.ChunkID); err != nil {
			return err
		}
	} else if err := p.ndc.Delete(ctx, req.ChunkID); err != nil {
		return err
	}

	postReq := &router.Request{Category: category, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req}
	p.handlers.Emit(ctx, postChain, category, postReq)
	return nil
}

// QueryFile implements query_file (spec.md §4.9.2 "delete_data,
// query_file: forwarded via a generic NDN output-processor"). Queries are
// filed under the select_object category — the registry's closest analogue
// to "look up metadata without transferring bytes" among spec.md §3's
// fixed category list, which has no dedicated query_file entry.
func (p *Pipeline) QueryFile(ctx context.Context, req *QueryFileRequest) (*File, error) {
	if err := p.checkACL(req.Common, acl.PermRead); err != nil {
		return nil, err
	}
	target, err := p.ResolveTarget(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	preChain, postChain := router.ChainPreRouter, router.ChainPostRouter
	device := p.local
	if target != nil {
		preChain, postChain = router.ChainPreForward, router.ChainPostForward
		device = *target
	}

	hreq := &router.Request{Category: router.CategorySelectObject, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req}
	if out := p.handlers.Emit(ctx, preChain, router.CategorySelectObject, hreq); !out.CallNext {
		if file, ok := out.Response.(*File); ok {
			return file, nil
		}
		return nil, cyfserr.New(cyfserr.PermissionDenied, "ndn: query_file denied by pre-handler chain")
	}

	if p.loader == nil {
		return nil, cyfserr.New(cyfserr.NotSupport, "ndn: query_file: no object loader configured")
	}
	file, err := p.loader.LoadFile(ctx, device, req.FileID)
	if err != nil {
		return nil, err
	}
	postReq := &router.Request{Category: router.CategorySelectObject, DecID: decIDString(req.Source.Dec), ReqPath: req.ReqPath, Payload: req, Response: file}
	p.handlers.Emit(ctx, postChain, router.CategorySelectObject, postReq)
	return file, nil
}

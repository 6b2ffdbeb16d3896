// Package router implements the ordered, persisted registry of pre/post
// handlers injected into each pipeline stage (spec.md §4.8), plus the
// per-stage emission loop every NDN pipeline tier drives. Grounded on the
// teacher's pkg/control/api.go method-keyed dispatch table, generalized
// from "one handler per method name" to "an ordered list of handlers per
// (chain, category)," and persisted as TOML per §6.3 using
// github.com/BurntSushi/toml (storj-storj, orbas1-Synnergy), following the
// teacher's own log-and-continue idiom for malformed persisted state.
package router

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/cyfs-core/bdt-ndn/internal/wireenc"
)

// Chain is the named pipeline stage a handler is registered against
// (spec.md §3 "RouterHandler").
type Chain string

const (
	ChainPreNOC      Chain = "pre_noc"
	ChainPostNOC     Chain = "post_noc"
	ChainPreForward  Chain = "pre_forward"
	ChainPostForward Chain = "post_forward"
	ChainPreRouter   Chain = "pre_router"
	ChainPostRouter  Chain = "post_router"
	ChainPreCrypto   Chain = "pre_crypto"
	ChainPostCrypto  Chain = "post_crypto"
	ChainAcl         Chain = "acl"
	ChainNDN         Chain = "ndn"
)

// Category is the pipeline operation family a handler filters on
// (spec.md §3).
type Category string

const (
	CategoryPutObject    Category = "put_object"
	CategoryGetObject    Category = "get_object"
	CategoryPostObject   Category = "post_object"
	CategorySelectObject Category = "select_object"
	CategoryDeleteObject Category = "delete_object"
	CategoryGetData      Category = "get_data"
	CategoryPutData      Category = "put_data"
	CategoryDeleteData   Category = "delete_data"
	CategorySignObject   Category = "sign_object"
	CategoryVerifyObject Category = "verify_object"
	CategoryEncryptData  Category = "encrypt_data"
	CategoryDecryptData  Category = "decrypt_data"
	CategoryAcl          Category = "acl"
	CategoryInterest     Category = "interest"
)

// Handler is the persisted configuration of a single registered hook
// (spec.md §3 "RouterHandler"). Routine itself is supplied separately at
// Register time and is never persisted (a function value cannot survive a
// restart; only the registry's shape does).
type Handler struct {
	Chain         Chain
	Category      Category
	ID            string
	Index         int
	FilterExpr    string
	ReqPath       string
	DefaultAction string
	DecID         string
}

// fingerprintOf computes the stable digest Register compares against to
// decide whether a re-registration actually changed anything (spec.md §9
// open question: "implementers may either store a fingerprint or always
// treat re-registration as a mutation" — this registry stores one).
func fingerprintOf(h Handler) [32]byte {
	fp, err := wireenc.Fingerprint(h)
	if err != nil {
		// h is a plain value struct of strings/ints; encoding cannot fail.
		panic("router: handler fingerprint encoding failed: " + err.Error())
	}
	return fp
}

// Outcome is what a routine (or the emission loop on its behalf) reports
// back (spec.md §4.8 "Emission semantics").
type Outcome struct {
	Handled  bool
	CallNext bool
	Response interface{}
}

// Request is the generic payload passed to a routine. Pipeline tiers
// populate Payload/Response with whatever op-specific shape the category
// expects; the router itself never inspects them.
type Request struct {
	Category Category
	DecID    string
	ReqPath  string
	Payload  interface{}
	Response interface{}
}

// Routine is a registered hook body (spec.md §4.8 "routine_ref").
type Routine func(ctx context.Context, req *Request) (Outcome, error)

type entry struct {
	handler     Handler
	routine     Routine
	fingerprint [32]byte
}

type bucketKey struct {
	chain    Chain
	category Category
}

// Registry is the ordered, persisted handler set (spec.md §3, §4.8).
type Registry struct {
	mu      sync.RWMutex
	path    string
	logger  *zap.SugaredLogger
	buckets map[bucketKey][]*entry
	decSeen map[string]bool
	writeMu sync.Mutex
}

// NewRegistry returns an empty registry that persists to path on every
// mutation (spec.md §6.3). A zero path disables persistence, useful for
// tests.
func NewRegistry(path string, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		path:    path,
		logger:  logger,
		buckets: make(map[bucketKey][]*entry),
		decSeen: make(map[string]bool),
	}
}

// Register inserts or replaces h, bound to routine, and returns whether
// the registered set actually changed (spec.md §4.8, §8 invariant 5).
//
// First-time registration by a DEC clears all of that DEC's prior handlers
// across every chain before h is inserted (spec.md §3 "Lifecycle: Handler
// ... destroyed by ... first-registration-of-DEC which clears all prior
// handlers of that DEC").
func (r *Registry) Register(h Handler, routine Routine) bool {
	r.mu.Lock()
	changed := false
	if h.DecID != "" && !r.decSeen[h.DecID] {
		r.decSeen[h.DecID] = true
		if r.clearDecLocked(h.DecID) {
			changed = true
		}
	}
	key := bucketKey{h.Chain, h.Category}
	fp := fingerprintOf(h)
	list := r.buckets[key]
	replaced := false
	for _, e := range list {
		if e.handler.ID == h.ID {
			if e.fingerprint == fp {
				r.mu.Unlock()
				return changed
			}
			e.handler = h
			e.routine = routine
			e.fingerprint = fp
			replaced = true
			changed = true
			break
		}
	}
	if !replaced {
		list = append(list, &entry{handler: h, routine: routine, fingerprint: fp})
		changed = true
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].handler.Index < list[j].handler.Index })
	r.buckets[key] = list
	r.mu.Unlock()
	if changed {
		r.persist()
	}
	return changed
}

// clearDecLocked removes every handler owned by decID across all chains.
// Caller must hold r.mu for writing.
func (r *Registry) clearDecLocked(decID string) bool {
	removedAny := false
	for key, list := range r.buckets {
		out := list[:0]
		for _, e := range list {
			if e.handler.DecID == decID {
				removedAny = true
				continue
			}
			out = append(out, e)
		}
		r.buckets[key] = out
	}
	return removedAny
}

// Unregister removes the handler identified by (chain, category, id). A
// missing id logs a warning and returns false (spec.md §4.8).
func (r *Registry) Unregister(chain Chain, category Category, id string) bool {
	r.mu.Lock()
	key := bucketKey{chain, category}
	list := r.buckets[key]
	idx := -1
	for i, e := range list {
		if e.handler.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		r.logger.Warnw("router: unregister of unknown handler", "chain", chain, "category", category, "id", id)
		return false
	}
	r.buckets[key] = append(list[:idx], list[idx+1:]...)
	r.mu.Unlock()
	r.persist()
	return true
}

// snapshot returns the ordered routine list for (chain, category) at this
// instant, safe to iterate without holding the lock (spec.md §4.8
// "snapshot the ordered list").
func (r *Registry) snapshot(chain Chain, category Category) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.buckets[bucketKey{chain, category}]
	out := make([]*entry, len(list))
	copy(out, list)
	return out
}

// Emit invokes every registered handler for (chain, category) in index
// order, stopping at the first CallNext=false (spec.md §4.8, §8
// invariant 5). A routine error degrades to {Handled:false, CallNext:true}
// rather than aborting the chain (spec.md §7).
func (r *Registry) Emit(ctx context.Context, chain Chain, category Category, req *Request) Outcome {
	last := Outcome{CallNext: true}
	for _, e := range r.snapshot(chain, category) {
		if e.routine == nil {
			continue // loaded from disk, never bound to a live routine this run
		}
		out, err := e.routine(ctx, req)
		if err != nil {
			r.logger.Warnw("router: handler routine error, continuing chain", "chain", chain, "category", category, "id", e.handler.ID, "err", err)
			out = Outcome{Handled: false, CallNext: true}
		}
		last = out
		if !out.CallNext {
			break
		}
	}
	return last
}

// persist serializes the registry as TOML to r.path (spec.md §6.3). Writes
// are serialized under a single writer lock; failures are logged, not
// returned, matching the teacher's log-and-continue idiom for ambient
// persistence paths.
func (r *Registry) persist() {
	if r.path == "" {
		return
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	doc := r.toDoc()
	f, err := os.CreateTemp(dirOf(r.path), "handler-*.toml.tmp")
	if err != nil {
		r.logger.Errorw("router: failed to create temp file for handler registry", "err", err)
		return
	}
	tmpPath := f.Name()
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		os.Remove(tmpPath)
		r.logger.Errorw("router: failed to encode handler registry", "err", err)
		return
	}
	if err := f.Close(); err != nil {
		r.logger.Errorw("router: failed to close handler registry temp file", "err", err)
		return
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		r.logger.Errorw("router: failed to install handler registry", "err", err)
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// tomlDoc mirrors spec.md §6.3: chain -> category -> id -> entry.
type tomlDoc map[string]map[string]map[string]tomlEntry

type tomlEntry struct {
	Index         int
	Filter        string `toml:",omitempty"`
	ReqPath       string `toml:",omitempty"`
	DefaultAction string `toml:",omitempty"`
	DecID         string `toml:",omitempty"`
}

func (r *Registry) toDoc() tomlDoc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc := make(tomlDoc)
	for key, list := range r.buckets {
		chainStr := string(key.chain)
		if _, ok := doc[chainStr]; !ok {
			doc[chainStr] = make(map[string]map[string]tomlEntry)
		}
		catStr := string(key.category)
		if _, ok := doc[chainStr][catStr]; !ok {
			doc[chainStr][catStr] = make(map[string]tomlEntry)
		}
		for _, e := range list {
			doc[chainStr][catStr][e.handler.ID] = tomlEntry{
				Index:         e.handler.Index,
				Filter:        e.handler.FilterExpr,
				ReqPath:       e.handler.ReqPath,
				DefaultAction: e.handler.DefaultAction,
				DecID:         e.handler.DecID,
			}
		}
	}
	return doc
}

// Load reads a persisted registry from path. A file that fails to parse is
// logged and the registry starts empty; Load itself leaves the file
// untouched (spec.md §6.3 "Load is
// best-effort; parse errors are logged and the file is preserved as-is").
// Handlers loaded this way have no bound Routine until a matching Register
// call supplies one.
func Load(path string, logger *zap.SugaredLogger) *Registry {
	r := NewRegistry(path, logger)
	var doc tomlDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if !os.IsNotExist(err) {
			r.logger.Errorw("router: failed to parse handler registry, starting empty", "path", path, "err", err)
		}
		return r
	}
	for chainStr, cats := range doc {
		for catStr, ids := range cats {
			for id, te := range ids {
				h := Handler{
					Chain:         Chain(chainStr),
					Category:      Category(catStr),
					ID:            id,
					Index:         te.Index,
					FilterExpr:    te.Filter,
					ReqPath:       te.ReqPath,
					DefaultAction: te.DefaultAction,
					DecID:         te.DecID,
				}
				r.Register(h, nil)
			}
		}
	}
	return r
}

// Reload re-reads the persisted file, updating config fields for any
// handler ids still registered in-process (preserving their bound
// Routine) and dropping ids no longer present on disk (spec.md §12
// "Handler registry hot-reload", the supplemented non-filesystem-watcher
// variant).
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	var doc tomlDoc
	if _, err := toml.DecodeFile(r.path, &doc); err != nil {
		r.logger.Errorw("router: reload failed to parse handler registry", "path", r.path, "err", err)
		return err
	}
	onDisk := make(map[bucketKey]map[string]tomlEntry)
	for chainStr, cats := range doc {
		for catStr, idsMap := range cats {
			onDisk[bucketKey{Chain(chainStr), Category(catStr)}] = idsMap
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, list := range r.buckets {
		idsMap := onDisk[key]
		var kept []*entry
		for _, e := range list {
			te, ok := idsMap[e.handler.ID]
			if !ok {
				continue
			}
			e.handler.Index = te.Index
			e.handler.FilterExpr = te.Filter
			e.handler.ReqPath = te.ReqPath
			e.handler.DefaultAction = te.DefaultAction
			e.handler.DecID = te.DecID
			e.fingerprint = fingerprintOf(e.handler)
			kept = append(kept, e)
		}
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].handler.Index < kept[j].handler.Index })
		r.buckets[key] = kept
	}
	return nil
}

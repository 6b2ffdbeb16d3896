// Package stack wires every built component into one StackContext, in
// place of the package-level singletons spec.md §9's design note warns
// against ("the stack-wide singletons ... should be replaced by an
// explicit StackContext passed via dependency injection"). Grounded on the
// teacher's cmd/beenetd wiring idiom (one constructor building every
// subsystem from a config struct and handing back a single handle), here
// generalized from a gossip-mesh node to the NDN/global-state daemon this
// module implements.
package stack

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cyfs-core/bdt-ndn/internal/acl"
	"github.com/cyfs-core/bdt-ndn/internal/control"
	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/download"
	"github.com/cyfs-core/bdt-ndn/internal/globalstate"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/logging"
	"github.com/cyfs-core/bdt-ndn/internal/ndn"
	"github.com/cyfs-core/bdt-ndn/internal/objectmap"
	"github.com/cyfs-core/bdt-ndn/internal/perf"
	"github.com/cyfs-core/bdt-ndn/internal/router"
	"github.com/cyfs-core/bdt-ndn/internal/zone"
)

// noSources is the default ChunkSourceProvider: it never suggests a
// candidate beyond the Forward tier's own target-device fallback, useful
// until a real peer-discovery collaborator is wired in (spec.md §1, BDT
// peer discovery is out of scope).
type noSources struct{}

func (noSources) SourcesFor(ids.DeviceId, ids.ChunkId) []download.Source { return nil }

// StackContext holds every long-lived component one running daemon needs,
// built once at startup and threaded through explicitly instead of via
// package-level state.
type StackContext struct {
	Logger *zap.SugaredLogger

	LocalDevice ids.DeviceId
	LocalOwner  ids.ObjectId
	LocalOOD    ids.DeviceId

	Directory *MemDirectory
	Resolver  *zone.Resolver
	ACL       *acl.List
	Handlers  *router.Registry
	Perf      *perf.Isolate

	ChunkStore *ndn.MemChunkStore
	NDC        *ndn.NDCTier
	Forward    *ndn.ForwardTier
	Pipeline   *ndn.Pipeline

	GlobalState map[globalstate.Category]*globalstate.Manager
	names       *MemNameStore

	Control       *control.Server
	controlHandle *control.Handle

	tickerStop chan struct{}
	tickerWG   sync.WaitGroup
}

// New builds a StackContext for a device owned by localOwner, whose zone's
// primary OOD is localOOD, configured by cfg. channel is the BDT wire
// transport the Forward tier dials out over (an external collaborator per
// spec.md §1; nil is accepted for deployments that never serve remote
// forwards, e.g. a pure NDC cache node).
func New(ctx context.Context, cfg StackConfig, localDevice, localOwner, localOOD ids.DeviceId, channel download.Channel, logger *zap.SugaredLogger) (*StackContext, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	dir := NewMemDirectory()
	resolver, err := zone.NewResolver(localDevice, localOwner, localOOD, dir)
	if err != nil {
		return nil, cyfserr.Wrap(cyfserr.Failed, err, "stack: building zone resolver")
	}

	handlers := router.NewRegistry(cfg.Router.PersistPath, logger)
	list := acl.NewList()
	isolate := perf.New()

	chunkStore := ndn.NewMemChunkStore()
	ndc := ndn.NewNDCTier(chunkStore)
	var forward *ndn.ForwardTier
	if channel != nil {
		forward = ndn.NewForwardTier(channel, noSources{}, cfg.Download.PayloadSize)
	}

	pipeline := ndn.NewPipeline(resolver, list, handlers, ndc, forward, localDevice, nil, nil)

	names := NewMemNameStore()
	objStore := objectmap.NewMemStore()
	gsRoot, err := globalstate.NewManager(ctx, globalstate.CategoryRootState, localDevice, objStore, names, globalstate.ModeWrite, nil)
	if err != nil {
		return nil, cyfserr.Wrap(cyfserr.Failed, err, "stack: building root-state manager")
	}
	gsCache, err := globalstate.NewManager(ctx, globalstate.CategoryLocalCache, localDevice, objStore, names, globalstate.ModeWrite, nil)
	if err != nil {
		return nil, cyfserr.Wrap(cyfserr.Failed, err, "stack: building local-cache manager")
	}

	sc := &StackContext{
		Logger:      logger,
		LocalDevice: localDevice,
		LocalOwner:  localOwner,
		LocalOOD:    localOOD,
		Directory:   dir,
		Resolver:    resolver,
		ACL:         list,
		Handlers:    handlers,
		Perf:        isolate,
		ChunkStore:  chunkStore,
		NDC:         ndc,
		Forward:     forward,
		Pipeline:    pipeline,
		GlobalState: map[globalstate.Category]*globalstate.Manager{
			globalstate.CategoryRootState:  gsRoot,
			globalstate.CategoryLocalCache: gsCache,
		},
		names: names,
	}

	ctrl, err := control.NewServer(cfg.Control.Mode, cfg.Control.RequireToken, nil, logger)
	if err != nil {
		return nil, cyfserr.Wrap(cyfserr.Failed, err, "stack: building control server")
	}
	ctrl.RegisterCommand("reload_handlers", func(ctx context.Context, r *http.Request) (interface{}, error) {
		return nil, sc.Handlers.Reload()
	})
	sc.Control = ctrl

	return sc, nil
}

// StartControl binds the admin HTTP interface (spec.md §4.12).
func (sc *StackContext) StartControl(ctx context.Context) error {
	h, err := sc.Control.Listen(ctx)
	if err != nil {
		return err
	}
	sc.controlHandle = h
	return nil
}

// StartTicker drives every session's resend/timeout pump at cadence until
// Close is called (spec.md §4.4 "a shared ticker pumps
// OnTimeEscape"). The downloader/session machinery doesn't expose a
// registry of live sessions here (each Downloader owns its own), so this
// ticker is the hook a transport layer attaches its live-session sweep to;
// tick is invoked once per cadence with the current time.
func (sc *StackContext) StartTicker(cadence time.Duration, tick func(now time.Time)) {
	sc.tickerStop = make(chan struct{})
	sc.tickerWG.Add(1)
	go func() {
		defer sc.tickerWG.Done()
		t := time.NewTicker(cadence)
		defer t.Stop()
		for {
			select {
			case now := <-t.C:
				tick(now)
			case <-sc.tickerStop:
				return
			}
		}
	}()
}

// Close stops the control server and the resend ticker, if started.
func (sc *StackContext) Close() error {
	if sc.tickerStop != nil {
		close(sc.tickerStop)
		sc.tickerWG.Wait()
	}
	if sc.controlHandle != nil {
		return sc.controlHandle.Close()
	}
	return nil
}

// Package testutil holds fakes shared across this module's package tests:
// a zero-network download.Channel, a no-op session.Emitter, and a
// map-backed zone.Directory. Promoted out of internal/ndn's own
// pipeline_test.go fakes (themselves grounded on the teacher's
// internal/dht/integration_test.go fake-transport idiom) so other
// packages' tests (stack, control, cmd/bdtd) don't each reinvent them.
package testutil

import (
	"context"

	"github.com/cyfs-core/bdt-ndn/internal/chunkcache"
	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/download"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/session"
	"github.com/cyfs-core/bdt-ndn/internal/zone"
)

// FakeEmitter is a no-op session.Emitter: it acknowledges every SnCall
// without touching a network.
type FakeEmitter struct{}

func (FakeEmitter) EmitSnCall(ctx context.Context, target ids.DeviceId, chunkID ids.ChunkId, seq uint64) error {
	return nil
}

// FakeChannel fills a chunk's cache directly from a preloaded byte map,
// simulating a completed transfer without any real network (download.Channel).
type FakeChannel struct {
	BytesByChunk map[string][]byte
}

// NewFakeChannel returns a channel serving the given chunk id -> bytes map.
func NewFakeChannel(bytesByChunk map[string][]byte) *FakeChannel {
	return &FakeChannel{BytesByChunk: bytesByChunk}
}

func (c *FakeChannel) Download(ctx context.Context, chunkID ids.ChunkId, source download.Source, cache *chunkcache.ChunkCache) (*session.Session, error) {
	data, ok := c.BytesByChunk[chunkID.String()]
	if !ok {
		return nil, cyfserr.New(cyfserr.NotFound, "testutil: fake channel has no bytes for chunk")
	}
	w, err := cache.NewWriter()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Finish(); err != nil {
		return nil, err
	}
	return session.New(chunkID, source.Device, 1, FakeEmitter{}, 0, 0), nil
}

// FakeSourceProvider always suggests a single fixed device as the source
// for every chunk (ndn.ChunkSourceProvider).
type FakeSourceProvider struct {
	Device ids.DeviceId
}

func (p FakeSourceProvider) SourcesFor(device ids.DeviceId, chunkID ids.ChunkId) []download.Source {
	return []download.Source{{Device: p.Device}}
}

// FakeDirectory is a map-backed zone.Directory: devices are looked up by
// id, zones are never populated (GetZoneByOwner/GetZoneByID always miss),
// which is enough for tests that only exercise the resolver's
// same-owner-as-local shortcut.
type FakeDirectory struct {
	Devices map[string]zone.Device
}

// NewFakeDirectory returns a directory over the given device set, keyed
// by ids.ObjectId.String().
func NewFakeDirectory(devices map[string]zone.Device) *FakeDirectory {
	if devices == nil {
		devices = make(map[string]zone.Device)
	}
	return &FakeDirectory{Devices: devices}
}

func (d *FakeDirectory) GetDevice(ctx context.Context, id ids.ObjectId) (zone.Device, bool, error) {
	dev, ok := d.Devices[id.String()]
	return dev, ok, nil
}

func (d *FakeDirectory) GetZoneByOwner(ctx context.Context, owner ids.ObjectId) (zone.Zone, bool, error) {
	return zone.Zone{}, false, nil
}

func (d *FakeDirectory) GetZoneByID(ctx context.Context, id ids.ObjectId) (zone.Zone, bool, error) {
	return zone.Zone{}, false, nil
}

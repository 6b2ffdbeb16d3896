package zone

import (
	"context"
	"testing"
	"time"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

type memDirectory struct {
	devices map[ids.ObjectId]Device
	zones   map[ids.ObjectId]Zone
	byOwner map[ids.ObjectId]Zone
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		devices: make(map[ids.ObjectId]Device),
		zones:   make(map[ids.ObjectId]Zone),
		byOwner: make(map[ids.ObjectId]Zone),
	}
}

func (d *memDirectory) GetDevice(ctx context.Context, id ids.ObjectId) (Device, bool, error) {
	dev, ok := d.devices[id]
	return dev, ok, nil
}

func (d *memDirectory) GetZoneByOwner(ctx context.Context, owner ids.ObjectId) (Zone, bool, error) {
	z, ok := d.byOwner[owner]
	return z, ok, nil
}

func (d *memDirectory) GetZoneByID(ctx context.Context, id ids.ObjectId) (Zone, bool, error) {
	z, ok := d.zones[id]
	return z, ok, nil
}

func devID(tag string) ids.ObjectId  { return ids.NewObjectId(ids.ObjectTypeDevice, []byte(tag)) }
func ownerID(tag string) ids.ObjectId { return ids.NewObjectId(ids.ObjectTypePeople, []byte(tag)) }
func zoneID(tag string) ids.ObjectId  { return ids.NewObjectId(ids.ObjectTypeZone, []byte(tag)) }

func TestResolveNilTargetIsCurrentDevice(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	r, err := NewResolver(local, owner, local, newMemDirectory())
	if err != nil {
		t.Fatal(err)
	}
	target, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !target.IsCurrentZone || target.TargetDevice != local || target.TargetOOD != local {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveDeviceSameOwnerIsCurrentZone(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	dir := newMemDirectory()
	peer := devID("peer")
	dir.devices[peer] = Device{DeviceID: peer, OwnerID: owner}
	r, err := NewResolver(local, owner, local, dir)
	if err != nil {
		t.Fatal(err)
	}
	target, err := r.Resolve(context.Background(), &peer)
	if err != nil {
		t.Fatal(err)
	}
	if !target.IsCurrentZone || target.TargetDevice != peer {
		t.Fatalf("expected current-zone device resolution, got %+v", target)
	}
}

func TestResolveDeviceOtherOwnerResolvesZoneOOD(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	dir := newMemDirectory()
	otherOwner := ownerID("other")
	remoteDevice := devID("remote")
	remoteOOD := devID("remote-ood")
	dir.devices[remoteDevice] = Device{DeviceID: remoteDevice, OwnerID: otherOwner}
	dir.byOwner[otherOwner] = Zone{ZoneID: zoneID("other-zone"), OwnerID: otherOwner, OodList: []ids.DeviceId{remoteOOD}}

	r, err := NewResolver(local, owner, local, dir)
	if err != nil {
		t.Fatal(err)
	}
	target, err := r.Resolve(context.Background(), &remoteDevice)
	if err != nil {
		t.Fatal(err)
	}
	if target.IsCurrentZone {
		t.Fatal("expected cross-zone resolution")
	}
	if target.TargetDevice != remoteDevice || target.TargetOOD != remoteOOD {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveUnknownDeviceIsNotFound(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	r, err := NewResolver(local, owner, local, newMemDirectory())
	if err != nil {
		t.Fatal(err)
	}
	missing := devID("ghost")
	_, err = r.Resolve(context.Background(), &missing)
	if cyfserr.KindOf(err) != cyfserr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestResolveCustomZoneID(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	dir := newMemDirectory()
	otherOwner := ownerID("other")
	zID := zoneID("custom")
	ood := devID("ood")
	dir.zones[zID] = Zone{ZoneID: zID, OwnerID: otherOwner, OodList: []ids.DeviceId{ood}}

	r, err := NewResolver(local, owner, local, dir)
	if err != nil {
		t.Fatal(err)
	}
	target, err := r.Resolve(context.Background(), &zID)
	if err != nil {
		t.Fatal(err)
	}
	if target.IsCurrentZone || target.TargetOOD != ood {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestCacheHitAvoidsSecondDirectoryLookup(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	dir := newMemDirectory()
	peer := devID("peer")
	dir.devices[peer] = Device{DeviceID: peer, OwnerID: owner}
	r, err := NewResolver(local, owner, local, dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(context.Background(), &peer); err != nil {
		t.Fatal(err)
	}
	delete(dir.devices, peer) // directory now can't answer; cache must still serve
	target, err := r.Resolve(context.Background(), &peer)
	if err != nil {
		t.Fatalf("expected cache hit, got error: %v", err)
	}
	if target.TargetDevice != peer {
		t.Fatalf("unexpected cached target: %+v", target)
	}
}

func TestCacheExpiryTriggersReResolve(t *testing.T) {
	local := devID("local")
	owner := ownerID("me")
	dir := newMemDirectory()
	peer := devID("peer")
	dir.devices[peer] = Device{DeviceID: peer, OwnerID: owner}
	r, err := NewResolver(local, owner, local, dir)
	if err != nil {
		t.Fatal(err)
	}
	clockTime := time.Now()
	r.now = func() time.Time { return clockTime }
	r.ttl = time.Minute

	if _, err := r.Resolve(context.Background(), &peer); err != nil {
		t.Fatal(err)
	}
	delete(dir.devices, peer)
	clockTime = clockTime.Add(2 * time.Minute)
	if _, err := r.Resolve(context.Background(), &peer); cyfserr.KindOf(err) != cyfserr.NotFound {
		t.Fatalf("expected expired cache entry to force re-resolve and fail NotFound, got %v", err)
	}
}
